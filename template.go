package mailkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io/fs"
	"os"
	"path"
	"reflect"
	"strings"
	"sync"
	textTemplate "text/template"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Template part file names, without extension.
const (
	partHTML    = "html"
	partText    = "text"
	partSubject = "subject"
)

const markdownExt = ".md"

var _ TemplateRenderer = (*TemplateEngine)(nil)

// TemplateEngine renders templates stored as one directory per template:
//
//	<dir>/<name>/html.<ext>
//	<dir>/<name>/text.<ext>
//	<dir>/<name>/subject.<ext>
//
// At least one of the html and text parts must exist. All methods are safe
// for concurrent use.
type TemplateEngine struct {
	fsys    fs.FS
	opts    TemplateEngineOptions
	funcs   map[string]any
	md      goldmark.Markdown
	policy  *bluemonday.Policy
	mutex   sync.RWMutex
	entries map[string]*templateSet
}

// templateSet holds the parsed parts of one template.
type templateSet struct {
	html     *template.Template
	markdown *textTemplate.Template
	text     *textTemplate.Template
	subject  *textTemplate.Template
}

// NewTemplateEngine prepares a template engine reading from dir.
func NewTemplateEngine(dir string, opts TemplateEngineOptions) (*TemplateEngine, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, NewTemplateError(dir, "prepare", "templates directory not accessible", err)
	}
	if !info.IsDir() {
		return nil, NewTemplateError(dir, "prepare", "templates path is not a directory", nil)
	}

	return newTemplateEngineFS(os.DirFS(dir), opts)
}

func newTemplateEngineFS(fsys fs.FS, opts TemplateEngineOptions) (*TemplateEngine, error) {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultTemplateEngineOptions().Extensions
	}

	funcs := builtinFuncs(opts.AllowUnsafeFunctions)
	for name, fn := range opts.Helpers {
		if err := checkHelper(name, fn); err != nil {
			return nil, NewTemplateError(name, "prepare", "invalid helper", err)
		}
		funcs[name] = fn
	}

	return &TemplateEngine{
		fsys:    fsys,
		opts:    opts,
		funcs:   funcs,
		md:      goldmark.New(),
		policy:  bluemonday.StrictPolicy(),
		entries: make(map[string]*templateSet),
	}, nil
}

// Render executes the named template with content. Surrounding whitespace is
// trimmed from every part.
func (te *TemplateEngine) Render(ctx context.Context, name string, content any) (*Rendered, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set, err := te.lookup(name)
	if err != nil {
		return nil, err
	}

	var out Rendered

	switch {
	case set.markdown != nil:
		source, err := executeText(set.markdown, content)
		if err != nil {
			return nil, NewTemplateError(name, "render", "failed to execute markdown template", err)
		}
		var buf bytes.Buffer
		if err := te.md.Convert([]byte(source), &buf); err != nil {
			return nil, NewTemplateError(name, "render", "failed to convert markdown", err)
		}
		out.HTML = strings.TrimSpace(buf.String())
		if set.text == nil {
			out.Text = strings.TrimSpace(source)
		}
	case set.html != nil:
		var buf strings.Builder
		if err := set.html.Execute(&buf, content); err != nil {
			return nil, NewTemplateError(name, "render", "failed to execute HTML template", err)
		}
		out.HTML = strings.TrimSpace(buf.String())
	}

	if set.text != nil {
		text, err := executeText(set.text, content)
		if err != nil {
			return nil, NewTemplateError(name, "render", "failed to execute text template", err)
		}
		out.Text = strings.TrimSpace(text)
	} else if out.Text == "" {
		out.Text = te.plainText(out.HTML)
	}

	if set.subject != nil {
		subject, err := executeText(set.subject, content)
		if err != nil {
			return nil, NewTemplateError(name, "render", "failed to execute subject template", err)
		}
		out.Subject = strings.TrimSpace(subject)
	}

	return &out, nil
}

// Reset drops every cached template.
func (te *TemplateEngine) Reset() {
	te.mutex.Lock()
	defer te.mutex.Unlock()

	te.entries = make(map[string]*templateSet)
}

func (te *TemplateEngine) lookup(name string) (*templateSet, error) {
	if !validTemplateName(name) {
		return nil, NewTemplateError(name, "load", "template name must be a relative path inside the templates directory", ErrInvalidTemplateName)
	}

	if !te.opts.CacheEnabled {
		return te.load(name)
	}

	te.mutex.RLock()
	set, ok := te.entries[name]
	te.mutex.RUnlock()
	if ok {
		return set, nil
	}

	set, err := te.load(name)
	if err != nil {
		return nil, err
	}

	te.mutex.Lock()
	te.entries[name] = set
	te.mutex.Unlock()

	return set, nil
}

func (te *TemplateEngine) load(name string) (*templateSet, error) {
	var set templateSet

	src, ext, err := te.readPart(name, partHTML)
	if err != nil {
		return nil, err
	}
	if ext != "" {
		file := path.Join(name, partHTML+ext)
		if ext == markdownExt {
			set.markdown, err = te.parseText(file, src)
		} else {
			set.html, err = te.parseHTML(file, src)
		}
		if err != nil {
			return nil, NewTemplateError(name, "parse", "failed to parse HTML part", err)
		}
	}

	if src, ext, err = te.readPart(name, partText); err != nil {
		return nil, err
	}
	if ext != "" {
		if set.text, err = te.parseText(path.Join(name, partText+ext), src); err != nil {
			return nil, NewTemplateError(name, "parse", "failed to parse text part", err)
		}
	}

	if set.html == nil && set.markdown == nil && set.text == nil {
		return nil, NewTemplateError(name, "load", "no html or text part", ErrTemplateNotFound)
	}

	if src, ext, err = te.readPart(name, partSubject); err != nil {
		return nil, err
	}
	if ext != "" {
		if set.subject, err = te.parseText(path.Join(name, partSubject+ext), src); err != nil {
			return nil, NewTemplateError(name, "parse", "failed to parse subject part", err)
		}
	}

	return &set, nil
}

// readPart returns the source and extension of the first file found for
// part. An empty extension means the part does not exist.
func (te *TemplateEngine) readPart(name, part string) (string, string, error) {
	for _, ext := range te.opts.Extensions {
		data, err := fs.ReadFile(te.fsys, path.Join(name, part+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", "", NewTemplateError(name, "load", fmt.Sprintf("failed to read %s part", part), err)
		}
		return string(data), ext, nil
	}
	return "", "", nil
}

func (te *TemplateEngine) parseHTML(name, src string) (*template.Template, error) {
	tmpl := template.New(name).Delims(te.opts.LeftDelim, te.opts.RightDelim).Funcs(template.FuncMap(te.funcs))
	for partial, body := range te.opts.Partials {
		if _, err := tmpl.New(partial).Parse(body); err != nil {
			return nil, fmt.Errorf("partial %s: %w", partial, err)
		}
	}
	return tmpl.Parse(src)
}

func (te *TemplateEngine) parseText(name, src string) (*textTemplate.Template, error) {
	tmpl := textTemplate.New(name).Delims(te.opts.LeftDelim, te.opts.RightDelim).Funcs(textTemplate.FuncMap(te.funcs))
	for partial, body := range te.opts.Partials {
		if _, err := tmpl.New(partial).Parse(body); err != nil {
			return nil, fmt.Errorf("partial %s: %w", partial, err)
		}
	}
	return tmpl.Parse(src)
}

// plainText strips markup from rendered HTML.
func (te *TemplateEngine) plainText(rendered string) string {
	if rendered == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(te.policy.Sanitize(rendered)))
}

func executeText(tmpl *textTemplate.Template, data any) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// validTemplateName rejects absolute names and names escaping the templates directory.
func validTemplateName(name string) bool {
	if name == "" || strings.Contains(name, "\\") {
		return false
	}
	return fs.ValidPath(name) && name != "."
}

// checkHelper mirrors the checks text/template performs in Funcs, which
// panics instead of returning an error.
func checkHelper(name string, fn any) error {
	if name == "" {
		return errors.New("empty helper name")
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return fmt.Errorf("helper name %q is not a valid identifier", name)
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("helper %q is not a function", name)
	}
	switch t := v.Type(); {
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1) == reflect.TypeFor[error]():
	default:
		return fmt.Errorf("helper %q must return one value, or a value and an error", name)
	}
	return nil
}

// builtinFuncs returns the helpers available to every template.
func builtinFuncs(allowUnsafe bool) map[string]any {
	titleCaser := cases.Title(language.English)
	funcs := map[string]any{
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"title":     titleCaser.String,
		"trim":      strings.TrimSpace,
		"join":      strings.Join,
		"split":     strings.Split,
		"replace":   strings.ReplaceAll,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"hasSuffix": strings.HasSuffix,
		"now":       time.Now,
		"formatTime": func(format string, t time.Time) string {
			return t.Format(format)
		},
		"default": func(defaultValue, value any) any {
			if value == nil || value == "" {
				return defaultValue
			}
			return value
		},
	}

	if allowUnsafe {
		// These bypass html/template escaping; content must be trusted.
		funcs["unsafeHTML"] = func(s string) template.HTML {
			return template.HTML(s) // #nosec G203 -- opt-in only
		}
		funcs["unsafeURL"] = func(s string) template.URL {
			return template.URL(s) // #nosec G203 -- opt-in only
		}
	}

	return funcs
}
