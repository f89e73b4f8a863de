package mailkit

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFS counts Open calls. It deliberately exposes only Open so that
// fs.ReadFile goes through it.
type countingFS struct {
	files fstest.MapFS
	opens atomic.Int32
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.opens.Add(1)
	return c.files.Open(name)
}

func newTestEngine(t *testing.T, files fstest.MapFS, opts TemplateEngineOptions) *TemplateEngine {
	t.Helper()

	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultTemplateEngineOptions().Extensions
	}
	eng, err := newTemplateEngineFS(files, opts)
	require.NoError(t, err)
	return eng
}

func file(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestTemplateEngine_Render_HTMLAndText(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"newsletter/html.tmpl": file("<h1>Hi there {{.name.first}} {{uppercase .name.last}}.</h1>\n"),
		"newsletter/text.tmpl": file("Hi there {{.name.first}} {{.name.last}}.\n"),
	}, TemplateEngineOptions{
		Helpers: map[string]any{"uppercase": strings.ToUpper},
	})

	out, err := eng.Render(context.Background(), "newsletter", newsletterContent())

	require.NoError(t, err)
	assert.Equal(t, "<h1>Hi there Mamma MIA.</h1>", out.HTML)
	assert.Equal(t, "Hi there Mamma Mia.", out.Text)
	assert.Empty(t, out.Subject)
}

func TestTemplateEngine_Render_EscapesHTML(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"alert/html.tmpl": file("<p>{{.}}</p>"),
	}, TemplateEngineOptions{})

	out, err := eng.Render(context.Background(), "alert", "<script>x</script>")

	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;x&lt;/script&gt;</p>", out.HTML)
}

func TestTemplateEngine_Render_TextDerivedFromHTML(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"welcome/html.html": file("<h1>Hi there {{.}} &amp; friends.</h1>"),
	}, TemplateEngineOptions{})

	out, err := eng.Render(context.Background(), "welcome", "Alice")

	require.NoError(t, err)
	assert.Equal(t, "Hi there Alice & friends.", out.Text)
}

func TestTemplateEngine_Render_TextOnly(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"plain/text.txt": file("Hello {{.}}"),
	}, TemplateEngineOptions{})

	out, err := eng.Render(context.Background(), "plain", "Bob")

	require.NoError(t, err)
	assert.Empty(t, out.HTML)
	assert.Equal(t, "Hello Bob", out.Text)
}

func TestTemplateEngine_Render_Markdown(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"digest/html.md": file("Hello **{{.}}**!\n"),
	}, TemplateEngineOptions{})

	out, err := eng.Render(context.Background(), "digest", "Alice")

	require.NoError(t, err)
	assert.Equal(t, "<p>Hello <strong>Alice</strong>!</p>", out.HTML)
	assert.Equal(t, "Hello **Alice**!", out.Text)
}

func TestTemplateEngine_Render_Subject(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"welcome/text.tmpl":    file("Hello"),
		"welcome/subject.tmpl": file("Welcome {{title .}}\n"),
	}, TemplateEngineOptions{})

	out, err := eng.Render(context.Background(), "welcome", "alice smith")

	require.NoError(t, err)
	assert.Equal(t, "Welcome Alice Smith", out.Subject)
}

func TestTemplateEngine_Render_Partials(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"welcome/html.tmpl": file(`<p>Hi</p>{{template "footer" .}}`),
		"welcome/text.tmpl": file(`Hi{{template "footer" .}}`),
	}, TemplateEngineOptions{
		Partials: map[string]string{"footer": " -- {{.team}}"},
	})

	out, err := eng.Render(context.Background(), "welcome", map[string]string{"team": "Ops"})

	require.NoError(t, err)
	assert.Equal(t, "<p>Hi</p> -- Ops", out.HTML)
	assert.Equal(t, "Hi -- Ops", out.Text)
}

func TestTemplateEngine_Render_Delimiters(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"welcome/text.tmpl": file("Hi [[.]] {{literal}}"),
	}, TemplateEngineOptions{LeftDelim: "[[", RightDelim: "]]"})

	out, err := eng.Render(context.Background(), "welcome", "Alice")

	require.NoError(t, err)
	assert.Equal(t, "Hi Alice {{literal}}", out.Text)
}

func TestTemplateEngine_Render_HelperOverridesBuiltin(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"welcome/text.tmpl": file("{{upper .}}"),
	}, TemplateEngineOptions{
		Helpers: map[string]any{"upper": func(s string) string { return "<" + s + ">" }},
	})

	out, err := eng.Render(context.Background(), "welcome", "x")

	require.NoError(t, err)
	assert.Equal(t, "<x>", out.Text)
}

func TestTemplateEngine_Render_ExtensionOrder(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{
		"welcome/text.tmpl": file("from tmpl"),
		"welcome/text.txt":  file("from txt"),
	}

	eng := newTestEngine(t, files, TemplateEngineOptions{Extensions: []string{".txt", ".tmpl"}})
	out, err := eng.Render(context.Background(), "welcome", nil)
	require.NoError(t, err)
	assert.Equal(t, "from txt", out.Text)

	eng = newTestEngine(t, files, TemplateEngineOptions{})
	out, err = eng.Render(context.Background(), "welcome", nil)
	require.NoError(t, err)
	assert.Equal(t, "from tmpl", out.Text)
}

func TestTemplateEngine_Render_NotFound(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"welcome/subject.tmpl": file("only a subject"),
	}, TemplateEngineOptions{})

	for _, name := range []string{"missing", "welcome"} {
		_, err := eng.Render(context.Background(), name, nil)

		require.ErrorIs(t, err, ErrTemplateNotFound)
		var tmplErr *TemplateError
		require.ErrorAs(t, err, &tmplErr)
		assert.Equal(t, name, tmplErr.Template)
	}
}

func TestTemplateEngine_Render_InvalidName(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{}, TemplateEngineOptions{})

	for _, name := range []string{"", ".", "../secret", "/etc/passwd", "a/../../b", `..\secret`} {
		_, err := eng.Render(context.Background(), name, nil)
		require.ErrorIs(t, err, ErrInvalidTemplateName, name)
	}
}

func TestTemplateEngine_Render_ParseError(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"broken/text.tmpl": file("{{.name"),
	}, TemplateEngineOptions{})

	_, err := eng.Render(context.Background(), "broken", nil)

	var tmplErr *TemplateError
	require.ErrorAs(t, err, &tmplErr)
	assert.Equal(t, "parse", tmplErr.Operation)
}

func TestTemplateEngine_Render_ExecError(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"broken/text.tmpl": file("{{.Missing.Field}}"),
	}, TemplateEngineOptions{})

	_, err := eng.Render(context.Background(), "broken", struct{}{})

	var tmplErr *TemplateError
	require.ErrorAs(t, err, &tmplErr)
	assert.Equal(t, "render", tmplErr.Operation)
}

func TestTemplateEngine_Render_CanceledContext(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{"welcome/text.tmpl": file("hi")}, TemplateEngineOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Render(ctx, "welcome", nil)

	require.ErrorIs(t, err, context.Canceled)
}

func TestTemplateEngine_Render_CachesTemplates(t *testing.T) {
	t.Parallel()

	cfs := &countingFS{files: fstest.MapFS{
		"welcome/html.tmpl": file("<p>{{.}}</p>"),
	}}

	eng, err := newTemplateEngineFS(cfs, TemplateEngineOptions{
		Extensions:   []string{".tmpl"},
		CacheEnabled: true,
	})
	require.NoError(t, err)

	_, err = eng.Render(context.Background(), "welcome", "a")
	require.NoError(t, err)
	first := cfs.opens.Load()
	require.Positive(t, first)

	_, err = eng.Render(context.Background(), "welcome", "b")
	require.NoError(t, err)
	assert.Equal(t, first, cfs.opens.Load())

	eng.Reset()
	_, err = eng.Render(context.Background(), "welcome", "c")
	require.NoError(t, err)
	assert.Equal(t, 2*first, cfs.opens.Load())
}

func TestTemplateEngine_Render_NoCache(t *testing.T) {
	t.Parallel()

	cfs := &countingFS{files: fstest.MapFS{
		"welcome/text.tmpl": file("{{.}}"),
	}}

	eng, err := newTemplateEngineFS(cfs, TemplateEngineOptions{Extensions: []string{".tmpl"}})
	require.NoError(t, err)

	_, err = eng.Render(context.Background(), "welcome", "a")
	require.NoError(t, err)
	first := cfs.opens.Load()

	_, err = eng.Render(context.Background(), "welcome", "b")
	require.NoError(t, err)
	assert.Equal(t, 2*first, cfs.opens.Load())
}

func TestTemplateEngine_Render_Concurrent(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, fstest.MapFS{
		"welcome/html.tmpl": file("<p>{{.}}</p>"),
	}, TemplateEngineOptions{CacheEnabled: true})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := strings.Repeat("x", i)
			out, err := eng.Render(context.Background(), "welcome", name)
			assert.NoError(t, err)
			assert.Equal(t, "<p>"+name+"</p>", out.HTML)
		}()
	}
	wg.Wait()
}

func TestTemplateEngine_UnsafeFunctions(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{"raw/html.tmpl": file("{{unsafeHTML .}}")}

	eng := newTestEngine(t, files, TemplateEngineOptions{})
	_, err := eng.Render(context.Background(), "raw", "<b>x</b>")
	require.Error(t, err, "unsafeHTML must not exist unless enabled")

	eng = newTestEngine(t, files, TemplateEngineOptions{AllowUnsafeFunctions: true})
	out, err := eng.Render(context.Background(), "raw", "<b>x</b>")
	require.NoError(t, err)
	assert.Equal(t, "<b>x</b>", out.HTML)
}

func TestNewTemplateEngine_InvalidHelpers(t *testing.T) {
	t.Parallel()

	tests := map[string]map[string]any{
		"not a function":  {"bad": 42},
		"invalid name":    {"bad-name": strings.ToUpper},
		"too many values": {"pair": func() (string, string) { return "", "" }},
		"no values":       {"none": func() {}},
	}

	for name, helpers := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := newTemplateEngineFS(fstest.MapFS{}, TemplateEngineOptions{Helpers: helpers})

			var tmplErr *TemplateError
			require.ErrorAs(t, err, &tmplErr)
			assert.Equal(t, "prepare", tmplErr.Operation)
		})
	}
}

func TestNewTemplateEngine_Directory(t *testing.T) {
	t.Parallel()

	dir := writeNewsletter(t)

	eng, err := NewTemplateEngine(dir, TemplateEngineOptions{
		Helpers: map[string]any{"uppercase": strings.ToUpper},
	})
	require.NoError(t, err)

	out, err := eng.Render(context.Background(), "newsletter", newsletterContent())
	require.NoError(t, err)
	assert.Equal(t, "Hi there Mamma MIA.", out.Text)

	notDir := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0o600))

	_, err = NewTemplateEngine(notDir, DefaultTemplateEngineOptions())
	require.Error(t, err)

	_, err = NewTemplateEngine(filepath.Join(dir, "missing"), DefaultTemplateEngineOptions())
	require.ErrorIs(t, err, os.ErrNotExist)
}
