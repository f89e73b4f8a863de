// Package mailkit is a thin facade for sending plain or templated email
// through a pluggable transport.
//
// A Client merges per-send overrides over configured default message fields,
// checks that a sender and a recipient are present, renders a named template
// into HTML and plain-text bodies when one is requested, and hands the result
// to the transport.
//
// # Basic Usage
//
//	client, err := mailkit.New(mailkit.Config{},
//		mailkit.WithSMTPAuth("smtp.example.com", 587, "user", "secret"),
//		mailkit.WithDefaults(mailkit.Message{From: "noreply@example.com"}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Send(ctx, &mailkit.Message{
//		To:      "user@example.com",
//		Subject: "Welcome",
//		Text:    "Welcome!",
//	})
//
// # Templates
//
// With a templates directory configured, setting TemplateName renders
// <dir>/<name>/html.tmpl and <dir>/<name>/text.tmpl with TemplateContent.
// An html.md part is rendered as Markdown. A missing text part is derived
// from the HTML.
//
// # Transports
//
//   - SMTP (gopkg.in/mail.v2)
//   - AWS SES
//   - SendGrid
//   - Mailgun
//   - Resend
//
// Dry-run mode validates and renders every message but never delivers it;
// each send reports DryRunResponse.
package mailkit
