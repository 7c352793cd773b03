package relay

import "strings"

// DefaultTemplate is used when neither the repository nor the tenant has a
// template for the event.
const DefaultTemplate = "📢 *{{repo}}*: {{title}}\n\n👤 {{author}}\n🔗 {{url}}"

// Render expands template macros from the event. Both the `{{name}}` style
// and the older `{pr.name}` style are honored so templates written against
// either form keep working.
func Render(tmpl string, ev Normalized) string {
	r := strings.NewReplacer(
		"{{repo}}", ev.Repo,
		"{{title}}", ev.Title,
		"{{author}}", ev.Author,
		"{{url}}", ev.URL,
		"{{event}}", ev.Event,
		"{pr.repo}", ev.Repo,
		"{pr.title}", ev.Title,
		"{pr.author}", ev.Author,
		"{pr.url}", ev.URL,
		"{pr.event}", ev.Event,
	)
	return r.Replace(tmpl)
}
