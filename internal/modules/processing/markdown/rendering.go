package markdown

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

const documentStyle = `body { max-width: 760px; margin: 0 auto; padding: 2em 1em; font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; line-height: 1.7; color: #24292f; }
h1, h2 { border-bottom: 1px solid #d0d7de; padding-bottom: .3em; }
ul.contains-task-list { list-style: none; padding-left: 1.2em; }
code { background: #f6f8fa; padding: .2em .4em; border-radius: 6px; }
p.info { text-align: center; opacity: .8; }
footer { text-align: right; padding: 2em 0; font-size: .8em; }`

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.TaskList,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

// DocumentOptions controls the standalone HTML page produced by RenderHTMLDocument.
type DocumentOptions struct {
	Title  string
	Info   string
	Footer string
}

// ToHTML renders markdown to an HTML fragment. Raw HTML in the input is
// omitted by the renderer.
func ToHTML(markdownText string) string {
	text := strings.TrimSpace(markdownText)
	if text == "" {
		return ""
	}

	var out bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &out); err != nil {
		return "<pre>" + template.HTMLEscapeString(text) + "</pre>"
	}
	return out.String()
}

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <meta name="referrer" content="no-referrer" />
    <style>
` + documentStyle + `
    </style>
    <title>{{.Title}}</title>
  </head>
  <body class="markdown-body">
{{- with .Info}}
    <p class="info">{{.}}</p>
{{- end}}
    <article>
{{.Body}}
    </article>
{{- with .Footer}}
    <footer>{{.}}</footer>
{{- end}}
  </body>
</html>`))

// RenderHTMLDocument wraps an HTML fragment into a complete page. Title,
// info and footer are escaped; bodyHTML is trusted renderer output.
func RenderHTMLDocument(bodyHTML string, options DocumentOptions) string {
	title := strings.TrimSpace(options.Title)
	if title == "" {
		title = "Note"
	}
	var out bytes.Buffer
	err := documentTemplate.Execute(&out, struct {
		Title, Info, Footer string
		Body                template.HTML
	}{
		Title:  title,
		Info:   strings.TrimSpace(options.Info),
		Footer: strings.TrimSpace(options.Footer),
		Body:   template.HTML(bodyHTML),
	})
	if err != nil {
		return bodyHTML
	}
	return out.String()
}
