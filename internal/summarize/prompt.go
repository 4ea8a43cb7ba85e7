package summarize

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/pdiddy/filing-engine/pkg/types"
)

const (
	attachmentSystemPrompt = "You are an AI assistant that summarizes legal and corporate documents."
	reportSystemPrompt     = "You are a helpful assistant that summarizes corporate filings."
)

var attachmentPromptTmpl = template.Must(template.New("attachments").Parse(`You are an AI assistant. Please summarize the following text extracted from the attachments of a corporate filing.
The attachments likely include board resolutions, consent letters from auditors, etc.
Focus on key information like dates, names, and the nature of the resolutions or consents.

Attachment Text:
---
{{.Text}}
---

Provide a concise summary.`))

// reportPromptTmpl only mentions attachments when a summary of them is supplied.
var reportPromptTmpl = template.Must(template.New("report").Parse(`Based on the following data from a {{.Form}},
generate a 3-5 line summary for a non-technical person.
Data:
{{.Data}}
{{- if .Attachments}}

Also, consider the following summary from the attachments:
---
{{.Attachments}}
---
Incorporate any important details from the attachments, such as board resolutions or consent letters, into the main summary.
{{- end}}`))

func renderAttachmentPrompt(text string) (string, error) {
	var buf bytes.Buffer
	if err := attachmentPromptTmpl.Execute(&buf, struct{ Text string }{Text: text}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderReportPrompt(form string, rec *types.Record, attachments string) (string, error) {
	data, err := indentJSON(rec)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = reportPromptTmpl.Execute(&buf, struct {
		Form        string
		Data        string
		Attachments string
	}{
		Form:        form,
		Data:        data,
		Attachments: strings.TrimSpace(attachments),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// indentJSON renders rec with two-space indentation and without HTML escaping.
func indentJSON(rec *types.Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
