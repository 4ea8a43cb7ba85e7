// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"text/template"
)

// systemPrompt frames the model as a JSON-only extractor.
const systemPrompt = "You are an expert data extraction AI that returns JSON."

// extractionPromptTmpl asks for every label/value pair on the form as one
// JSON object with descriptive snake_case keys.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are an expert data extraction AI. Your task is to analyze the following text from a PDF document and extract all relevant key-value pairs. The document is a government form, so pay attention to labels and the corresponding values filled in. Present the extracted data as a clean JSON object. The keys of the JSON should be descriptive, snake_cased labels for the data, and the values should be the extracted information. Clean up the keys to be descriptive and consistent (e.g., use "company_name" instead of "Name of the company").

Here is the text from the PDF:
---
{{.Text}}
---

Please return only the JSON object.`))

// renderPrompt executes the extraction prompt template with the form text.
func renderPrompt(text string) (string, error) {
	var buf bytes.Buffer
	if err := extractionPromptTmpl.Execute(&buf, struct{ Text string }{Text: text}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
