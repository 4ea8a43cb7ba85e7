// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pdiddy/filing-engine/pkg/types"
)

// fencedJSON matches the first fenced code block holding a JSON object.
var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n\\s*(\\{.*?\\})\\s*```")

// recordSchemaJSON constrains the shape of a record without fixing its
// fields: a non-empty object whose keys, at every depth, are non-empty.
const recordSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "value": {
      "propertyNames": {"minLength": 1},
      "additionalProperties": {"$ref": "#/$defs/value"},
      "items": {"$ref": "#/$defs/value"}
    }
  },
  "type": "object",
  "minProperties": 1,
  "propertyNames": {"minLength": 1},
  "additionalProperties": {"$ref": "#/$defs/value"}
}`

var recordSchema = mustCompileSchema("record.json", recordSchemaJSON)

func mustCompileSchema(url, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("adding schema %s: %v", url, err))
	}
	return c.MustCompile(url)
}

// ErrEmptyOutput is the cause of an ExtractionError for a blank model reply.
var ErrEmptyOutput = errors.New("model returned empty output")

// Candidate returns the text that should hold the JSON object: the body
// of the first fenced ```json block if there is one, otherwise the whole
// trimmed output.
func Candidate(output string) string {
	if m := fencedJSON.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return strings.TrimSpace(output)
}

// RecoverJSON parses a model reply into a record. The candidate must be
// exactly one JSON object with at least one field. Failures are
// *ExtractionError values.
func RecoverJSON(output string) (*types.Record, error) {
	if strings.TrimSpace(output) == "" {
		return nil, &ExtractionError{Stage: StageEmpty, Err: ErrEmptyOutput}
	}

	candidate := []byte(Candidate(output))

	rec := types.NewRecord()
	if err := json.Unmarshal(candidate, rec); err != nil {
		return nil, &ExtractionError{Stage: StageParse, Err: err}
	}

	if err := validateShape(candidate); err != nil {
		return nil, &ExtractionError{Stage: StageValidate, Err: err}
	}
	return rec, nil
}

func validateShape(candidate []byte) error {
	dec := json.NewDecoder(bytes.NewReader(candidate))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return recordSchema.Validate(v)
}
