package reso

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const envelopeSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["value"],
	"properties": {
		"value": {
			"type": "array",
			"items": {"type": "object"}
		},
		"@odata.nextLink": {"type": ["string", "null"]},
		"nextPageLink": {"type": ["string", "null"]}
	}
}`

var envelopeSchema = jsonschema.MustCompileString("envelope.json", envelopeSchemaJSON)

type envelope struct {
	Value        []Record   `json:"value"`
	ODataNext    *string    `json:"@odata.nextLink"`
	NextPageLink *string    `json:"nextPageLink"`
}

func (e *envelope) nextLink() string {
	if e.ODataNext != nil && *e.ODataNext != "" {
		return *e.ODataNext
	}
	if e.NextPageLink != nil {
		return *e.NextPageLink
	}
	return ""
}

// decodeEnvelope validates body against the envelope schema and splits out the records.
// Records stay raw; their fields are typed later by Record.Decode.
func decodeEnvelope(body []byte) (*envelope, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, &EnvelopeError{Err: fmt.Errorf("body is not JSON: %w", err)}
	}

	if err := envelopeSchema.Validate(raw); err != nil {
		return nil, &EnvelopeError{Err: err}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &EnvelopeError{Err: fmt.Errorf("decode envelope: %w", err)}
	}
	return &env, nil
}
