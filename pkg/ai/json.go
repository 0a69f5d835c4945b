package ai

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"google.golang.org/genai"
)

// unmarshalJSON unmarshals data into v, repairing malformed JSON (trailing
// commas, markdown fences, truncated objects) when the first attempt fails
// with a syntax error.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

var summarySchema = func() *jsonschema.Schema {
	s, err := jsonschema.For[Summary](nil)
	if err != nil {
		panic(fmt.Sprintf("ai: summary schema: %v", err))
	}
	return s
}()

// parseSummary decodes a model's structured summary and rejects partial
// results.
func parseSummary(raw string) (*Summary, error) {
	var s Summary
	if err := unmarshalJSON([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	s.Title = strings.TrimSpace(s.Title)
	s.Text = strings.TrimSpace(s.Text)
	if s.Title == "" || s.Text == "" {
		return nil, fmt.Errorf("%w: summary title or text missing", ErrEmptyPayload)
	}
	return &s, nil
}

func geminiConvSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       geminiConvSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = geminiConvSchema(prop)
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}

// openAIStrictSchema prepares a schema for OpenAI structured outputs: every
// object closes additionalProperties and lists all properties as required.
func openAIStrictSchema(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil {
		return nil
	}
	s = s.CloneSchemas()
	var walk func(m *jsonschema.Schema)
	walk = func(m *jsonschema.Schema) {
		switch m.Type {
		case "array":
			if m.Items != nil {
				walk(m.Items)
			}
		case "object":
			m.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
			m.Required = slices.Sorted(maps.Keys(m.Properties))
			for _, v := range m.Properties {
				walk(v)
			}
		}
	}
	walk(s)
	return s
}
