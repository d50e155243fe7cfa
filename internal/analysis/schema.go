package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// insightSchemaJSON describes the types the model must use. Missing fields and
// nulls are allowed and replaced by defaults; wrong types are not.
const insightSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "executive_summary":  {"$ref": "#/$defs/text"},
    "detailed_summary":   {"$ref": "#/$defs/text"},
    "sentiment_score":    {"$ref": "#/$defs/score"},
    "satisfaction_score": {"$ref": "#/$defs/score"},
    "retention_risk":     {"$ref": "#/$defs/score"},
    "confidence_score":   {"$ref": "#/$defs/score"},
    "primary_reason":     {"$ref": "#/$defs/text"},
    "secondary_reasons":  {"$ref": "#/$defs/texts"},
    "answers_structured": {
      "type": ["object", "null"],
      "additionalProperties": {"$ref": "#/$defs/text"}
    },
    "recommendations":    {"$ref": "#/$defs/texts"},
    "action_items":       {"$ref": "#/$defs/texts"},
    "key_quotes":         {"$ref": "#/$defs/texts"},
    "red_flags":          {"$ref": "#/$defs/texts"},
    "positive_feedback":  {"$ref": "#/$defs/texts"}
  },
  "$defs": {
    "text":  {"type": ["string", "null"]},
    "score": {"type": ["number", "null"]},
    "texts": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

var insightSchema = mustCompileSchema(insightSchemaJSON, "insight.schema.json")

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}
