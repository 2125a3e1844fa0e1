package foundry

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Structured-output schemas sent with responses requests and used to
// validate the parsed model output locally.

const PlannerSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["slideCount", "outline", "searchQueries", "keyConstraints"],
  "properties": {
    "slideCount": {"type": "integer", "minimum": 1, "maximum": 1},
    "outline": {
      "type": "array",
      "minItems": 1,
      "maxItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["title", "bullets"],
        "properties": {
          "title": {"type": "string"},
          "bullets": {
            "type": "array",
            "minItems": 3,
            "maxItems": 6,
            "items": {"type": "string"}
          }
        }
      }
    },
    "searchQueries": {
      "type": "array",
      "maxItems": 8,
      "items": {"type": "string"}
    },
    "keyConstraints": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

const WebResearchSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["findings", "citations", "usedQueries"],
  "properties": {
    "findings": {"type": "string"},
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["title", "url", "quote"],
        "properties": {
          "title": {"type": "string"},
          "url": {"type": "string"},
          "quote": {"type": "string"}
        }
      }
    },
    "usedQueries": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

const FileResearchSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["snippets", "citations"],
  "properties": {
    "snippets": {
      "type": "array",
      "items": {"type": "string"}
    },
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["fileId", "filename", "snippet"],
        "properties": {
          "fileId": {"type": "string"},
          "filename": {"type": "string"},
          "snippet": {"type": "string"}
        }
      }
    }
  }
}`

const ValidatorSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["ok", "issues", "fixedPromptAppendix"],
  "properties": {
    "ok": {"type": "boolean"},
    "issues": {
      "type": "array",
      "items": {"type": "string"}
    },
    "fixedPromptAppendix": {"type": "string"}
  }
}`

var (
	PlannerSchema      = jsonschema.MustCompileString("planner.json", PlannerSchemaJSON)
	WebResearchSchema  = jsonschema.MustCompileString("web_research.json", WebResearchSchemaJSON)
	FileResearchSchema = jsonschema.MustCompileString("file_research.json", FileResearchSchemaJSON)
	ValidatorSchema    = jsonschema.MustCompileString("validator.json", ValidatorSchemaJSON)
)

// RawSchema returns a schema literal as json.RawMessage for embedding in a
// responses request.
func RawSchema(schemaJSON string) json.RawMessage { return json.RawMessage(schemaJSON) }
