package foundry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

// ExtractOutputText pulls the assistant text out of a responses envelope.
// Two shapes are tolerated: a top-level "output_text" string, or the nested
// output[*].content[*] list where parts with type "output_text" are joined
// with newlines. An absent payload yields the empty string.
func ExtractOutputText(envelope json.RawMessage) string {
	var top struct {
		OutputText any `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.Unmarshal(envelope, &top); err != nil {
		return ""
	}
	if s, ok := top.OutputText.(string); ok && s != "" {
		return s
	}
	var parts []string
	for _, item := range top.Output {
		for _, c := range item.Content {
			if c.Type == "output_text" && c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// StripCodeFences removes a leading markdown fence line and the trailing
// fence, leaving the inner payload.
func StripCodeFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if nl := strings.Index(t, "\n"); nl >= 0 {
		t = t[nl+1:]
	} else {
		return ""
	}
	if end := strings.LastIndex(t, "```"); end >= 0 {
		t = t[:end]
	}
	return strings.TrimSpace(t)
}

// ParseJSONOutput extracts the output text, strips fences, validates the
// payload against schema when non-nil, and decodes it into T.
func ParseJSONOutput[T any](envelope json.RawMessage, schema *jsonschema.Schema) (T, error) {
	var out T
	text := StripCodeFences(ExtractOutputText(envelope))
	if text == "" {
		return out, fmt.Errorf("%w: empty model output", domain.ErrSchemaInvalid)
	}
	if schema != nil {
		var doc any
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return out, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
		}
		if err := schema.Validate(doc); err != nil {
			return out, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
		}
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	return out, nil
}
