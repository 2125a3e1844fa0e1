package foundry

import "encoding/json"

// ContentPart is one element of a user message: text or an image data-URL.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Message is a single input message for the responses endpoint.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ResponseRequest describes one responses-endpoint invocation. When
// SchemaName and Schema are set the request demands strict structured output.
type ResponseRequest struct {
	AgentID    string
	Input      []Message
	SchemaName string
	Schema     json.RawMessage
}

// TextMessage builds a single-part user message.
func TextMessage(text string) Message {
	return Message{Role: "user", Content: []ContentPart{{Type: "input_text", Text: text}}}
}

// UserMessage builds a user message with a text part and, when imageDataURL
// is non-empty, an image part carrying the data-URL unchanged.
func UserMessage(text, imageDataURL string) Message {
	parts := []ContentPart{{Type: "input_text", Text: text}}
	if imageDataURL != "" {
		parts = append(parts, ContentPart{Type: "input_image", ImageURL: imageDataURL})
	}
	return Message{Role: "user", Content: parts}
}
