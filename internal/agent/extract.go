package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/compeek/compeek/internal/llm"
	"github.com/compeek/compeek/internal/sysprompt"
)

const extractMaxTokens = 2048

// ErrNoExtraction is returned when the model answers without any text.
var ErrNoExtraction = errors.New("no response from model")

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

// Extraction is the structured data read from a document image.
type Extraction struct {
	DocumentType string         `json:"documentType"`
	Fields       map[string]any `json:"fields"`
	Confidence   map[string]any `json:"confidence,omitempty"`
}

// ExtractDocument asks the model to read identity fields from an image.
func ExtractDocument(ctx context.Context, client llm.Client, model, base64Data, mimeType string) (*Extraction, error) {
	if model == "" {
		model = DefaultModel
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	resp, err := client.CreateMessage(ctx, &llm.MessageRequest{
		Model:     model,
		MaxTokens: extractMaxTokens,
		Messages: []llm.Message{llm.UserMessage(
			llm.ImageBlock(mimeType, base64Data),
			llm.TextBlock(sysprompt.DocumentExtraction),
		)},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	var text string
	for _, b := range resp.Content {
		if b.Type == llm.BlockText {
			text = b.Text
			break
		}
	}
	if text == "" {
		return nil, ErrNoExtraction
	}
	return ParseExtraction(text)
}

// ParseExtraction decodes a model answer that is either bare JSON or JSON in
// a fenced code block.
func ParseExtraction(text string) (*Extraction, error) {
	payload := text
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		payload = m[1]
	}
	var out Extraction
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &out); err != nil {
		return nil, fmt.Errorf("failed to parse extraction: %w", err)
	}
	if out.DocumentType == "" {
		out.DocumentType = "unknown"
	}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	return &out, nil
}
