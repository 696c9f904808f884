// Package envelope unifies the four reply shapes a reasoning collaborator
// may return into one extraction function, and gives callers that expect
// a specific JSON object a lenient decode that tolerates the model
// wrapping it in prose or markdown fencing. The shapes mirror the
// OpenAI-compatible /v1/chat/completions response the gpt-oss gateway
// speaks, plus the looser shapes hand-rolled collaborators tend to use.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// openAIShape is the vLLM/OpenAI-compatible /v1/chat/completions response.
type openAIShape struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// directMessageShape is a reply that puts the text directly under "message".
type directMessageShape struct {
	Message string `json:"message"`
}

// directResponseShape is a reply that puts the text directly under
// "response".
type directResponseShape struct {
	Response string `json:"response"`
}

// ExtractText extracts the model's reply text from raw, trying each known
// shape in order: OpenAI-style choices[0].message.content, a direct
// "message" field, a direct "response" field, and finally a raw JSON
// string. It returns an error only when raw matches none of the four
// shapes.
func ExtractText(raw json.RawMessage) (string, error) {
	var oai openAIShape
	if err := json.Unmarshal(raw, &oai); err == nil && len(oai.Choices) > 0 && oai.Choices[0].Message.Content != "" {
		return oai.Choices[0].Message.Content, nil
	}

	var dm directMessageShape
	if err := json.Unmarshal(raw, &dm); err == nil && dm.Message != "" {
		return dm.Message, nil
	}

	var dr directResponseShape
	if err := json.Unmarshal(raw, &dr); err == nil && dr.Response != "" {
		return dr.Response, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}

	return "", fmt.Errorf("envelope: raw reply matches none of the known shapes: %s", truncate(raw, 200))
}

// ErrDecodeFailed is wrapped into the error DecodeLenient returns when raw
// holds no JSON object it can decode into v, even after stripping
// surrounding prose. Callers use errors.Is against this sentinel to tell
// a malformed reply apart from a transport failure.
var ErrDecodeFailed = errors.New("envelope: reply did not decode as JSON")

// DecodeLenient decodes raw into v, first trying raw as-is and, if that
// fails, extracting the first brace-balanced {...} object from
// surrounding prose or markdown fencing and decoding that instead. This
// is the wire-boundary counterpart to ExtractText: it belongs wherever a
// reply is first read off the transport, not downstream of a call that
// already returned clean, typed data.
func DecodeLenient(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}

	obj := extractBalancedObject(string(raw))
	if obj == "" {
		return fmt.Errorf("%w: %s", ErrDecodeFailed, truncate(raw, 200))
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("%w: %s", ErrDecodeFailed, truncate(raw, 200))
	}
	return nil
}

// extractBalancedObject scans s for the first brace-balanced {...} span,
// tolerating braces nested inside string literals.
func extractBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, braces don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncate(raw json.RawMessage, n int) string {
	s := string(raw)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
