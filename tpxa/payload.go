package tpxa

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// PostData is the payload of a post entry.
type PostData struct {
	Extra      map[string]any `json:"extra,omitempty"`
	RawBody    string         `json:"raw_body"`
	RawIntro   string         `json:"raw_intro,omitempty"`
	Parser     string         `json:"parser,omitempty"`
	ParserData map[string]any `json:"parser_data,omitempty"`
}

// PageData is the payload of a page entry.
type PageData struct {
	Extra   map[string]any `json:"extra,omitempty"`
	RawBody string         `json:"raw_body"`
}

// CommentData is the payload of a comment.
type CommentData struct {
	RawBody    string         `json:"raw_body"`
	Parser     string         `json:"parser,omitempty"`
	ParserData map[string]any `json:"parser_data,omitempty"`
}

// EncodePayload serializes v and encodes it as base64 text.
func EncodePayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", NewError(CodeSerialization, err, "failed to encode payload")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayload reverses EncodePayload. Whitespace inside the base64 text is
// ignored, so wrapped encodings decode as well.
func DecodePayload(s string, v any) error {
	data, err := decodeBase64Text(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewError(CodePayloadDecode, err, "payload has malformed structure")
	}
	return nil
}

func decodeBase64Text(s string) ([]byte, error) {
	clean := strings.Join(strings.Fields(s), "")
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, NewError(CodePayloadDecode, err, "value is not valid base64")
	}
	return data, nil
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
