package mcp

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
)

// ToolResult is the tagged union of the result shapes MCP servers return from
// tools/call. The variants are NullResult, TextResult, ContentListResult,
// ContentStringResult and StructuredResult; ParseToolResult picks one.
type ToolResult interface {
	// Text renders the result as the canonical text form.
	Text() string
	// Raw returns the JSON the variant was parsed from.
	Raw() json.RawMessage

	isToolResult()
}

// NullResult is a missing or empty result.
type NullResult struct{}

// TextResult is a bare JSON string.
type TextResult struct {
	Value string
	raw   json.RawMessage
}

// ContentListResult is an object whose content member is an array of items.
type ContentListResult struct {
	Items   []json.RawMessage
	IsError bool
	raw     json.RawMessage
}

// ContentStringResult is an object whose content member is a string.
type ContentStringResult struct {
	Value string
	raw   json.RawMessage
}

// StructuredResult is any other JSON value.
type StructuredResult struct {
	raw json.RawMessage
}

const noResultText = "No result"

// ParseToolResult classifies raw into its ToolResult variant.
func ParseToolResult(raw json.RawMessage) ToolResult {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" || string(trimmed) == `""` {
		return NullResult{}
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return TextResult{Value: s, raw: trimmed}
		}
	case '{':
		var obj struct {
			Content json.RawMessage `json:"content"`
			IsError bool            `json:"isError"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			break
		}
		content := bytes.TrimSpace(obj.Content)
		if len(content) == 0 {
			break
		}
		switch content[0] {
		case '[':
			var items []json.RawMessage
			if err := json.Unmarshal(content, &items); err == nil {
				return ContentListResult{Items: items, IsError: obj.IsError, raw: trimmed}
			}
		case '"':
			var s string
			if err := json.Unmarshal(content, &s); err == nil {
				return ContentStringResult{Value: s, raw: trimmed}
			}
		}
	}

	return StructuredResult{raw: trimmed}
}

// Text returns "No result".
func (NullResult) Text() string { return noResultText }

// Raw returns JSON null.
func (NullResult) Raw() json.RawMessage { return json.RawMessage("null") }

func (NullResult) isToolResult() {}

// Text returns the string unchanged.
func (r TextResult) Text() string { return r.Value }

// Raw returns the JSON string.
func (r TextResult) Raw() json.RawMessage { return r.raw }

func (TextResult) isToolResult() {}

// Text joins the items with newlines. An item of type text, or any item carrying a
// non-empty text member, contributes that text; other items contribute their JSON.
func (r ContentListResult) Text() string {
	parts := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		parts = append(parts, contentItemText(item))
	}
	return strings.Join(parts, "\n")
}

// Raw returns the whole result object.
func (r ContentListResult) Raw() json.RawMessage { return r.raw }

func (ContentListResult) isToolResult() {}

// Text returns the content string unchanged.
func (r ContentStringResult) Text() string { return r.Value }

// Raw returns the whole result object.
func (r ContentStringResult) Raw() json.RawMessage { return r.raw }

func (ContentStringResult) isToolResult() {}

// Text returns the compact JSON form of the result.
func (r StructuredResult) Text() string { return compactJSON(r.raw) }

// Raw returns the JSON value.
func (r StructuredResult) Raw() json.RawMessage { return r.raw }

func (StructuredResult) isToolResult() {}

// StringField returns the named top level member of an object result when it is a
// non-empty string.
func StringField(r ToolResult, name string) (string, bool) {
	v, ok := field(r, name)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// NumberField returns the named top level member of an object result when it is a
// JSON number.
func NumberField(r ToolResult, name string) (float64, bool) {
	v, ok := field(r, name)
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	return f, true
}

func field(r ToolResult, name string) (json.RawMessage, bool) {
	raw := bytes.TrimSpace(r.Raw())
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	v, ok := obj[name]
	return v, ok
}

func contentItemText(item json.RawMessage) string {
	var c Content
	if err := json.Unmarshal(item, &c); err == nil {
		if c.Type == ContentTypeText || c.Text != "" {
			return c.Text
		}
	}
	return compactJSON(item)
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
