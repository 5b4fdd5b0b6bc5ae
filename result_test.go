package mcp_test

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"

	mcp "github.com/nakad-pixel/Mcpclient"
)

func TestParseToolResult(t *testing.T) {
	type testCase struct {
		name     string
		raw      string
		wantType mcp.ToolResult
		wantText string
	}

	testCases := []testCase{
		{
			name:     "null",
			raw:      `null`,
			wantType: mcp.NullResult{},
			wantText: "No result",
		},
		{
			name:     "empty",
			raw:      ``,
			wantType: mcp.NullResult{},
			wantText: "No result",
		},
		{
			name:     "bare string",
			raw:      `"hello"`,
			wantType: mcp.TextResult{},
			wantText: "hello",
		},
		{
			name:     "content list of text items",
			raw:      `{"content":[{"type":"text","text":"line 1"},{"type":"text","text":"line 2"}]}`,
			wantType: mcp.ContentListResult{},
			wantText: "line 1\nline 2",
		},
		{
			name:     "content list with non text item",
			raw:      `{"content":[{"type":"text","text":"a"},{"type":"image","data":"AAA","mimeType":"image/png"}]}`,
			wantType: mcp.ContentListResult{},
			wantText: "a\n{\"type\":\"image\",\"data\":\"AAA\",\"mimeType\":\"image/png\"}",
		},
		{
			name:     "content item without type but with text",
			raw:      `{"content":[{"text":"loose"}]}`,
			wantType: mcp.ContentListResult{},
			wantText: "loose",
		},
		{
			name:     "text item with empty text and a resource item",
			raw:      `{"content":[{"type":"text","text":""},{"type":"resource","resource":{"uri":"file:///a"}}]}`,
			wantType: mcp.ContentListResult{},
			wantText: "\n{\"type\":\"resource\",\"resource\":{\"uri\":\"file:///a\"}}",
		},
		{
			name:     "empty content list",
			raw:      `{"content":[]}`,
			wantType: mcp.ContentListResult{},
			wantText: "",
		},
		{
			name:     "content string",
			raw:      `{"content":"plain"}`,
			wantType: mcp.ContentStringResult{},
			wantText: "plain",
		},
		{
			name:     "structured object",
			raw:      `{"temperature": 21.5, "unit": "C"}`,
			wantType: mcp.StructuredResult{},
			wantText: `{"temperature":21.5,"unit":"C"}`,
		},
		{
			name:     "content object falls back to structured",
			raw:      `{"content":{"a":1}}`,
			wantType: mcp.StructuredResult{},
			wantText: `{"content":{"a":1}}`,
		},
		{
			name:     "number",
			raw:      `42`,
			wantType: mcp.StructuredResult{},
			wantText: `42`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := mcp.ParseToolResult(json.RawMessage(tc.raw))
			assert.IsType(t, tc.wantType, got)
			assert.Equal(t, tc.wantText, got.Text())
		})
	}
}

func TestToolResultFields(t *testing.T) {
	r := mcp.ParseToolResult(json.RawMessage(`{"response":"Paris","confidence":0.8,"text":""}`))

	s, ok := mcp.StringField(r, "response")
	assert.True(t, ok)
	assert.Equal(t, "Paris", s)

	_, ok = mcp.StringField(r, "text")
	assert.False(t, ok, "empty string is not a usable field")

	f, ok := mcp.NumberField(r, "confidence")
	assert.True(t, ok)
	assert.InDelta(t, 0.8, f, 1e-9)

	_, ok = mcp.NumberField(r, "response")
	assert.False(t, ok)

	_, ok = mcp.NumberField(mcp.ParseToolResult(json.RawMessage(`"x"`)), "confidence")
	assert.False(t, ok)
}

func TestContentListResult_IsError(t *testing.T) {
	r := mcp.ParseToolResult(json.RawMessage(`{"content":[{"type":"text","text":"boom"}],"isError":true}`))
	list, ok := r.(mcp.ContentListResult)
	if assert.True(t, ok) {
		assert.True(t, list.IsError)
		assert.Equal(t, "boom", list.Text())
	}
}
