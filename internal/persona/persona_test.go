package persona

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/pkg/anthropic"
)

// fakeClient returns a canned response and records the request.
type fakeClient struct {
	resp *anthropic.MessageResponse
	err  error
	req  anthropic.MessageRequest
}

func (f *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func textResponse(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s}},
	}
}

func TestGenerate_FencedResponse(t *testing.T) {
	fc := &fakeClient{resp: textResponse("```json{\"industry\":\"SaaS\",\"notes\":\"\"}```")}
	s := NewSynthesizer(fc, "claude-haiku-4-5-20251001", 600)

	got := s.Generate(context.Background(), "We sell SaaS products to enterprises.", nil)
	assert.Equal(t, `{"industry":"SaaS"}`, got)
}

func TestGenerate_PromptContract(t *testing.T) {
	fc := &fakeClient{resp: textResponse(`{}`)}
	s := NewSynthesizer(fc, "claude-haiku-4-5-20251001", 600)

	s.Generate(context.Background(), "some   webpage\n\ntext", map[string]string{"Company": "Acme"})

	require.Len(t, fc.req.Messages, 1)
	prompt := fc.req.Messages[0].Content
	assert.Contains(t, prompt, "at least 2 direct quotes")
	assert.Contains(t, prompt, "ONLY IF MENTIONED IN THE TEXT OR DATA")
	assert.Contains(t, prompt, "Webpage Text: some webpage text")
	assert.Contains(t, prompt, `"Company":"Acme"`)
	assert.Equal(t, "You are a B2B marketing analyst.", fc.req.System)
	assert.EqualValues(t, 600, fc.req.MaxTokens)
	require.NotNil(t, fc.req.Temperature)
	assert.Equal(t, 0.7, *fc.req.Temperature)
}

func TestGenerate_EmptyTextSkips(t *testing.T) {
	fc := &fakeClient{resp: textResponse(`{}`)}
	s := NewSynthesizer(fc, "m", 600)
	assert.Empty(t, s.Generate(context.Background(), "", nil))
	assert.Empty(t, fc.req.Messages, "client must not be called without text")
}

func TestGenerate_NilClientSkips(t *testing.T) {
	s := NewSynthesizer(nil, "m", 600)
	assert.Empty(t, s.Generate(context.Background(), "text", nil))
}

func TestGenerate_ServiceErrorYieldsEmpty(t *testing.T) {
	fc := &fakeClient{err: eris.New("api down")}
	s := NewSynthesizer(fc, "m", 600)
	assert.Empty(t, s.Generate(context.Background(), "text", nil))
}

func TestSanitize_DropsEmptyValues(t *testing.T) {
	in := `{"industry":"SaaS","notes":"","tags":[],"extra":{},"missing":null,"size":"50-100"}`
	got := Sanitize(in)
	assert.JSONEq(t, `{"industry":"SaaS","size":"50-100"}`, got)
}

func TestSanitize_KeepsNonEmptyCollections(t *testing.T) {
	in := `{"quotes":["We build rockets."],"meta":{"region":"EU"}}`
	got := Sanitize(in)
	assert.JSONEq(t, in, got)
}

func TestSanitize_MalformedPassesThrough(t *testing.T) {
	in := "The company appears to be a SaaS vendor."
	assert.Equal(t, in, Sanitize(in))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeWhitespace("  a\t\tb\n\nc  "))
}
