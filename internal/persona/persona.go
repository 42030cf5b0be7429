// Package persona synthesizes structured buyer personas from scraped
// webpage text via the Anthropic Messages API.
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/cost"
	"github.com/sells-group/leads-cli/pkg/anthropic"
)

const systemPrompt = "You are a B2B marketing analyst."

const temperature = 0.7

// Synthesizer generates and sanitizes buyer personas. A nil client
// disables synthesis entirely.
type Synthesizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	costCalc  *cost.Calculator
}

// NewSynthesizer creates a Synthesizer. client may be nil when the service
// is not configured, in which case Generate always returns "".
func NewSynthesizer(client anthropic.Client, model string, maxTokens int) *Synthesizer {
	return &Synthesizer{
		client:    client,
		model:     model,
		maxTokens: int64(maxTokens),
		costCalc:  cost.NewCalculator(cost.DefaultRates()),
	}
}

// Generate produces a sanitized persona JSON string from raw webpage text
// and the lead's original fields. Returns "" when text is absent, the
// service is unconfigured, or the call fails; a failed lead is a normal
// outcome and never stops the batch.
func (s *Synthesizer) Generate(ctx context.Context, rawText string, fields map[string]string) string {
	if rawText == "" || s.client == nil {
		return ""
	}

	temp := temperature
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: buildPrompt(rawText, fields)}},
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Warn("persona: generation failed", zap.Error(err))
		return ""
	}
	resp.Usage.LogUsage(s.model, "persona")
	if est := s.costCalc.Persona(s.model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)); est > 0 {
		zap.L().Debug("persona: estimated cost", zap.Float64("usd", est))
	}

	raw := stripFences(resp.Text())
	if raw == "" {
		return ""
	}
	return Sanitize(raw)
}

// buildPrompt assembles the persona prompt: attributes only if evidenced
// in the text or lead data, at least two direct quotes, JSON-only output.
func buildPrompt(rawText string, fields map[string]string) string {
	context := normalizeWhitespace(rawText)

	var dataContext string
	if len(fields) > 0 {
		if data, err := json.Marshal(fields); err == nil {
			dataContext = fmt.Sprintf("Lead Data: %s\n", data)
		}
	}

	return "Given the following company webpage text and lead data, generate a detailed buyer persona for the company. " +
		"The persona should include: key attributes (such as industry, company size, typical decision makers, goals, mission, vision, etc. ONLY IF MENTIONED IN THE TEXT OR DATA), " +
		"at least 2 direct quotes from the text that support the persona, and present the result as a JSON object with clear key-value pairs. " +
		"Do not include any other text in your response other than the JSON.\n\n" +
		dataContext + "Webpage Text: " + context + "\n\nPersona:"
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses all whitespace runs to single spaces to
// keep prompt size and noise bounded.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripFences removes a Markdown code-fence wrapper and a literal "json"
// language tag from a model response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	return strings.TrimSpace(s)
}

// Sanitize parses a persona string as JSON and drops keys whose values are
// null, empty strings, empty lists, or empty maps, re-serializing the
// filtered object. A string that fails to parse passes through unchanged
// rather than being discarded.
func Sanitize(persona string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(persona), &obj); err != nil {
		return persona
	}

	for k, v := range obj {
		if emptyValue(v) {
			delete(obj, k)
		}
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return persona
	}
	return string(out)
}

func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
