// Package embed converts persona strings into fixed-length vectors and
// handles their binary serialization.
package embed

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/cost"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/pkg/openai"
)

// Embedder produces persona embeddings. A nil client disables embedding.
type Embedder struct {
	client   openai.Client
	costCalc *cost.Calculator
}

// NewEmbedder creates an Embedder. client may be nil when the embedding
// service is not configured, in which case Embed always returns nil.
func NewEmbedder(client openai.Client) *Embedder {
	return &Embedder{
		client:   client,
		costCalc: cost.NewCalculator(cost.DefaultRates()),
	}
}

// Embed returns the serialized embedding for a persona string, or nil when
// the persona is empty, the service is unconfigured, or the call fails.
func (e *Embedder) Embed(ctx context.Context, persona string) []byte {
	if persona == "" || e.client == nil {
		return nil
	}
	res, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*openai.Embedding, error) {
		return e.client.Embed(ctx, persona)
	})
	if err != nil {
		zap.L().Warn("embed: embedding failed", zap.Error(err))
		return nil
	}
	if est := e.costCalc.Embedding(res.Usage.TotalTokens); est > 0 {
		zap.L().Debug("embed: estimated cost", zap.Float64("usd", est))
	}
	return VectorToBytes(res.Vector)
}

// VectorToBytes serializes a vector as a flat sequence of little-endian
// 32-bit floats with no header. The dimensionality must be known to
// deserialize.
func VectorToBytes(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

// BytesToVector deserializes a raw little-endian float32 sequence.
func BytesToVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, eris.Errorf("embed: byte length %d not a multiple of 4", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}
