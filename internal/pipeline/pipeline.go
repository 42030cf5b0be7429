// Package pipeline orchestrates the enrichment of a workorder: text
// acquisition, persona synthesis, embedding, and cluster assignment.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/cluster"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

// TextAcquirer produces raw descriptive text for one spreadsheet row.
type TextAcquirer interface {
	Acquire(ctx context.Context, fields map[string]string) string
}

// PersonaGenerator synthesizes a persona JSON string from raw text and the
// original row fields. An empty return means no persona could be produced.
type PersonaGenerator interface {
	Generate(ctx context.Context, rawText string, fields map[string]string) string
}

// EmbeddingProvider converts a persona into packed vector bytes. A nil
// return means no embedding could be produced.
type EmbeddingProvider interface {
	Embed(ctx context.Context, persona string) []byte
}

// Processor runs the enrichment pipeline over a workorder's leads.
type Processor struct {
	store    store.Store
	acquirer TextAcquirer
	personas PersonaGenerator
	embedder EmbeddingProvider
}

// New creates a Processor with all dependencies.
func New(st store.Store, acquirer TextAcquirer, personas PersonaGenerator, embedder EmbeddingProvider) *Processor {
	return &Processor{
		store:    st,
		acquirer: acquirer,
		personas: personas,
		embedder: embedder,
	}
}

// Enrichment is the per-lead pipeline output. Any stage may come back
// empty; later stages are skipped once a stage produces nothing.
type Enrichment struct {
	RawText   string
	Persona   string
	Embedding []byte
}

// EnrichLead runs acquisition, persona synthesis, and embedding for one
// lead's row fields. Failures degrade to empty values rather than errors so
// one unreachable website never aborts a whole workorder.
func (p *Processor) EnrichLead(ctx context.Context, fields map[string]string) Enrichment {
	var e Enrichment

	e.RawText = p.acquirer.Acquire(ctx, fields)
	e.Persona = p.personas.Generate(ctx, e.RawText, fields)
	if e.Persona == "" {
		return e
	}
	e.Embedding = p.embedder.Embed(ctx, e.Persona)
	return e
}

// ProcessWorkorder enriches every lead in the workorder sequentially, then
// assigns cluster labels across the batch. The workorder moves
// uploaded -> processing -> complete, or to failed if persistence breaks.
func (p *Processor) ProcessWorkorder(ctx context.Context, workorderID string) error {
	log := zap.L().With(zap.String("workorder_id", workorderID))
	log.Info("pipeline: starting workorder")

	if err := p.store.UpdateWorkorderStatus(ctx, workorderID, model.WorkorderProcessing); err != nil {
		return eris.Wrap(err, "pipeline: mark processing")
	}

	leads, err := p.store.LeadsByWorkorder(ctx, workorderID)
	if err != nil {
		p.markFailed(ctx, workorderID)
		return eris.Wrap(err, "pipeline: load leads")
	}

	for i := range leads {
		l := &leads[i]
		start := time.Now()

		e := p.EnrichLead(ctx, l.Fields)
		if err := p.store.UpdateLeadEnrichment(ctx, l.ID, e.RawText, e.Persona, e.Embedding); err != nil {
			p.markFailed(ctx, workorderID)
			return eris.Wrapf(err, "pipeline: save enrichment for lead %s", l.ID)
		}
		l.RawText = e.RawText
		l.Persona = e.Persona
		l.Embedding = e.Embedding

		log.Info("pipeline: lead enriched",
			zap.String("lead_id", l.ID),
			zap.String("company", l.CompanyName),
			zap.Bool("has_persona", e.Persona != ""),
			zap.Bool("has_embedding", len(e.Embedding) > 0),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}

	if err := p.assignClusters(ctx, leads); err != nil {
		p.markFailed(ctx, workorderID)
		return err
	}

	if err := p.store.UpdateWorkorderStatus(ctx, workorderID, model.WorkorderComplete); err != nil {
		return eris.Wrap(err, "pipeline: mark complete")
	}
	log.Info("pipeline: workorder complete", zap.Int("leads", len(leads)))
	return nil
}

// assignClusters labels the batch from its persona embeddings and persists
// the result in one transaction.
func (p *Processor) assignClusters(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	embeddings := make([][]byte, len(leads))
	for i := range leads {
		embeddings[i] = leads[i].Embedding
	}

	labels := cluster.Assign(embeddings)

	assignments := make([]store.ClusterAssignment, len(leads))
	for i := range leads {
		assignments[i] = store.ClusterAssignment{LeadID: leads[i].ID, Cluster: labels[i]}
	}

	return eris.Wrap(p.store.SetClusters(ctx, assignments), "pipeline: set clusters")
}

func (p *Processor) markFailed(ctx context.Context, workorderID string) {
	if err := p.store.UpdateWorkorderStatus(ctx, workorderID, model.WorkorderFailed); err != nil {
		zap.L().Warn("pipeline: failed to mark workorder failed",
			zap.String("workorder_id", workorderID), zap.Error(err))
	}
}
