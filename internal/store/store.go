// Package store provides persistence for workorders and leads with SQLite
// and PostgreSQL backends.
package store

import (
	"context"

	"github.com/sells-group/leads-cli/internal/model"
)

// ClusterAssignment pairs a lead with its cluster label. A nil Cluster
// clears the label (the lead had no embedding to cluster on).
type ClusterAssignment struct {
	LeadID  string
	Cluster *int
}

// Store defines the persistence interface for the enrichment pipeline.
type Store interface {
	// Workorders
	CreateWorkorder(ctx context.Context, filename string) (*model.Workorder, error)
	UpdateWorkorderStatus(ctx context.Context, workorderID string, status model.WorkorderStatus) error
	GetWorkorder(ctx context.Context, workorderID string) (*model.Workorder, error)
	ListWorkorders(ctx context.Context) ([]model.Workorder, error)

	// Leads
	InsertLeads(ctx context.Context, leads []model.Lead) error
	LeadsByWorkorder(ctx context.Context, workorderID string) ([]model.Lead, error)
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	UpdateLeadStatus(ctx context.Context, leadID string, status model.Status) error
	UpdateLeadEnrichment(ctx context.Context, leadID string, rawText, persona string, embedding []byte) error
	SetClusters(ctx context.Context, assignments []ClusterAssignment) error
	SetDisplayOrder(ctx context.Context, workorderID string, orderedLeadIDs []string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
