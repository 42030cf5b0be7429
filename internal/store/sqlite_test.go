package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func insertTestLeads(t *testing.T, st *SQLiteStore, workorderID string, n int) []model.Lead {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	leads := make([]model.Lead, 0, n)
	for i := 0; i < n; i++ {
		leads = append(leads, model.Lead{
			ID:          string(rune('a'+i)) + "-lead",
			WorkorderID: workorderID,
			Fields:      map[string]string{"company": "Co", "website": "co.example"},
			CompanyName: "Co",
			Status:      model.StatusUnchecked,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		})
	}
	require.NoError(t, st.InsertLeads(context.Background(), leads))
	return leads
}

func TestSQLite_Workorder_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.xlsx")
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, model.WorkorderUploaded, w.Status)

	got, err := st.GetWorkorder(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "batch.xlsx", got.Filename)
	assert.Equal(t, model.WorkorderUploaded, got.Status)
}

func TestSQLite_Workorder_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetWorkorder(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workorder not found")
}

func TestSQLite_Workorder_StatusTransitions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.csv")
	require.NoError(t, err)

	for _, status := range []model.WorkorderStatus{
		model.WorkorderProcessing, model.WorkorderComplete,
	} {
		require.NoError(t, st.UpdateWorkorderStatus(ctx, w.ID, status))
		got, err := st.GetWorkorder(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}
}

func TestSQLite_Workorder_UpdateStatusMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateWorkorderStatus(context.Background(), "missing", model.WorkorderFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workorder not found")
}

func TestSQLite_ListWorkorders(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateWorkorder(ctx, "first.csv")
	require.NoError(t, err)
	second, err := st.CreateWorkorder(ctx, "second.csv")
	require.NoError(t, err)

	list, err := st.ListWorkorders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	ids := []string{list[0].ID, list[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}

func TestSQLite_InsertLeads_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.csv")
	require.NoError(t, err)
	insertTestLeads(t, st, w.ID, 3)

	leads, err := st.LeadsByWorkorder(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, leads, 3)

	assert.Equal(t, map[string]string{"company": "Co", "website": "co.example"}, leads[0].Fields)
	assert.Equal(t, model.StatusUnchecked, leads[0].Status)
	assert.Nil(t, leads[0].Cluster)
	assert.Nil(t, leads[0].DisplayOrder)
	assert.Empty(t, leads[0].Embedding)
}

func TestSQLite_LeadsByWorkorder_InsertionOrderWithoutRanking(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.csv")
	require.NoError(t, err)
	inserted := insertTestLeads(t, st, w.ID, 3)

	leads, err := st.LeadsByWorkorder(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	for i := range inserted {
		assert.Equal(t, inserted[i].ID, leads[i].ID)
	}
}

func TestSQLite_SetDisplayOrder_ReordersLeads(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.csv")
	require.NoError(t, err)
	inserted := insertTestLeads(t, st, w.ID, 3)

	// Reverse the insertion order.
	order := []string{inserted[2].ID, inserted[1].ID, inserted[0].ID}
	require.NoError(t, st.SetDisplayOrder(ctx, w.ID, order))

	leads, err := st.LeadsByWorkorder(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	for i, id := range order {
		assert.Equal(t, id, leads[i].ID)
		require.NotNil(t, leads[i].DisplayOrder)
		assert.Equal(t, i, *leads[i].DisplayOrder)
	}
}

func TestSQLite_SetDisplayOrder_UnrankedSortLast(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.csv")
	require.NoError(t, err)
	inserted := insertTestLeads(t, st, w.ID, 3)

	// Rank only the last-inserted lead.
	require.NoError(t, st.SetDisplayOrder(ctx, w.ID, []string{inserted[2].ID}))

	leads, err := st.LeadsByWorkorder(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, inserted[2].ID, leads[0].ID)
	assert.Nil(t, leads[1].DisplayOrder)
	assert.Nil(t, leads[2].DisplayOrder)
}

func TestSQLite_UpdateLeadStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.csv")
	require.NoError(t, err)
	inserted := insertTestLeads(t, st, w.ID, 1)

	require.NoError(t, st.UpdateLeadStatus(ctx, inserted[0].ID, model.StatusConverted))

	got, err := st.GetLead(ctx, inserted[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConverted, got.Status)
}

func TestSQLite_UpdateLeadStatus_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateLeadStatus(context.Background(), "missing", model.StatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead not found")
}

func TestSQLite_UpdateLeadEnrichment(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.csv")
	require.NoError(t, err)
	inserted := insertTestLeads(t, st, w.ID, 1)

	emb := []byte{0x00, 0x00, 0x80, 0x3f}
	err = st.UpdateLeadEnrichment(ctx, inserted[0].ID, "about the company", `{"industry":"SaaS"}`, emb)
	require.NoError(t, err)

	got, err := st.GetLead(ctx, inserted[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "about the company", got.RawText)
	assert.Equal(t, `{"industry":"SaaS"}`, got.Persona)
	assert.Equal(t, emb, got.Embedding)
	assert.True(t, got.HasEmbedding())
}

func TestSQLite_UpdateLeadEnrichment_EmptyResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.csv")
	require.NoError(t, err)
	inserted := insertTestLeads(t, st, w.ID, 1)

	// A lead whose acquisition chain found nothing stays blank.
	require.NoError(t, st.UpdateLeadEnrichment(ctx, inserted[0].ID, "", "", nil))

	got, err := st.GetLead(ctx, inserted[0].ID)
	require.NoError(t, err)
	assert.Empty(t, got.RawText)
	assert.Empty(t, got.Persona)
	assert.False(t, got.HasEmbedding())
}

func TestSQLite_SetClusters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	w, err := st.CreateWorkorder(ctx, "batch.csv")
	require.NoError(t, err)
	inserted := insertTestLeads(t, st, w.ID, 3)

	c0, c1 := 0, 1
	err = st.SetClusters(ctx, []ClusterAssignment{
		{LeadID: inserted[0].ID, Cluster: &c0},
		{LeadID: inserted[1].ID, Cluster: &c0},
		{LeadID: inserted[2].ID, Cluster: &c1},
	})
	require.NoError(t, err)

	leads, err := st.LeadsByWorkorder(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	require.NotNil(t, leads[0].Cluster)
	assert.Equal(t, 0, *leads[0].Cluster)
	require.NotNil(t, leads[2].Cluster)
	assert.Equal(t, 1, *leads[2].Cluster)
}

func TestSQLite_GetLead_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetLead(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead not found")
}
