package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leads-cli/internal/db"
	"github.com/sells-group/leads-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_workorder":        `INSERT INTO workorders (id, filename, status, uploaded_at) VALUES ($1, $2, $3, $4)`,
	"update_workorder_status": `UPDATE workorders SET status = $1 WHERE id = $2`,
	"get_workorder":           `SELECT id, filename, status, uploaded_at FROM workorders WHERE id = $1`,
	"update_lead_status":      `UPDATE leads SET status = $1 WHERE id = $2`,
	"update_lead_enrichment":  `UPDATE leads SET raw_text = $1, persona = $2, embedding = $3 WHERE id = $4`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS workorders (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	filename    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'uploaded',
	uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	workorder_id  TEXT NOT NULL REFERENCES workorders(id),
	fields        JSONB NOT NULL,
	company_name  TEXT NOT NULL DEFAULT '',
	raw_text      TEXT,
	persona       TEXT,
	embedding     BYTEA,
	cluster       INTEGER,
	status        TEXT NOT NULL DEFAULT 'unchecked',
	display_order INTEGER,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_workorders_status ON workorders(status);
CREATE INDEX IF NOT EXISTS idx_leads_workorder_id ON leads(workorder_id);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_workorder_order ON leads(workorder_id, display_order);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateWorkorder(ctx context.Context, filename string) (*model.Workorder, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO workorders (id, filename, status, uploaded_at) VALUES ($1, $2, $3, $4)`,
		id, filename, string(model.WorkorderUploaded), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert workorder")
	}

	return &model.Workorder{
		ID:         id,
		Filename:   filename,
		Status:     model.WorkorderUploaded,
		UploadedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateWorkorderStatus(ctx context.Context, workorderID string, status model.WorkorderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workorders SET status = $1 WHERE id = $2`,
		string(status), workorderID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update workorder status %s", workorderID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("workorder not found: %s", workorderID)
	}
	return nil
}

func (s *PostgresStore) GetWorkorder(ctx context.Context, workorderID string) (*model.Workorder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, filename, status, uploaded_at FROM workorders WHERE id = $1`,
		workorderID,
	)

	var w model.Workorder
	err := row.Scan(&w.ID, &w.Filename, &w.Status, &w.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("workorder not found: %s", workorderID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get workorder")
	}
	return &w, nil
}

func (s *PostgresStore) ListWorkorders(ctx context.Context) ([]model.Workorder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, status, uploaded_at FROM workorders ORDER BY uploaded_at DESC, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list workorders")
	}
	defer rows.Close()

	var workorders []model.Workorder
	for rows.Next() {
		var w model.Workorder
		if err := rows.Scan(&w.ID, &w.Filename, &w.Status, &w.UploadedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan workorder")
		}
		workorders = append(workorders, w)
	}
	return workorders, eris.Wrap(rows.Err(), "postgres: list workorders iterate")
}

var leadCopyColumns = []string{
	"id", "workorder_id", "fields", "company_name", "raw_text", "persona",
	"embedding", "cluster", "status", "display_order", "created_at",
}

// InsertLeads bulk-inserts leads via the COPY protocol, which is atomic.
func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(leads))
	for i := range leads {
		l := &leads[i]
		fieldsJSON, err := json.Marshal(l.Fields)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal fields for lead %s", l.ID)
		}
		rows = append(rows, []any{
			l.ID, l.WorkorderID, fieldsJSON, l.CompanyName,
			textOrNil(l.RawText), textOrNil(l.Persona), l.Embedding,
			intOrNil(l.Cluster), string(l.Status), intOrNil(l.DisplayOrder), l.CreatedAt,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "leads", leadCopyColumns, rows)
	return eris.Wrap(err, "postgres: insert leads")
}

const postgresLeadColumns = `id, workorder_id, fields, company_name, raw_text, persona, embedding, cluster, status, display_order, created_at`

func (s *PostgresStore) LeadsByWorkorder(ctx context.Context, workorderID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresLeadColumns+` FROM leads WHERE workorder_id = $1
		 ORDER BY display_order NULLS LAST, created_at, id`,
		workorderID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: leads for workorder %s", workorderID)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: leads iterate")
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresLeadColumns+` FROM leads WHERE id = $1`,
		leadID,
	)
	l, err := scanPgLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("lead not found: %s", leadID)
	}
	return l, err
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, leadID string, status model.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1 WHERE id = $2`,
		string(status), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead status %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) UpdateLeadEnrichment(ctx context.Context, leadID string, rawText, persona string, embedding []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET raw_text = $1, persona = $2, embedding = $3 WHERE id = $4`,
		textOrNil(rawText), textOrNil(persona), embedding, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead enrichment %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) SetClusters(ctx context.Context, assignments []ClusterAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin set clusters")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, a := range assignments {
		if _, err := tx.Exec(ctx,
			`UPDATE leads SET cluster = $1 WHERE id = $2`,
			intOrNil(a.Cluster), a.LeadID,
		); err != nil {
			return eris.Wrapf(err, "postgres: set cluster for lead %s", a.LeadID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit set clusters")
}

func (s *PostgresStore) SetDisplayOrder(ctx context.Context, workorderID string, orderedLeadIDs []string) error {
	if len(orderedLeadIDs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin set display order")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i, id := range orderedLeadIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE leads SET display_order = $1 WHERE id = $2 AND workorder_id = $3`,
			i, id, workorderID,
		); err != nil {
			return eris.Wrapf(err, "postgres: set display order for lead %s", id)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit set display order")
}

func scanPgLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var fieldsJSON []byte
	var rawText, persona *string
	var cluster, displayOrder *int

	err := row.Scan(&l.ID, &l.WorkorderID, &fieldsJSON, &l.CompanyName,
		&rawText, &persona, &l.Embedding, &cluster, &l.Status, &displayOrder, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan lead")
	}

	if err := json.Unmarshal(fieldsJSON, &l.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal lead fields")
	}
	if rawText != nil {
		l.RawText = *rawText
	}
	if persona != nil {
		l.Persona = *persona
	}
	l.Cluster = cluster
	l.DisplayOrder = displayOrder
	return &l, nil
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
