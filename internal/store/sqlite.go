package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leads-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS workorders (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'uploaded',
	uploaded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	workorder_id  TEXT NOT NULL REFERENCES workorders(id),
	fields        TEXT NOT NULL,
	company_name  TEXT NOT NULL DEFAULT '',
	raw_text      TEXT,
	persona       TEXT,
	embedding     BLOB,
	cluster       INTEGER,
	status        TEXT NOT NULL DEFAULT 'unchecked',
	display_order INTEGER,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_workorders_status ON workorders(status);
CREATE INDEX IF NOT EXISTS idx_leads_workorder_id ON leads(workorder_id);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateWorkorder(ctx context.Context, filename string) (*model.Workorder, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workorders (id, filename, status, uploaded_at) VALUES (?, ?, ?, ?)`,
		id, filename, string(model.WorkorderUploaded), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert workorder")
	}

	return &model.Workorder{
		ID:         id,
		Filename:   filename,
		Status:     model.WorkorderUploaded,
		UploadedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateWorkorderStatus(ctx context.Context, workorderID string, status model.WorkorderStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workorders SET status = ? WHERE id = ?`,
		string(status), workorderID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update workorder status %s", workorderID)
	}
	return checkRowsAffected(res, "workorder", workorderID)
}

func (s *SQLiteStore) GetWorkorder(ctx context.Context, workorderID string) (*model.Workorder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, status, uploaded_at FROM workorders WHERE id = ?`,
		workorderID,
	)

	var w model.Workorder
	err := row.Scan(&w.ID, &w.Filename, &w.Status, &w.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("workorder not found: %s", workorderID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan workorder")
	}
	return &w, nil
}

func (s *SQLiteStore) ListWorkorders(ctx context.Context) ([]model.Workorder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, status, uploaded_at FROM workorders ORDER BY uploaded_at DESC, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list workorders")
	}
	defer rows.Close()

	var workorders []model.Workorder
	for rows.Next() {
		var w model.Workorder
		if err := rows.Scan(&w.ID, &w.Filename, &w.Status, &w.UploadedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan workorder")
		}
		workorders = append(workorders, w)
	}
	return workorders, eris.Wrap(rows.Err(), "sqlite: list workorders iterate")
}

// InsertLeads inserts all leads in one transaction so a partially ingested
// workorder never becomes visible.
func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert leads")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (id, workorder_id, fields, company_name, raw_text, persona, embedding, cluster, status, display_order, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert lead")
	}
	defer stmt.Close()

	for i := range leads {
		l := &leads[i]
		fieldsJSON, err := json.Marshal(l.Fields)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal fields for lead %s", l.ID)
		}
		_, err = stmt.ExecContext(ctx,
			l.ID, l.WorkorderID, string(fieldsJSON), l.CompanyName,
			nullString(l.RawText), nullString(l.Persona), l.Embedding,
			nullInt(l.Cluster), string(l.Status), nullInt(l.DisplayOrder), l.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert lead %s", l.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert leads")
}

const sqliteLeadColumns = `id, workorder_id, fields, company_name, raw_text, persona, embedding, cluster, status, display_order, created_at`

// LeadsByWorkorder returns the workorder's leads in display order. Leads
// without a display order sort after ranked ones, by insertion time.
func (s *SQLiteStore) LeadsByWorkorder(ctx context.Context, workorderID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE workorder_id = ?
		 ORDER BY display_order IS NULL, display_order, created_at, id`,
		workorderID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: leads for workorder %s", workorderID)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: leads iterate")
}

func (s *SQLiteStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE id = ?`,
		leadID,
	)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("lead not found: %s", leadID)
	}
	return l, err
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, leadID string, status model.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ? WHERE id = ?`,
		string(status), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead status %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) UpdateLeadEnrichment(ctx context.Context, leadID string, rawText, persona string, embedding []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET raw_text = ?, persona = ?, embedding = ? WHERE id = ?`,
		nullString(rawText), nullString(persona), embedding, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead enrichment %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

// SetClusters writes cluster labels for a whole workorder in one transaction.
func (s *SQLiteStore) SetClusters(ctx context.Context, assignments []ClusterAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin set clusters")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `UPDATE leads SET cluster = ? WHERE id = ?`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare set cluster")
	}
	defer stmt.Close()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, nullInt(a.Cluster), a.LeadID); err != nil {
			return eris.Wrapf(err, "sqlite: set cluster for lead %s", a.LeadID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit set clusters")
}

// SetDisplayOrder persists a complete ranking in one transaction. Position
// is the index in orderedLeadIDs.
func (s *SQLiteStore) SetDisplayOrder(ctx context.Context, workorderID string, orderedLeadIDs []string) error {
	if len(orderedLeadIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin set display order")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `UPDATE leads SET display_order = ? WHERE id = ? AND workorder_id = ?`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare set display order")
	}
	defer stmt.Close()

	for i, id := range orderedLeadIDs {
		if _, err := stmt.ExecContext(ctx, i, id, workorderID); err != nil {
			return eris.Wrapf(err, "sqlite: set display order for lead %s", id)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit set display order")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var fieldsJSON string
	var rawText, persona sql.NullString
	var cluster, displayOrder sql.NullInt64

	err := row.Scan(&l.ID, &l.WorkorderID, &fieldsJSON, &l.CompanyName,
		&rawText, &persona, &l.Embedding, &cluster, &l.Status, &displayOrder, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &l.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal lead fields")
	}
	l.RawText = rawText.String
	l.Persona = persona.String
	if cluster.Valid {
		c := int(cluster.Int64)
		l.Cluster = &c
	}
	if displayOrder.Valid {
		d := int(displayOrder.Int64)
		l.DisplayOrder = &d
	}
	return &l, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
