// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists publication records in SQLite. A record is kept
// per NCT number: re-extracting a trial replaces its arms and values, while
// every extraction run is appended to the run history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/trial-extractor/pkg/types"
)

// ErrNotFound is returned when no record exists for an NCT number.
var ErrNotFound = errors.New("record not found")

// sharedArm is the arm_id under which shared field values are stored.
const sharedArm = ""

const schema = `
CREATE TABLE IF NOT EXISTS publications (
	nct_number  TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	trial_name  TEXT NOT NULL DEFAULT '',
	cancer_type TEXT NOT NULL DEFAULT '',
	phase       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	run_id      TEXT NOT NULL DEFAULT '',
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS arms (
	nct_number         TEXT NOT NULL REFERENCES publications(nct_number) ON DELETE CASCADE,
	arm_id             TEXT NOT NULL,
	position           INTEGER NOT NULL,
	generic_name       TEXT NOT NULL DEFAULT '',
	number_of_patients TEXT NOT NULL DEFAULT '',
	safety_event_class TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (nct_number, arm_id)
);

CREATE TABLE IF NOT EXISTS arm_values (
	nct_number TEXT NOT NULL REFERENCES publications(nct_number) ON DELETE CASCADE,
	arm_id     TEXT NOT NULL,
	field      TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (nct_number, arm_id, field)
);

CREATE INDEX IF NOT EXISTS idx_arm_values_field ON arm_values(field);

CREATE TABLE IF NOT EXISTS runs (
	run_id            TEXT PRIMARY KEY,
	nct_number        TEXT NOT NULL,
	document_id       TEXT NOT NULL,
	model             TEXT NOT NULL DEFAULT '',
	arms_discovered   INTEGER NOT NULL DEFAULT 0,
	arms_processed    INTEGER NOT NULL DEFAULT 0,
	total_llm_calls   INTEGER NOT NULL DEFAULT 0,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_cost        REAL NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT '',
	extraction_date   TEXT NOT NULL,
	chunk_issues      TEXT NOT NULL DEFAULT '[]',
	errors            TEXT NOT NULL DEFAULT '[]',
	warnings          TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_runs_nct ON runs(nct_number);

CREATE TABLE IF NOT EXISTS ingest_status (
	path          TEXT PRIMARY KEY,
	file_mod_time TEXT NOT NULL
);
`

// Store manages the record database.
type Store struct {
	db   *sqlx.DB
	path string
}

// Open opens or creates the database at cfg.Path and creates the schema if
// it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	cfg.Defaults()
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: cfg.Path}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

type publicationRow struct {
	NCTNumber  string `db:"nct_number"`
	DocumentID string `db:"document_id"`
	TrialName  string `db:"trial_name"`
	CancerType string `db:"cancer_type"`
	Phase      string `db:"phase"`
	Status     string `db:"status"`
	RunID      string `db:"run_id"`
	UpdatedAt  string `db:"updated_at"`
}

type armRow struct {
	NCTNumber        string `db:"nct_number"`
	ArmID            string `db:"arm_id"`
	Position         int    `db:"position"`
	GenericName      string `db:"generic_name"`
	NumberOfPatients string `db:"number_of_patients"`
	SafetyEventClass string `db:"safety_event_class"`
}

type valueRow struct {
	NCTNumber string `db:"nct_number"`
	ArmID     string `db:"arm_id"`
	Field     string `db:"field"`
	Value     string `db:"value"`
}

type runRow struct {
	RunID            string  `db:"run_id"`
	NCTNumber        string  `db:"nct_number"`
	DocumentID       string  `db:"document_id"`
	Model            string  `db:"model"`
	ArmsDiscovered   int     `db:"arms_discovered"`
	ArmsProcessed    int     `db:"arms_processed"`
	TotalLLMCalls    int     `db:"total_llm_calls"`
	PromptTokens     int64   `db:"prompt_tokens"`
	CompletionTokens int64   `db:"completion_tokens"`
	TotalCost        float64 `db:"total_cost"`
	Status           string  `db:"status"`
	ExtractionDate   string  `db:"extraction_date"`
	ChunkIssues      string  `db:"chunk_issues"`
	Errors           string  `db:"errors"`
	Warnings         string  `db:"warnings"`
}

// Upsert stores rec under its NCT number in one transaction, replacing any
// earlier arms and values for that trial and appending the run. It
// implements extract.Sink.
func (s *Store) Upsert(ctx context.Context, rec *types.PublicationRecord) error {
	if rec.NCTNumber == "" {
		return errors.New("record has no NCT number")
	}

	run, err := toRunRow(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO publications (nct_number, document_id, trial_name, cancer_type, phase, status, run_id, updated_at)
		 VALUES (:nct_number, :document_id, :trial_name, :cancer_type, :phase, :status, :run_id, :updated_at)
		 ON CONFLICT(nct_number) DO UPDATE SET
			document_id=excluded.document_id, trial_name=excluded.trial_name,
			cancer_type=excluded.cancer_type, phase=excluded.phase,
			status=excluded.status, run_id=excluded.run_id, updated_at=excluded.updated_at`,
		publicationRow{
			NCTNumber:  rec.NCTNumber,
			DocumentID: rec.DocumentID,
			TrialName:  rec.TrialName(),
			CancerType: rec.CancerType(),
			Phase:      rec.Phase(),
			Status:     string(rec.Metadata.Status),
			RunID:      rec.Metadata.RunID,
			UpdatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return fmt.Errorf("upserting publication: %w", err)
	}

	for _, q := range []string{
		`DELETE FROM arm_values WHERE nct_number = ?`,
		`DELETE FROM arms WHERE nct_number = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, rec.NCTNumber); err != nil {
			return fmt.Errorf("clearing previous arms: %w", err)
		}
	}

	armStmt, err := tx.PrepareNamedContext(ctx,
		`INSERT INTO arms (nct_number, arm_id, position, generic_name, number_of_patients, safety_event_class)
		 VALUES (:nct_number, :arm_id, :position, :generic_name, :number_of_patients, :safety_event_class)`)
	if err != nil {
		return fmt.Errorf("preparing arm insert: %w", err)
	}
	defer armStmt.Close()

	valStmt, err := tx.PrepareNamedContext(ctx,
		`INSERT INTO arm_values (nct_number, arm_id, field, value) VALUES (:nct_number, :arm_id, :field, :value)`)
	if err != nil {
		return fmt.Errorf("preparing value insert: %w", err)
	}
	defer valStmt.Close()

	insertValues := func(armID string, values map[types.Field]string) error {
		for f, v := range values {
			if _, err := valStmt.ExecContext(ctx, valueRow{
				NCTNumber: rec.NCTNumber, ArmID: armID, Field: string(f), Value: v,
			}); err != nil {
				return fmt.Errorf("inserting %s/%s: %w", armID, f, err)
			}
		}
		return nil
	}

	if err := insertValues(sharedArm, rec.Shared); err != nil {
		return err
	}
	for i, arm := range rec.Arms {
		if _, err := armStmt.ExecContext(ctx, armRow{
			NCTNumber:        rec.NCTNumber,
			ArmID:            arm.ArmID,
			Position:         i,
			GenericName:      arm.GenericName,
			NumberOfPatients: arm.NumberOfPatients,
			SafetyEventClass: string(arm.SafetyEventClass),
		}); err != nil {
			return fmt.Errorf("inserting arm %s: %w", arm.ArmID, err)
		}
		if err := insertValues(arm.ArmID, arm.Values); err != nil {
			return err
		}
	}

	_, err = tx.NamedExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, nct_number, document_id, model, arms_discovered, arms_processed,
			total_llm_calls, prompt_tokens, completion_tokens, total_cost, status, extraction_date,
			chunk_issues, errors, warnings)
		 VALUES (:run_id, :nct_number, :document_id, :model, :arms_discovered, :arms_processed,
			:total_llm_calls, :prompt_tokens, :completion_tokens, :total_cost, :status, :extraction_date,
			:chunk_issues, :errors, :warnings)`, run)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	return tx.Commit()
}

func toRunRow(rec *types.PublicationRecord) (runRow, error) {
	m := rec.Metadata
	issues, err := jsonList(m.ChunkIssues)
	if err != nil {
		return runRow{}, err
	}
	errs, err := jsonList(m.Errors)
	if err != nil {
		return runRow{}, err
	}
	warns, err := jsonList(m.Warnings)
	if err != nil {
		return runRow{}, err
	}
	runID := m.RunID
	if runID == "" {
		runID = rec.NCTNumber + "@" + m.ExtractionDate.UTC().Format(time.RFC3339Nano)
	}
	return runRow{
		RunID:            runID,
		NCTNumber:        rec.NCTNumber,
		DocumentID:       rec.DocumentID,
		Model:            m.Model,
		ArmsDiscovered:   m.ArmsDiscovered,
		ArmsProcessed:    m.ArmsProcessed,
		TotalLLMCalls:    m.TotalLLMCalls,
		PromptTokens:     m.PromptTokens,
		CompletionTokens: m.CompletionTokens,
		TotalCost:        m.TotalCost,
		Status:           string(m.Status),
		ExtractionDate:   m.ExtractionDate.UTC().Format(time.RFC3339Nano),
		ChunkIssues:      issues,
		Errors:           errs,
		Warnings:         warns,
	}, nil
}

func jsonList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding run metadata: %w", err)
	}
	return string(data), nil
}

func (r runRow) metadata() types.Metadata {
	m := types.Metadata{
		RunID:            r.RunID,
		ArmsDiscovered:   r.ArmsDiscovered,
		ArmsProcessed:    r.ArmsProcessed,
		TotalLLMCalls:    r.TotalLLMCalls,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalCost:        r.TotalCost,
		Model:            r.Model,
		Status:           types.ValidationStatus(r.Status),
	}
	m.ExtractionDate, _ = time.Parse(time.RFC3339Nano, r.ExtractionDate)
	_ = json.Unmarshal([]byte(r.ChunkIssues), &m.ChunkIssues)
	_ = json.Unmarshal([]byte(r.Errors), &m.Errors)
	_ = json.Unmarshal([]byte(r.Warnings), &m.Warnings)
	return m
}

// Get returns the stored record for an NCT number with the metadata of its
// latest run.
func (s *Store) Get(ctx context.Context, nct string) (*types.PublicationRecord, error) {
	var pub publicationRow
	err := s.db.GetContext(ctx, &pub, `SELECT * FROM publications WHERE nct_number = ?`, nct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nct)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", nct, err)
	}

	var arms []armRow
	if err := s.db.SelectContext(ctx, &arms,
		`SELECT * FROM arms WHERE nct_number = ? ORDER BY position`, nct); err != nil {
		return nil, fmt.Errorf("loading arms of %s: %w", nct, err)
	}

	var values []valueRow
	if err := s.db.SelectContext(ctx, &values,
		`SELECT * FROM arm_values WHERE nct_number = ?`, nct); err != nil {
		return nil, fmt.Errorf("loading values of %s: %w", nct, err)
	}

	rec := &types.PublicationRecord{
		DocumentID: pub.DocumentID,
		NCTNumber:  pub.NCTNumber,
		Shared:     map[types.Field]string{},
	}
	index := make(map[string]int, len(arms))
	for i, a := range arms {
		index[a.ArmID] = i
		rec.Arms = append(rec.Arms, types.TreatmentArm{
			ArmID:            a.ArmID,
			GenericName:      a.GenericName,
			NumberOfPatients: a.NumberOfPatients,
			SafetyEventClass: types.EventClass(a.SafetyEventClass),
			Values:           map[types.Field]string{},
		})
	}
	for _, v := range values {
		if v.ArmID == sharedArm {
			rec.Shared[types.Field(v.Field)] = v.Value
			continue
		}
		if i, ok := index[v.ArmID]; ok {
			rec.Arms[i].Values[types.Field(v.Field)] = v.Value
		}
	}

	var run runRow
	err = s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE run_id = ?`, pub.RunID)
	switch {
	case err == nil:
		rec.Metadata = run.metadata()
	case errors.Is(err, sql.ErrNoRows):
		rec.Metadata.Status = types.ValidationStatus(pub.Status)
	default:
		return nil, fmt.Errorf("loading run of %s: %w", nct, err)
	}
	return rec, nil
}

// Summary is one row of List.
type Summary struct {
	NCTNumber  string `db:"nct_number" json:"nct_number" yaml:"nct_number"`
	DocumentID string `db:"document_id" json:"document_id" yaml:"document_id"`
	TrialName  string `db:"trial_name" json:"trial_name" yaml:"trial_name"`
	CancerType string `db:"cancer_type" json:"cancer_type" yaml:"cancer_type"`
	Phase      string `db:"phase" json:"phase" yaml:"phase"`
	Status     string `db:"status" json:"status" yaml:"status"`
	Arms       int    `db:"arms" json:"arms" yaml:"arms"`
	UpdatedAt  string `db:"updated_at" json:"updated_at" yaml:"updated_at"`
}

// List returns one summary per stored trial, ordered by NCT number.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := s.db.SelectContext(ctx, &out,
		`SELECT p.nct_number, p.document_id, p.trial_name, p.cancer_type, p.phase, p.status, p.updated_at,
			(SELECT count(*) FROM arms a WHERE a.nct_number = p.nct_number) AS arms
		 FROM publications p ORDER BY p.nct_number`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return out, nil
}

// Run is one extraction run in a trial's history.
type Run struct {
	NCTNumber  string
	DocumentID string
	types.Metadata
}

// Runs returns the run history of a trial, oldest first.
func (s *Store) Runs(ctx context.Context, nct string) ([]Run, error) {
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM runs WHERE nct_number = ? ORDER BY extraction_date, rowid`, nct); err != nil {
		return nil, fmt.Errorf("loading runs of %s: %w", nct, err)
	}
	out := make([]Run, len(rows))
	for i, r := range rows {
		out[i] = Run{NCTNumber: r.NCTNumber, DocumentID: r.DocumentID, Metadata: r.metadata()}
	}
	return out, nil
}

// Delete removes a trial, its arms and values. Run history is kept.
func (s *Store) Delete(ctx context.Context, nct string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM publications WHERE nct_number = ?`, nct)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", nct, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, nct)
	}
	return nil
}

// Clear removes every record, run and ingest marker.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"arm_values", "arms", "publications", "runs", "ingest_status"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}
