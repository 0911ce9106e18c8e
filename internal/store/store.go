// Package store keeps sweeps and case details in a local SQLite database so
// a detail run can reuse an earlier sweep.
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

	_ "modernc.org/sqlite"

	"github.com/ppiankov/casesweep/internal/detail"
	"github.com/ppiankov/casesweep/internal/model"
	"github.com/ppiankov/casesweep/internal/wiscraper"
)

// ErrNoSweeps is returned when the database holds no sweep yet
var ErrNoSweeps = errors.New("no stored sweeps")

// Store wraps the SQLite handle
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection: in-memory databases are per connection, and SQLite
	// serialises writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database location
func (s *Store) Path() string { return s.path }

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

// SweepRecord is a stored sweep header
type SweepRecord struct {
	Meta      model.SweepMeta
	CreatedAt time.Time
}

// SaveSweep stores a sweep header and its flattened cases in one transaction
func (s *Store) SaveSweep(ctx context.Context, meta model.SweepMeta, cases []wiscraper.FlatCase, createdAt time.Time) (err error) {
	classCodes, err := json.Marshal(meta.ClassCodes)
	if err != nil {
		return fmt.Errorf("encode class codes: %w", err)
	}
	failures := meta.Failures
	if failures == nil {
		failures = []string{}
	}
	failureJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweeps (run_id, created_at, start_date, end_date, span_days, class_codes, total_cases, queries, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.RunID, createdAt.UTC(), meta.Start, meta.End, meta.SpanDays, string(classCodes), meta.TotalCases, meta.Queries, string(failureJSON))
	if err != nil {
		return fmt.Errorf("insert sweep: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cases (run_id, position, case_no, county_no, county_name, caption, party_name, status,
			filing_date, dob, is_dob_sealed, class_codes, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare case insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, c := range cases {
		codes, err := json.Marshal(c.ClassCodes)
		if err != nil {
			return fmt.Errorf("encode case %s class codes: %w", c.CaseNo, err)
		}
		raw, err := json.Marshal(c.Raw)
		if err != nil {
			return fmt.Errorf("encode case %s raw: %w", c.CaseNo, err)
		}
		if _, err := stmt.ExecContext(ctx, meta.RunID, i, c.CaseNo, c.CountyNo, c.CountyName, c.Caption, c.PartyName, c.Status,
			nullable(c.FilingDate), nullable(c.DOB), c.IsDOBSealed, string(codes), string(raw)); err != nil {
			return fmt.Errorf("insert case %s: %w", c.CaseNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LatestSweep returns the most recently stored sweep header
func (s *Store) LatestSweep(ctx context.Context) (*SweepRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, start_date, end_date, span_days, class_codes, total_cases, queries, failures
		FROM sweeps ORDER BY created_at DESC, rowid DESC LIMIT 1`)

	var rec SweepRecord
	var classCodes, failures string
	err := row.Scan(&rec.Meta.RunID, &rec.CreatedAt, &rec.Meta.Start, &rec.Meta.End, &rec.Meta.SpanDays,
		&classCodes, &rec.Meta.TotalCases, &rec.Meta.Queries, &failures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSweeps
	}
	if err != nil {
		return nil, fmt.Errorf("read latest sweep: %w", err)
	}
	if err := json.Unmarshal([]byte(classCodes), &rec.Meta.ClassCodes); err != nil {
		return nil, fmt.Errorf("decode class codes: %w", err)
	}
	if err := json.Unmarshal([]byte(failures), &rec.Meta.Failures); err != nil {
		return nil, fmt.Errorf("decode failures: %w", err)
	}
	if len(rec.Meta.Failures) == 0 {
		rec.Meta.Failures = nil
	}
	return &rec, nil
}

// SweepCases returns the cases of one sweep in their original output order
func (s *Store) SweepCases(ctx context.Context, runID string) ([]wiscraper.FlatCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT case_no, county_no, county_name, caption, party_name, status, filing_date, dob, is_dob_sealed, class_codes, raw
		FROM cases WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cases := []wiscraper.FlatCase{}
	for rows.Next() {
		var c wiscraper.FlatCase
		var filingDate, dob sql.NullString
		var codes, raw string
		if err := rows.Scan(&c.CaseNo, &c.CountyNo, &c.CountyName, &c.Caption, &c.PartyName, &c.Status,
			&filingDate, &dob, &c.IsDOBSealed, &codes, &raw); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		if filingDate.Valid {
			c.FilingDate = &filingDate.String
		}
		if dob.Valid {
			c.DOB = &dob.String
		}
		if err := json.Unmarshal([]byte(codes), &c.ClassCodes); err != nil {
			return nil, fmt.Errorf("decode case %s class codes: %w", c.CaseNo, err)
		}
		if err := json.Unmarshal([]byte(raw), &c.Raw); err != nil {
			return nil, fmt.Errorf("decode case %s raw: %w", c.CaseNo, err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// LatestSweepCases loads the newest sweep and its cases
func (s *Store) LatestSweepCases(ctx context.Context) (*SweepRecord, []wiscraper.FlatCase, error) {
	rec, err := s.LatestSweep(ctx)
	if err != nil {
		return nil, nil, err
	}
	cases, err := s.SweepCases(ctx, rec.Meta.RunID)
	if err != nil {
		return nil, nil, err
	}
	return rec, cases, nil
}

// SaveDetails upserts one row per envelope and replaces that case's parties.
// runID may be empty when the cases did not come from a stored sweep.
func (s *Store) SaveDetails(ctx context.Context, runID string, envs []detail.Envelope, fetchedAt time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, env := range envs {
		var body any
		if env.Detail != nil {
			data, err := json.Marshal(env.Detail)
			if err != nil {
				return fmt.Errorf("encode detail %s: %w", env.Case.CaseNo, err)
			}
			body = string(data)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO details (case_no, county_no, run_id, source, error, detail, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (case_no, county_no) DO UPDATE SET
				run_id = excluded.run_id, source = excluded.source, error = excluded.error,
				detail = excluded.detail, fetched_at = excluded.fetched_at`,
			env.Case.CaseNo, env.Case.CountyNo, nullableString(runID), env.Source, env.Error, body, fetchedAt.UTC()); err != nil {
			return fmt.Errorf("upsert detail %s: %w", env.Case.CaseNo, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM parties WHERE case_no = ? AND county_no = ?`,
			env.Case.CaseNo, env.Case.CountyNo); err != nil {
			return fmt.Errorf("clear parties %s: %w", env.Case.CaseNo, err)
		}
		for i, p := range env.Parties {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO parties (case_no, county_no, position, county_name, caption, party_name, party_type,
					address, dob, is_dob_sealed, role_status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				env.Case.CaseNo, env.Case.CountyNo, i, p.CountyName, p.Caption, p.PartyName, p.PartyType,
				p.Address, p.DOB, p.IsDOBSealed, p.RoleStatus); err != nil {
				return fmt.Errorf("insert party %s/%d: %w", env.Case.CaseNo, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Parties returns the stored parties of one case
func (s *Store) Parties(ctx context.Context, caseNo string, countyNo int) ([]detail.PartyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT county_name, caption, party_name, party_type, address, dob, is_dob_sealed, role_status
		FROM parties WHERE case_no = ? AND county_no = ? ORDER BY position`, caseNo, countyNo)
	if err != nil {
		return nil, fmt.Errorf("query parties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	parties := []detail.PartyRecord{}
	for rows.Next() {
		p := detail.PartyRecord{CaseNo: caseNo, CountyNo: countyNo}
		if err := rows.Scan(&p.CountyName, &p.Caption, &p.PartyName, &p.PartyType, &p.Address, &p.DOB,
			&p.IsDOBSealed, &p.RoleStatus); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

// HasDetail reports whether a case already has a successful detail row
func (s *Store) HasDetail(ctx context.Context, caseNo string, countyNo int) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM details WHERE case_no = ? AND county_no = ? AND error = ''`,
		caseNo, countyNo).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query detail: %w", err)
	}
	return n > 0, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
