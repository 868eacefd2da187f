// Package postgres implements the permit Store and LedgerStore on
// PostgreSQL via pgx.
//
// Expected tables (managed by the product's migration tooling, not here):
//
//	employees(id bigserial, moi_number text unique, name_english text,
//	          name_arabic text, nationality text, passport_number text,
//	          created_at timestamptz)
//	permits(id bigserial, permit_number text, permit_type text,
//	        issued_for text, name_english text, name_arabic text,
//	        moi_number text unique, passport_number text, nationality text,
//	        plate_number text, issue_location text, issue_date text,
//	        expiry_date text, employee_id bigint, status text,
//	        created_at timestamptz, updated_at timestamptz)
//	import_runs(id uuid primary key, uploaded_by text, file_name text,
//	            started_at timestamptz, completed_at timestamptz,
//	            total int, inserted int, updated int, skipped int,
//	            errors text[], status text)
//
// Per-identity serialization uses a transaction-scoped advisory lock keyed
// by the MOI number, so two runs reconciling the same person are ordered
// even across processes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/permit"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements permit.Store and permit.LedgerStore.
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
}

// New creates a Store over a connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithIdentityLock opens a transaction, takes the advisory lock for the MOI
// number, and runs fn against a transaction-backed view of the store. The
// lock releases on commit or rollback.
func (s *Store) WithIdentityLock(ctx context.Context, moiNumber string, fn func(permit.Store) error) error {
	if s.pool == nil {
		// Already inside a lock scope; nested sections for the same
		// identity reuse the surrounding transaction.
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", moiNumber); err != nil {
		return classify(err)
	}

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}

	return classify(tx.Commit(ctx))
}

const permitColumns = `id, permit_number, permit_type, issued_for, name_english,
	name_arabic, moi_number, passport_number, nationality, plate_number,
	issue_location, issue_date, expiry_date, employee_id, status,
	created_at, updated_at`

func (s *Store) PermitByIdentityAndNumber(ctx context.Context, moiNumber, permitNumber string) (*permit.Permit, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE moi_number = $1 AND permit_number = $2`,
		moiNumber, permitNumber)
	return scanPermit(row)
}

func (s *Store) PermitByIdentity(ctx context.Context, moiNumber string) (*permit.Permit, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE moi_number = $1`,
		moiNumber)
	return scanPermit(row)
}

func (s *Store) InsertPermit(ctx context.Context, p *permit.Permit) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO permits (permit_number, permit_type, issued_for,
			name_english, name_arabic, moi_number, passport_number,
			nationality, plate_number, issue_location, issue_date,
			expiry_date, employee_id, status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
		 RETURNING id, created_at, updated_at`,
		p.PermitNumber, p.PermitType, p.IssuedFor, p.NameEnglish, p.NameArabic,
		p.MOINumber, p.PassportNumber, p.Nationality, p.PlateNumber,
		p.IssueLocation, p.IssueDate, p.ExpiryDate, p.EmployeeID, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return classify(err)
}

func (s *Store) UpdatePermit(ctx context.Context, p *permit.Permit) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE permits SET permit_number=$2, permit_type=$3, issued_for=$4,
			name_english=$5, name_arabic=$6, passport_number=$7,
			nationality=$8, plate_number=$9, issue_location=$10,
			issue_date=$11, expiry_date=$12, updated_at=now()
		 WHERE id = $1`,
		p.ID, p.PermitNumber, p.PermitType, p.IssuedFor, p.NameEnglish,
		p.NameArabic, p.PassportNumber, p.Nationality, p.PlateNumber,
		p.IssueLocation, p.IssueDate, p.ExpiryDate)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return permit.ErrNotFound
	}
	return nil
}

func (s *Store) EmployeeByIdentity(ctx context.Context, moiNumber string) (*permit.Employee, error) {
	var e permit.Employee
	err := s.db.QueryRow(ctx,
		`SELECT id, moi_number, name_english, name_arabic, nationality,
			passport_number, created_at
		 FROM employees WHERE moi_number = $1`, moiNumber,
	).Scan(&e.ID, &e.MOINumber, &e.NameEnglish, &e.NameArabic,
		&e.Nationality, &e.PassportNumber, &e.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &e, nil
}

func (s *Store) InsertEmployee(ctx context.Context, e *permit.Employee) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO employees (moi_number, name_english, name_arabic,
			nationality, passport_number, created_at)
		 VALUES ($1,$2,$3,$4,$5,now())
		 RETURNING id, created_at`,
		e.MOINumber, e.NameEnglish, e.NameArabic, e.Nationality, e.PassportNumber,
	).Scan(&e.ID, &e.CreatedAt)
	return classify(err)
}

func (s *Store) SealRun(ctx context.Context, run *permit.RunSummary) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO import_runs (id, uploaded_by, file_name, started_at,
			completed_at, total, inserted, updated, skipped, errors, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		run.ID, run.UploadedBy, run.FileName, run.StartedAt, run.CompletedAt,
		run.Total, run.Inserted, run.Updated, run.Skipped, run.Errors,
		string(run.Status))
	return classify(err)
}

const runColumns = `id, uploaded_by, file_name, started_at, completed_at,
	total, inserted, updated, skipped, errors, status`

func (s *Store) Runs(ctx context.Context, limit int) ([]permit.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+runColumns+` FROM import_runs ORDER BY started_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var runs []permit.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, classify(rows.Err())
}

func (s *Store) RunByID(ctx context.Context, id string) (*permit.RunSummary, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+runColumns+` FROM import_runs WHERE id = $1`, id)
	return scanRun(row)
}

func scanPermit(row pgx.Row) (*permit.Permit, error) {
	var p permit.Permit
	err := row.Scan(&p.ID, &p.PermitNumber, &p.PermitType, &p.IssuedFor,
		&p.NameEnglish, &p.NameArabic, &p.MOINumber, &p.PassportNumber,
		&p.Nationality, &p.PlateNumber, &p.IssueLocation, &p.IssueDate,
		&p.ExpiryDate, &p.EmployeeID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func scanRun(row pgx.Row) (*permit.RunSummary, error) {
	var (
		run    permit.RunSummary
		status string
	)
	err := row.Scan(&run.ID, &run.UploadedBy, &run.FileName, &run.StartedAt,
		&run.CompletedAt, &run.Total, &run.Inserted, &run.Updated,
		&run.Skipped, &run.Errors, &status)
	if err != nil {
		return nil, classify(err)
	}
	run.Status = permit.RunStatus(status)
	return &run, nil
}

// classify maps pgx errors to the store's sentinel classes: no rows becomes
// ErrNotFound, connection-level failures become ErrUnavailable, everything
// else passes through as a per-row storage error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return permit.ErrNotFound
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %v", permit.ErrUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08", "53", "57":
			// connection exception, insufficient resources, operator intervention
			return true
		}
	}

	return false
}
