package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// sqlStore implements Store on database/sql. The dialect files provide the
// driver name, migrations and placeholder style.
type sqlStore struct {
	log        logrus.FieldLogger
	driver     string
	dsn        string
	db         *sql.DB
	migrations []string
	numbered   bool
}

// Ensure sqlStore implements Store.
var _ Store = (*sqlStore)(nil)

// Start opens the database connection.
func (s *sqlStore) Start(ctx context.Context) error {
	s.log.WithField("driver", s.driver).Info("Opening database")

	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.driver != "sqlite3" {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return fmt.Errorf("pinging database: %w", err)
	}

	s.db = db

	return nil
}

// Stop closes the database connection.
func (s *sqlStore) Stop() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Ping checks the database connection.
func (s *sqlStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not started")
	}

	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *sqlStore) Migrate(ctx context.Context) error {
	s.log.Info("Running database migrations")

	for _, migration := range s.migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}

	return nil
}

// rebind rewrites ? placeholders to $n for drivers that need numbered ones.
func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}

	var sb strings.Builder

	n := 1

	for _, r := range query {
		if r == '?' {
			sb.WriteString("$" + strconv.Itoa(n))
			n++

			continue
		}

		sb.WriteRune(r)
	}

	return sb.String()
}

// CreateBlend inserts a blend and its documents in one transaction.
func (s *sqlStore) CreateBlend(ctx context.Context, blend *Blend) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO blends (id, status, documents, artifact_bytes, artifact_digest, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), blend.ID, blend.Status, blend.Documents, blend.ArtifactBytes, blend.ArtifactDigest,
		blend.Error, blend.StartedAt.UTC(), blend.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting blend: %w", err)
	}

	insertDoc := s.rebind(`
		INSERT INTO blend_documents (blend_id, ordinal, name, digest, size)
		VALUES (?, ?, ?, ?, ?)
	`)

	for _, doc := range blend.Entries {
		if _, err := tx.ExecContext(ctx, insertDoc, blend.ID, doc.Ordinal, doc.Name, doc.Digest, doc.Size); err != nil {
			return fmt.Errorf("inserting blend document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing blend: %w", err)
	}

	return nil
}

const blendColumns = `id, status, documents, artifact_bytes, artifact_digest, error_message, started_at, finished_at`

func scanBlend(row interface{ Scan(dest ...any) error }) (*Blend, error) {
	var (
		blend          Blend
		digest, errMsg sql.NullString
	)

	if err := row.Scan(&blend.ID, &blend.Status, &blend.Documents, &blend.ArtifactBytes,
		&digest, &errMsg, &blend.StartedAt, &blend.FinishedAt); err != nil {
		return nil, err
	}

	blend.ArtifactDigest = digest.String
	blend.Error = errMsg.String

	return &blend, nil
}

// GetBlend retrieves a blend with its documents. It returns nil if not found.
func (s *sqlStore) GetBlend(ctx context.Context, id string) (*Blend, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+blendColumns+` FROM blends WHERE id = ?`), id)

	blend, err := scanBlend(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scanning blend: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT ordinal, name, digest, size FROM blend_documents
		WHERE blend_id = ? ORDER BY ordinal
	`), id)
	if err != nil {
		return nil, fmt.Errorf("querying blend documents: %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var doc BlendDocument

		if err := rows.Scan(&doc.Ordinal, &doc.Name, &doc.Digest, &doc.Size); err != nil {
			return nil, fmt.Errorf("scanning blend document: %w", err)
		}

		blend.Entries = append(blend.Entries, doc)
	}

	return blend, rows.Err()
}

// ListBlends retrieves blends, newest first, without their documents.
func (s *sqlStore) ListBlends(ctx context.Context, opts BlendQueryOpts) ([]*Blend, int, error) {
	where := ""

	var args []any

	if opts.Status != nil {
		where = " WHERE status = ?"

		args = append(args, *opts.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM blends`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting blends: %w", err)
	}

	query := `SELECT ` + blendColumns + ` FROM blends` + where + ` ORDER BY started_at DESC`

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)

		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying blends: %w", err)
	}

	defer rows.Close()

	blends := []*Blend{}

	for rows.Next() {
		blend, err := scanBlend(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning blend: %w", err)
		}

		blends = append(blends, blend)
	}

	return blends, total, rows.Err()
}

// DeleteOldBlends deletes blends that finished before the given time.
func (s *sqlStore) DeleteOldBlends(ctx context.Context, olderThan time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	defer tx.Rollback() //nolint:errcheck // no-op after commit

	cutoff := olderThan.UTC()

	if _, err := tx.ExecContext(ctx, s.rebind(`
		DELETE FROM blend_documents
		WHERE blend_id IN (SELECT id FROM blends WHERE finished_at < ?)
	`), cutoff); err != nil {
		return 0, fmt.Errorf("deleting old blend documents: %w", err)
	}

	result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM blends WHERE finished_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old blends: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}

	return count, nil
}
