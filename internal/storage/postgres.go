package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

// pq error code for unique_violation
const uniqueViolation = "23505"

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	return OpenPostgres(ctx, config.DSN(), logger)
}

// OpenPostgres connects with a lib/pq connection string or postgres:// URL.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage, err := NewPostgresStorageFromDB(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return storage, nil
}

// NewPostgresStorageFromDB wraps an open connection pool and applies the schema.
func NewPostgresStorageFromDB(ctx context.Context, db *sql.DB, logger *zap.Logger) (*PostgresStorage, error) {
	storage := &PostgresStorage{db: db, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("PostgreSQL schema ready", zap.String("database", "postgres"))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	// Read migrations file
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	// Execute migrations
	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

const noteColumns = `id, owner_id, title, content, parent_id, icon, created_at, updated_at`

func scanNote(row scanner) (*models.Note, error) {
	var (
		note   models.Note
		parent sql.NullString
		icon   sql.NullString
	)
	err := row.Scan(&note.ID, &note.OwnerID, &note.Title, &note.Content, &parent, &icon, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return nil, err
	}
	note.ParentID = nullString(parent)
	note.Icon = nullString(icon)
	return &note, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// storeError classifies driver errors into the shared error kinds.
func storeError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pqErr.Message, models.ErrValidation)
	}
	return fmt.Errorf("%s: %v: %w", op, err, models.ErrPersistence)
}

func (s *PostgresStorage) ListNotes(ctx context.Context, ownerID string) ([]models.Note, error) {
	query := `
		SELECT ` + noteColumns + `
		FROM nodes
		WHERE owner_id = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, storeError("error querying notes", err)
	}
	defer rows.Close()

	notes := make([]models.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, storeError("error scanning note", err)
		}
		notes = append(notes, *note)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating notes", err)
	}
	return notes, nil
}

func (s *PostgresStorage) GetNote(ctx context.Context, ownerID, id string) (*models.Note, error) {
	query := `
		SELECT ` + noteColumns + `
		FROM nodes
		WHERE id = $1 AND owner_id = $2`

	note, err := scanNote(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		return nil, storeError(fmt.Sprintf("error getting note %q", id), err)
	}
	return note, nil
}

func (s *PostgresStorage) CreateNote(ctx context.Context, note *models.Note) error {
	if note.OwnerID == "" {
		return fmt.Errorf("note owner: %w", models.ErrUnauthenticated)
	}
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.Title == "" {
		note.Title = models.DefaultNoteTitle
	}
	if !note.HasParent() {
		note.ParentID = nil
	}

	query := `
		INSERT INTO nodes (id, owner_id, title, content, parent_id, icon)
		SELECT $1::text, $2::text, $3::text, '', $4::text, $5::text
		WHERE $4::text IS NULL
		   OR EXISTS (SELECT 1 FROM nodes WHERE id = $4::text AND owner_id = $2::text)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		note.ID,
		note.OwnerID,
		note.Title,
		note.ParentID,
		note.Icon,
	).Scan(&note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return storeError("error creating note", err)
	}
	note.Content = ""
	return nil
}

func (s *PostgresStorage) UpdateNote(ctx context.Context, ownerID, id string, upd models.NoteUpdate) (*models.Note, error) {
	query := `
		UPDATE nodes
		SET title = COALESCE($3::text, title),
		    content = COALESCE($4::text, content),
		    icon = COALESCE($5::text, icon),
		    updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + noteColumns

	note, err := scanNote(s.db.QueryRowContext(ctx, query, id, ownerID, upd.Title, upd.Content, upd.Icon))
	if err != nil {
		return nil, storeError(fmt.Sprintf("error updating note %q", id), err)
	}
	return note, nil
}

func (s *PostgresStorage) MoveNote(ctx context.Context, ownerID, id string, parentID *string) (*models.Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("error starting move", err)
	}
	defer tx.Rollback()

	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	if parentID != nil {
		var exists, cycle bool
		check := `
			WITH RECURSIVE sub AS (
				SELECT id FROM nodes WHERE id = $1 AND owner_id = $2
				UNION ALL
				SELECT n.id FROM nodes n JOIN sub ON n.parent_id = sub.id
			)
			SELECT
				EXISTS (SELECT 1 FROM nodes WHERE id = $3 AND owner_id = $2),
				EXISTS (SELECT 1 FROM sub WHERE id = $3)`
		if err := tx.QueryRowContext(ctx, check, id, ownerID, *parentID).Scan(&exists, &cycle); err != nil {
			return nil, storeError("error checking move target", err)
		}
		if !exists {
			return nil, fmt.Errorf("parent %q: %w", *parentID, models.ErrNotFound)
		}
		if cycle {
			return nil, fmt.Errorf("cannot move %q under its own subtree: %w", id, models.ErrValidation)
		}
	}

	query := `
		UPDATE nodes
		SET parent_id = $3::text, updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + noteColumns

	note, err := scanNote(tx.QueryRowContext(ctx, query, id, ownerID, parentID))
	if err != nil {
		return nil, storeError(fmt.Sprintf("error moving note %q", id), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeError("error committing move", err)
	}
	return note, nil
}

// DeleteNote relies on ON DELETE CASCADE for descendants and annotations.
func (s *PostgresStorage) DeleteNote(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM nodes WHERE id = $1 AND owner_id = $2`

	result, err := s.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return storeError(fmt.Sprintf("error deleting note %q", id), err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("Delete matched no note", zap.String("note_id", id), zap.String("owner_id", ownerID))
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
