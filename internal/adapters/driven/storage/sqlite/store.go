package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/roster/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/ports/driven"
	"github.com/custodia-labs/roster/internal/core/schema"
)

// Ensure Store implements the interface.
var _ driven.RecordStore = (*Store)(nil)

// Store is a SQLite-backed record store for one schema model.
type Store struct {
	db    *sql.DB
	path  string
	model *schema.Schema
	log   *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
}

// NewStore opens the store for model in dataDir, creating it when missing.
// If dataDir is empty, defaults to ~/.roster/data. The database file is named
// after the model (e.g., TeamModel.sqlite).
func NewStore(dataDir string, model *schema.Schema, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".roster", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, model.Name()+".sqlite")

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:    db,
		path:  dbPath,
		model: model,
		log:   log,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.ensureModel(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	log.Debugw("opened store", "path", dbPath, "model", model.Name(), "fingerprint", model.Fingerprint())
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// open returns domain.ErrStoreClosed after Close. Callers must hold s.mu.
func (s *Store) open() error {
	if s.closed {
		return domain.ErrStoreClosed
	}
	return nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_model_metadata.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.inTx(context.Background(), func(tx *sql.Tx) error {
			if _, err := tx.Exec(string(content)); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version)
			return err
		}); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ensureModel creates the model's tables on first open and rejects stores
// created with a different model.
func (s *Store) ensureModel(ctx context.Context) error {
	var stored string
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint FROM model_metadata WHERE model_name = ?", s.model.Name(),
	).Scan(&stored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.inTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range modelDDL(s.model) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("creating model tables: %w", err)
				}
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO model_metadata (model_name, model_version, fingerprint) VALUES (?, ?, ?)",
				s.model.Name(), s.model.Version(), s.model.Fingerprint())
			if err != nil {
				return fmt.Errorf("recording model metadata: %w", err)
			}
			return nil
		})
	case err != nil:
		return fmt.Errorf("reading model metadata: %w", err)
	case stored != s.model.Fingerprint():
		return fmt.Errorf("%w: %s was created with model fingerprint %s, current %s model is %s",
			domain.ErrIncompatibleSchema, s.path, stored, s.model.Name(), s.model.Fingerprint())
	default:
		return nil
	}
}

// inTx runs fn in a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
