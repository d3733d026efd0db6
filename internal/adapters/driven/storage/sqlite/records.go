package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/schema"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Fetch retrieves one record with its relations.
func (s *Store) Fetch(ctx context.Context, entity string, id uuid.UUID) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.open(); err != nil {
		return nil, err
	}
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		selectColumns(e), quote(e.Table()), quote(e.Identifier().Column()))
	rec, err := scanRecord(e, s.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s: %w", entity, id, err)
	}

	for _, r := range e.Relationships() {
		links, err := s.relatedIDs(ctx, r, &id)
		if err != nil {
			return nil, err
		}
		rec.Relations[r.Name()] = links[id]
	}
	return &rec, nil
}

// FetchAll retrieves every record of an entity, ordered by identifier.
func (s *Store) FetchAll(ctx context.Context, entity string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.open(); err != nil {
		return nil, err
	}
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}

	idCol := quote(e.Identifier().Column())
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", selectColumns(e), quote(e.Table()), idCol)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", entity, err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(e, rows)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", entity, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", entity, err)
	}

	for _, r := range e.Relationships() {
		links, err := s.relatedIDs(ctx, r, nil)
		if err != nil {
			return nil, err
		}
		for i := range records {
			records[i].Relations[r.Name()] = links[records[i].ID]
		}
	}
	return records, nil
}

// Apply writes a change set in one transaction.
func (s *Store) Apply(ctx context.Context, changes domain.ChangeSet) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.open(); err != nil {
		return err
	}
	if changes.IsEmpty() {
		return nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range changes.Inserts {
			if err := s.insert(ctx, tx, rec); err != nil {
				return err
			}
		}
		for _, u := range changes.Updates {
			if err := s.update(ctx, tx, u); err != nil {
				return err
			}
		}
		for _, key := range changes.Deletes {
			if err := s.delete(ctx, tx, key); err != nil {
				return err
			}
		}
		for _, l := range changes.LinkRemoves {
			if err := s.unlink(ctx, tx, l); err != nil {
				return err
			}
		}
		for _, l := range changes.LinkAdds {
			if err := s.link(ctx, tx, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Debugw("applied change set",
		"inserts", len(changes.Inserts),
		"updates", len(changes.Updates),
		"deletes", len(changes.Deletes),
		"link_adds", len(changes.LinkAdds),
		"link_removes", len(changes.LinkRemoves))
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, rec domain.Record) error {
	e, err := s.entity(rec.Entity)
	if err != nil {
		return err
	}
	cols := []string{quote(e.Identifier().Column()), quote(versionColumn)}
	args := []any{rec.ID.String(), 1}
	for _, a := range valueAttributes(e) {
		v, err := encodeValue(a, rec.Values[a.Name()])
		if err != nil {
			return err
		}
		cols = append(cols, quote(a.Column()))
		args = append(args, v)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(e.Table()), strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting %s %s: %w", rec.Entity, rec.ID, mapError(err))
	}
	return nil
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, u domain.RecordUpdate) error {
	rec := u.Record
	e, err := s.entity(rec.Entity)
	if err != nil {
		return err
	}
	sets := []string{fmt.Sprintf("%[1]s = %[1]s + 1", quote(versionColumn))}
	var args []any
	for _, a := range valueAttributes(e) {
		v, err := encodeValue(a, rec.Values[a.Name()])
		if err != nil {
			return err
		}
		sets = append(sets, quote(a.Column())+" = ?")
		args = append(args, v)
	}
	args = append(args, rec.ID.String(), u.ExpectedVersion)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? AND %s = ?",
		quote(e.Table()), strings.Join(sets, ", "), quote(e.Identifier().Column()), quote(versionColumn))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", rec.Entity, rec.ID, mapError(err))
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}

	var current int64
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", quote(versionColumn), quote(e.Table()), quote(e.Identifier().Column())),
		rec.ID.String(),
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("updating %s %s: %w", rec.Entity, rec.ID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", rec.Entity, rec.ID, err)
	}
	return fmt.Errorf("updating %s %s: expected version %d, stored %d: %w",
		rec.Entity, rec.ID, u.ExpectedVersion, current, domain.ErrMergeConflict)
}

// delete removes a record. Join rows go with it through ON DELETE CASCADE.
func (s *Store) delete(ctx context.Context, tx *sql.Tx, key domain.RecordKey) error {
	e, err := s.entity(key.Entity)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(e.Table()), quote(e.Identifier().Column()))
	if _, err := tx.ExecContext(ctx, query, key.ID.String()); err != nil {
		return fmt.Errorf("deleting %s %s: %w", key.Entity, key.ID, err)
	}
	return nil
}

func (s *Store) link(ctx context.Context, tx *sql.Tx, l domain.Link) error {
	r, err := s.owningRelationship(l)
	if err != nil {
		return err
	}
	for _, end := range []struct {
		entity *schema.Entity
		id     uuid.UUID
	}{{r.Entity(), l.SourceID}, {r.Destination(), l.TargetID}} {
		ok, err := exists(ctx, tx, end.entity, end.id)
		if err != nil {
			return fmt.Errorf("linking %s: %w", r.Qualified(), err)
		}
		if !ok {
			return fmt.Errorf("linking %s: %s %s: %w", r.Qualified(), end.entity.Name(), end.id, domain.ErrNotFound)
		}
	}

	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s, %s) VALUES (?, ?)", quote(r.JoinTable()), sourceColumn, targetColumn)
	if _, err := tx.ExecContext(ctx, query, l.SourceID.String(), l.TargetID.String()); err != nil {
		return fmt.Errorf("linking %s: %w", r.Qualified(), mapError(err))
	}
	return nil
}

func (s *Store) unlink(ctx context.Context, tx *sql.Tx, l domain.Link) error {
	r, err := s.owningRelationship(l)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", quote(r.JoinTable()), sourceColumn, targetColumn)
	if _, err := tx.ExecContext(ctx, query, l.SourceID.String(), l.TargetID.String()); err != nil {
		return fmt.Errorf("unlinking %s: %w", r.Qualified(), err)
	}
	return nil
}

// relatedIDs reads the join table of r grouped by the identifier on r's side,
// restricted to one identifier when id is non-nil. Each group is sorted.
func (s *Store) relatedIDs(ctx context.Context, r *schema.Relationship, id *uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	self, other := targetColumn, sourceColumn
	if r.IsOwner() {
		self, other = sourceColumn, targetColumn
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s", self, other, quote(r.Owner().JoinTable()))
	var args []any
	if id != nil {
		query += fmt.Sprintf(" WHERE %s = ?", self)
		args = append(args, id.String())
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.Qualified(), err)
	}
	defer rows.Close()

	links := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var selfID, otherID string
		if err := rows.Scan(&selfID, &otherID); err != nil {
			return nil, fmt.Errorf("reading %s: %w", r.Qualified(), err)
		}
		from, err := uuid.Parse(selfID)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", r.Qualified(), err)
		}
		to, err := uuid.Parse(otherID)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", r.Qualified(), err)
		}
		links[from] = append(links[from], to)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.Qualified(), err)
	}
	for _, ids := range links {
		domain.SortIDs(ids)
	}
	return links, nil
}

func (s *Store) entity(name string) (*schema.Entity, error) {
	e, ok := s.model.Entity(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, name)
	}
	return e, nil
}

func (s *Store) owningRelationship(l domain.Link) (*schema.Relationship, error) {
	r, ok := s.model.Relationship(l.Entity, l.Relationship)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownProperty, l.Entity, l.Relationship)
	}
	if !r.IsOwner() {
		return nil, fmt.Errorf("%w: link must use owning side %s", domain.ErrInvalidInput, r.Owner().Qualified())
	}
	return r, nil
}

func exists(ctx context.Context, tx *sql.Tx, e *schema.Entity, id uuid.UUID) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", quote(e.Table()), quote(e.Identifier().Column())),
		id.String(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// valueAttributes returns the entity's attributes other than the identifier.
func valueAttributes(e *schema.Entity) []*schema.Attribute {
	attrs := make([]*schema.Attribute, 0, len(e.Attributes()))
	for _, a := range e.Attributes() {
		if a != e.Identifier() {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

func selectColumns(e *schema.Entity) string {
	cols := []string{quote(e.Identifier().Column()), quote(versionColumn)}
	for _, a := range valueAttributes(e) {
		cols = append(cols, quote(a.Column()))
	}
	return strings.Join(cols, ", ")
}

func scanRecord(e *schema.Entity, row rowScanner) (domain.Record, error) {
	attrs := valueAttributes(e)
	var (
		id      string
		version int64
	)
	dest := []any{&id, &version}
	for _, a := range attrs {
		switch a.Type() {
		case schema.TypeInteger64, schema.TypeBoolean:
			dest = append(dest, new(sql.NullInt64))
		default:
			dest = append(dest, new(sql.NullString))
		}
	}
	if err := row.Scan(dest...); err != nil {
		return domain.Record{}, err
	}

	key, err := uuid.Parse(id)
	if err != nil {
		return domain.Record{}, fmt.Errorf("parsing identifier %q: %w", id, err)
	}
	rec := domain.Record{
		Entity:    e.Name(),
		ID:        key,
		Version:   version,
		Values:    map[string]any{e.Identifier().Name(): key},
		Relations: make(map[string][]uuid.UUID, len(e.Relationships())),
	}
	for i, a := range attrs {
		v, err := decodeValue(a, dest[i+2])
		if err != nil {
			return domain.Record{}, err
		}
		rec.Values[a.Name()] = v
	}
	return rec, nil
}

func encodeValue(a *schema.Attribute, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if !a.Type().Accepts(v) {
		return nil, fmt.Errorf("%w: %s.%s is %s, got %T", domain.ErrTypeMismatch, a.Entity().Name(), a.Name(), a.Type(), v)
	}
	switch val := v.(type) {
	case uuid.UUID:
		return val.String(), nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	default:
		return val, nil
	}
}

func decodeValue(a *schema.Attribute, dest any) (any, error) {
	switch d := dest.(type) {
	case *sql.NullInt64:
		if !d.Valid {
			return nil, nil
		}
		if a.Type() == schema.TypeBoolean {
			return d.Int64 != 0, nil
		}
		return d.Int64, nil
	case *sql.NullString:
		if !d.Valid {
			return nil, nil
		}
		switch a.Type() {
		case schema.TypeUUID:
			id, err := uuid.Parse(d.String)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", a.Name(), err)
			}
			return id, nil
		case schema.TypeDate:
			t, err := time.Parse(time.RFC3339Nano, d.String)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", a.Name(), err)
			}
			return t, nil
		default:
			return d.String, nil
		}
	default:
		return nil, fmt.Errorf("unsupported scan target %T", dest)
	}
}

// mapError translates constraint violations into domain errors.
func mapError(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		}
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
