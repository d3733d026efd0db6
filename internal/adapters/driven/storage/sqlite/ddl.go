package sqlite

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/roster/internal/core/schema"
)

// versionColumn holds the record version. The leading underscore keeps it
// clear of attribute columns.
const versionColumn = "_version"

// Join table columns.
const (
	sourceColumn = "source_id"
	targetColumn = "target_id"
)

// modelDDL returns the statements that create the model's entity and join tables.
func modelDDL(model *schema.Schema) []string {
	var stmts []string
	for _, e := range model.Entities() {
		stmts = append(stmts, entityDDL(e))
	}
	for _, r := range model.Relationships() {
		if r.IsOwner() {
			stmts = append(stmts, joinDDL(r)...)
		}
	}
	return stmts
}

func entityDDL(e *schema.Entity) string {
	cols := []string{
		fmt.Sprintf("%s TEXT PRIMARY KEY", quote(e.Identifier().Column())),
		fmt.Sprintf("%s INTEGER NOT NULL DEFAULT 1", quote(versionColumn)),
	}
	for _, a := range e.Attributes() {
		if a == e.Identifier() {
			continue
		}
		cols = append(cols, fmt.Sprintf("%s %s", quote(a.Column()), columnType(a.Type())))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(e.Table()), strings.Join(cols, ",\n\t"))
}

// joinDDL creates the join table of an owning relationship. Rows are removed
// with either endpoint.
func joinDDL(r *schema.Relationship) []string {
	src, dst := r.Entity(), r.Destination()
	table := r.JoinTable()
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s TEXT NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
	%s TEXT NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
	PRIMARY KEY (%s, %s)
)`,
			quote(table),
			sourceColumn, quote(src.Table()), quote(src.Identifier().Column()),
			targetColumn, quote(dst.Table()), quote(dst.Identifier().Column()),
			sourceColumn, targetColumn),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			quote("idx_"+table+"_target"), quote(table), targetColumn),
	}
}

func columnType(t schema.AttributeType) string {
	switch t {
	case schema.TypeInteger64, schema.TypeBoolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
