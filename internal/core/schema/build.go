package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/custodia-labs/roster/internal/core/domain"
)

// DefaultIdentifier is the identifier attribute name used when none is declared.
const DefaultIdentifier = "identifier"

// Definition is the declarative input to Build.
type Definition struct {
	Name     string
	Version  int
	Entities []EntityDefinition
}

// EntityDefinition declares one entity.
type EntityDefinition struct {
	Name string
	// ClassName defaults to Name.
	ClassName string
	// Identifier names a TypeUUID attribute; defaults to DefaultIdentifier.
	Identifier    string
	Attributes    []AttributeDefinition
	Relationships []RelationshipDefinition
}

// AttributeDefinition declares one attribute.
type AttributeDefinition struct {
	Name     string
	Type     AttributeType
	Optional bool
}

// RelationshipDefinition declares one side of a relationship pair.
type RelationshipDefinition struct {
	Name        string
	Destination string
	Inverse     string
	MinCount    int
	// MaxCount of Unbounded means no upper limit.
	MaxCount   int
	Optional   bool
	DeleteRule DeleteRule
}

// Build validates def and returns the wired schema.
//
// Every entity descriptor and its attributes are constructed first, then
// relationships are resolved against the complete entity set so that an
// inverse can always reference a descriptor that already exists.
func Build(def Definition) (*Schema, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, invalid("model name is required")
	}
	if len(def.Entities) == 0 {
		return nil, invalid("model %s declares no entities", def.Name)
	}

	s := &Schema{
		name:    def.Name,
		version: def.Version,
		index:   make(map[string]*Entity, len(def.Entities)),
	}

	for i, ed := range def.Entities {
		e, err := buildEntity(i, ed)
		if err != nil {
			return nil, err
		}
		if _, dup := s.index[e.name]; dup {
			return nil, invalid("duplicate entity %s", e.name)
		}
		s.entities = append(s.entities, e)
		s.index[e.name] = e
	}

	for i, ed := range def.Entities {
		if err := buildRelationships(s, s.entities[i], ed.Relationships); err != nil {
			return nil, err
		}
	}

	for _, r := range s.Relationships() {
		if err := wireInverse(s, r, def); err != nil {
			return nil, err
		}
	}

	s.fingerprint = fingerprint(s)
	return s, nil
}

// MustBuild is Build for static definitions; it panics on error.
func MustBuild(def Definition) *Schema {
	s, err := Build(def)
	if err != nil {
		panic(err)
	}
	return s
}

func buildEntity(order int, ed EntityDefinition) (*Entity, error) {
	if strings.TrimSpace(ed.Name) == "" {
		return nil, invalid("entity %d has no name", order)
	}

	e := &Entity{
		name:      ed.Name,
		className: ed.ClassName,
		order:     order,
		attrIndex: make(map[string]*Attribute, len(ed.Attributes)),
		relIndex:  make(map[string]*Relationship, len(ed.Relationships)),
	}
	if e.className == "" {
		e.className = ed.Name
	}

	idName := ed.Identifier
	if idName == "" {
		idName = DefaultIdentifier
	}

	for _, ad := range ed.Attributes {
		if strings.TrimSpace(ad.Name) == "" {
			return nil, invalid("entity %s has an attribute with no name", e.name)
		}
		if !ad.Type.IsValid() {
			return nil, invalid("attribute %s.%s has unknown type %q", e.name, ad.Name, ad.Type)
		}
		if _, dup := e.attrIndex[ad.Name]; dup {
			return nil, invalid("duplicate property %s.%s", e.name, ad.Name)
		}
		a := &Attribute{name: ad.Name, typ: ad.Type, optional: ad.Optional, entity: e}
		if ad.Name == idName {
			if ad.Type != TypeUUID {
				return nil, invalid("identifier %s.%s must be of type uuid, got %s", e.name, ad.Name, ad.Type)
			}
			a.optional = false
			a.immutable = true
			e.identifier = a
		}
		e.attributes = append(e.attributes, a)
		e.attrIndex[a.name] = a
	}

	if e.identifier == nil {
		return nil, invalid("entity %s has no identifier attribute %s", e.name, idName)
	}
	return e, nil
}

func buildRelationships(s *Schema, e *Entity, defs []RelationshipDefinition) error {
	for _, rd := range defs {
		if strings.TrimSpace(rd.Name) == "" {
			return invalid("entity %s has a relationship with no name", e.name)
		}
		if _, dup := e.attrIndex[rd.Name]; dup {
			return invalid("duplicate property %s.%s", e.name, rd.Name)
		}
		if _, dup := e.relIndex[rd.Name]; dup {
			return invalid("duplicate property %s.%s", e.name, rd.Name)
		}
		dest, ok := s.index[rd.Destination]
		if !ok {
			return invalid("relationship %s.%s: destination entity %q does not exist", e.name, rd.Name, rd.Destination)
		}
		if rd.MinCount < 0 || rd.MaxCount < 0 {
			return invalid("relationship %s.%s: counts must not be negative", e.name, rd.Name)
		}
		if rd.MaxCount != Unbounded && rd.MinCount > rd.MaxCount {
			return invalid("relationship %s.%s: min count %d exceeds max count %d", e.name, rd.Name, rd.MinCount, rd.MaxCount)
		}
		rule := rd.DeleteRule
		if rule == "" {
			rule = DeleteRuleNullify
		}
		if !rule.IsValid() {
			return invalid("relationship %s.%s: unknown delete rule %q", e.name, rd.Name, rd.DeleteRule)
		}

		r := &Relationship{
			name:        rd.Name,
			entity:      e,
			destination: dest,
			minCount:    rd.MinCount,
			maxCount:    rd.MaxCount,
			optional:    rd.Optional,
			deleteRule:  rule,
		}
		e.relationships = append(e.relationships, r)
		e.relIndex[r.name] = r
	}
	return nil
}

func wireInverse(s *Schema, r *Relationship, def Definition) error {
	name := declaredInverse(def, r)
	if name == "" {
		return invalid("relationship %s has no inverse", r.Qualified())
	}
	inv, ok := r.destination.relIndex[name]
	if !ok {
		return invalid("relationship %s: inverse %s.%s does not exist", r.Qualified(), r.destination.name, name)
	}
	if inv == r {
		return invalid("relationship %s must not be its own inverse", r.Qualified())
	}
	if inv.destination != r.entity || declaredInverse(def, inv) != r.name {
		return invalid("relationship %s: inverse %s does not point back", r.Qualified(), inv.Qualified())
	}

	r.inverse = inv
	switch {
	case r.entity.order != inv.entity.order:
		r.owner = r.entity.order < inv.entity.order
	default:
		r.owner = r.name < inv.name
	}
	return nil
}

func declaredInverse(def Definition, r *Relationship) string {
	for _, rd := range def.Entities[r.entity.order].Relationships {
		if rd.Name == r.name {
			return rd.Inverse
		}
	}
	return ""
}

// canonical renders every storage-relevant property of the schema in a
// fixed order. The model version is excluded.
func canonical(s *Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "model %s\n", s.name)
	for _, e := range s.entities {
		fmt.Fprintf(&b, "entity %s id=%s\n", e.name, e.identifier.name)
		for _, a := range e.attributes {
			fmt.Fprintf(&b, "attr %s.%s %s optional=%t\n", e.name, a.name, a.typ, a.optional)
		}
		for _, r := range e.relationships {
			fmt.Fprintf(&b, "rel %s -> %s inverse=%s min=%d max=%d optional=%t delete=%s\n",
				r.Qualified(), r.destination.name, r.inverse.name, r.minCount, r.maxCount, r.optional, r.deleteRule)
		}
	}
	return b.String()
}

func fingerprint(s *Schema) string {
	sum := sha256.Sum256([]byte(canonical(s)))
	return hex.EncodeToString(sum[:8])
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidSchema, fmt.Sprintf(format, args...))
}
