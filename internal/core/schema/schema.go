package schema

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// AttributeType identifies the value type of an attribute.
type AttributeType string

// Supported attribute types.
const (
	TypeUUID      AttributeType = "uuid"
	TypeString    AttributeType = "string"
	TypeInteger64 AttributeType = "integer64"
	TypeBoolean   AttributeType = "boolean"
	TypeDate      AttributeType = "date"
)

// IsValid returns true if the attribute type is recognised.
func (t AttributeType) IsValid() bool {
	switch t {
	case TypeUUID, TypeString, TypeInteger64, TypeBoolean, TypeDate:
		return true
	default:
		return false
	}
}

// ZeroValue returns the value a new object starts with for a required attribute.
func (t AttributeType) ZeroValue() any {
	switch t {
	case TypeUUID:
		return uuid.Nil
	case TypeString:
		return ""
	case TypeInteger64:
		return int64(0)
	case TypeBoolean:
		return false
	case TypeDate:
		return time.Time{}
	default:
		return nil
	}
}

// Accepts reports whether v is a valid non-nil value for the type.
func (t AttributeType) Accepts(v any) bool {
	switch v.(type) {
	case uuid.UUID:
		return t == TypeUUID
	case string:
		return t == TypeString
	case int64:
		return t == TypeInteger64
	case bool:
		return t == TypeBoolean
	case time.Time:
		return t == TypeDate
	default:
		return false
	}
}

// DeleteRule decides what happens to related objects when an object is deleted.
type DeleteRule string

// Supported delete rules.
const (
	// DeleteRuleNullify removes the deleted object from related objects' relationship sets.
	DeleteRuleNullify DeleteRule = "nullify"

	// DeleteRuleCascade deletes related objects as well.
	DeleteRuleCascade DeleteRule = "cascade"

	// DeleteRuleDeny refuses the deletion while related objects exist.
	DeleteRuleDeny DeleteRule = "deny"

	// DeleteRuleNoAction leaves related objects untouched.
	DeleteRuleNoAction DeleteRule = "noAction"
)

// IsValid returns true if the delete rule is recognised.
func (r DeleteRule) IsValid() bool {
	switch r {
	case DeleteRuleNullify, DeleteRuleCascade, DeleteRuleDeny, DeleteRuleNoAction:
		return true
	default:
		return false
	}
}

// Unbounded is the MaxCount value meaning "no upper limit".
const Unbounded = 0

// Schema is a validated, immutable object model.
type Schema struct {
	name        string
	version     int
	entities    []*Entity
	index       map[string]*Entity
	fingerprint string
}

// Name returns the model name.
func (s *Schema) Name() string { return s.name }

// Version returns the declared model version.
func (s *Schema) Version() int { return s.version }

// Entities returns the entity descriptors in declaration order.
func (s *Schema) Entities() []*Entity {
	return append([]*Entity(nil), s.entities...)
}

// Entity looks up an entity descriptor by name.
func (s *Schema) Entity(name string) (*Entity, bool) {
	e, ok := s.index[name]
	return e, ok
}

// Relationships returns every relationship descriptor of every entity.
func (s *Schema) Relationships() []*Relationship {
	var rels []*Relationship
	for _, e := range s.entities {
		rels = append(rels, e.relationships...)
	}
	return rels
}

// Relationship looks up a relationship by entity and relationship name.
func (s *Schema) Relationship(entity, name string) (*Relationship, bool) {
	e, ok := s.index[entity]
	if !ok {
		return nil, false
	}
	return e.Relationship(name)
}

// Fingerprint is a stable hash of the model shape.
// Two schemas with equal fingerprints are storage compatible.
func (s *Schema) Fingerprint() string { return s.fingerprint }

// Describe renders a human-readable description of the model.
func (s *Schema) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%d (fingerprint %s)\n", s.name, s.version, s.fingerprint)
	for _, e := range s.entities {
		fmt.Fprintf(&b, "  %s\n", e.name)
		for _, a := range e.attributes {
			flags := ""
			if a == e.identifier {
				flags = " (identifier)"
			} else if a.optional {
				flags = " (optional)"
			}
			fmt.Fprintf(&b, "    %s: %s%s\n", a.name, a.typ, flags)
		}
		for _, r := range e.relationships {
			opt := "required"
			if r.optional {
				opt = "optional"
			}
			fmt.Fprintf(&b, "    %s: %s %s, inverse %s, %s, %s, %s\n",
				r.name, r.kind(), r.destination.name, r.inverse.name, r.cardinality(), opt, r.deleteRule)
		}
	}
	return b.String()
}

// Entity describes one record type.
type Entity struct {
	name          string
	className     string
	order         int
	identifier    *Attribute
	attributes    []*Attribute
	relationships []*Relationship
	attrIndex     map[string]*Attribute
	relIndex      map[string]*Relationship
}

// Name returns the entity name.
func (e *Entity) Name() string { return e.name }

// ClassName returns the name of the type that represents instances.
func (e *Entity) ClassName() string { return e.className }

// Table returns the storage table name.
func (e *Entity) Table() string { return snakeCase(e.name) }

// Identifier returns the primary key attribute.
func (e *Entity) Identifier() *Attribute { return e.identifier }

// Attributes returns the attribute descriptors in declaration order.
func (e *Entity) Attributes() []*Attribute {
	return append([]*Attribute(nil), e.attributes...)
}

// Attribute looks up an attribute by name.
func (e *Entity) Attribute(name string) (*Attribute, bool) {
	a, ok := e.attrIndex[name]
	return a, ok
}

// Relationships returns the relationship descriptors in declaration order.
func (e *Entity) Relationships() []*Relationship {
	return append([]*Relationship(nil), e.relationships...)
}

// Relationship looks up a relationship by name.
func (e *Entity) Relationship(name string) (*Relationship, bool) {
	r, ok := e.relIndex[name]
	return r, ok
}

// Attribute describes a typed field.
type Attribute struct {
	name      string
	typ       AttributeType
	optional  bool
	immutable bool
	entity    *Entity
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.name }

// Type returns the value type.
func (a *Attribute) Type() AttributeType { return a.typ }

// IsOptional reports whether the attribute may be nil.
func (a *Attribute) IsOptional() bool { return a.optional }

// IsImmutable reports whether the attribute is fixed after creation.
func (a *Attribute) IsImmutable() bool { return a.immutable }

// Entity returns the owning entity.
func (a *Attribute) Entity() *Entity { return a.entity }

// Column returns the storage column name.
func (a *Attribute) Column() string { return snakeCase(a.name) }

// Relationship describes a relationship edge and its inverse.
type Relationship struct {
	name        string
	entity      *Entity
	destination *Entity
	inverse     *Relationship
	minCount    int
	maxCount    int
	optional    bool
	deleteRule  DeleteRule
	owner       bool
}

// Name returns the relationship name.
func (r *Relationship) Name() string { return r.name }

// Entity returns the source entity.
func (r *Relationship) Entity() *Entity { return r.entity }

// Destination returns the destination entity.
func (r *Relationship) Destination() *Entity { return r.destination }

// Inverse returns the inverse relationship. Inverse().Inverse() is r.
func (r *Relationship) Inverse() *Relationship { return r.inverse }

// MinCount returns the minimum number of related objects.
func (r *Relationship) MinCount() int { return r.minCount }

// MaxCount returns the maximum number of related objects; Unbounded means no limit.
func (r *Relationship) MaxCount() int { return r.maxCount }

// IsOptional reports whether the relationship may be empty.
func (r *Relationship) IsOptional() bool { return r.optional }

// DeleteRule returns the rule applied to destinations when the source is deleted.
func (r *Relationship) DeleteRule() DeleteRule { return r.deleteRule }

// IsToMany reports whether the relationship holds more than one object.
func (r *Relationship) IsToMany() bool { return r.maxCount != 1 }

// IsOwner reports whether this side of the pair owns the join table.
func (r *Relationship) IsOwner() bool { return r.owner }

// Owner returns the owning side of the pair.
func (r *Relationship) Owner() *Relationship {
	if r.owner {
		return r
	}
	return r.inverse
}

// JoinTable returns the storage table holding the pair's links.
func (r *Relationship) JoinTable() string {
	o := r.Owner()
	return o.entity.Table() + "_" + snakeCase(o.name)
}

// Qualified returns "Entity.relationship".
func (r *Relationship) Qualified() string {
	return r.entity.name + "." + r.name
}

// AllowsCount reports whether n related objects satisfy the cardinality constraints.
func (r *Relationship) AllowsCount(n int) bool {
	if r.maxCount != Unbounded && n > r.maxCount {
		return false
	}
	if n == 0 {
		return r.optional
	}
	return n >= r.minCount
}

func (r *Relationship) kind() string {
	if r.IsToMany() {
		return "to-many"
	}
	return "to-one"
}

func (r *Relationship) cardinality() string {
	if r.maxCount == Unbounded {
		return fmt.Sprintf("%d..*", r.minCount)
	}
	return fmt.Sprintf("%d..%d", r.minCount, r.maxCount)
}

// snakeCase converts camelCase and PascalCase names to snake_case.
func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
