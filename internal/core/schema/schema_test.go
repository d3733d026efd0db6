package schema

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/roster/internal/core/domain"
)

func TestTeamModel_Shape(t *testing.T) {
	s, err := TeamModel()
	require.NoError(t, err)

	assert.Equal(t, ModelName, s.Name())
	require.Len(t, s.Entities(), 2)

	team, ok := s.Entity(EntityTeam)
	require.True(t, ok)
	person, ok := s.Entity(EntityPerson)
	require.True(t, ok)

	assert.Equal(t, AttrIdentifier, team.Identifier().Name())
	assert.True(t, team.Identifier().IsImmutable())
	assert.False(t, team.Identifier().IsOptional())

	teamName, ok := team.Attribute(AttrTeamName)
	require.True(t, ok)
	assert.Equal(t, TypeString, teamName.Type())
	assert.Equal(t, "team_name", teamName.Column())

	members, ok := team.Relationship(RelMembers)
	require.True(t, ok)
	assert.Same(t, person, members.Destination())
	assert.True(t, members.IsToMany())
	assert.True(t, members.IsOptional())
	assert.Equal(t, 0, members.MinCount())
	assert.Equal(t, Unbounded, members.MaxCount())
	assert.Equal(t, DeleteRuleNullify, members.DeleteRule())

	teams, ok := person.Relationship(RelTeams)
	require.True(t, ok)
	assert.Same(t, team, teams.Destination())
	assert.Same(t, teams, members.Inverse())
}

func TestRelationship_InverseOfInverse(t *testing.T) {
	s, err := TeamModel()
	require.NoError(t, err)

	for _, r := range s.Relationships() {
		assert.Same(t, r, r.Inverse().Inverse(), r.Qualified())
		assert.Same(t, r.Entity(), r.Inverse().Destination(), r.Qualified())
	}
}

func TestRelationship_JoinTable(t *testing.T) {
	s := MustBuild(TeamModelDefinition())
	team, _ := s.Entity(EntityTeam)
	person, _ := s.Entity(EntityPerson)
	members, _ := team.Relationship(RelMembers)
	teams, _ := person.Relationship(RelTeams)

	assert.True(t, members.IsOwner())
	assert.False(t, teams.IsOwner())
	assert.Same(t, members, teams.Owner())
	assert.Equal(t, "team_members", members.JoinTable())
	assert.Equal(t, "team_members", teams.JoinTable())
}

func TestRelationship_AllowsCount(t *testing.T) {
	s := MustBuild(Definition{
		Name: "Bounded",
		Entities: []EntityDefinition{
			{
				Name:       "A",
				Attributes: []AttributeDefinition{{Name: "identifier", Type: TypeUUID}},
				Relationships: []RelationshipDefinition{
					{Name: "bs", Destination: "B", Inverse: "as", MinCount: 1, MaxCount: 3},
				},
			},
			{
				Name:       "B",
				Attributes: []AttributeDefinition{{Name: "identifier", Type: TypeUUID}},
				Relationships: []RelationshipDefinition{
					{Name: "as", Destination: "A", Inverse: "bs", MaxCount: 1, Optional: true},
				},
			},
		},
	})
	a, _ := s.Entity("A")
	b, _ := s.Entity("B")
	bs, _ := a.Relationship("bs")
	as, _ := b.Relationship("as")

	assert.False(t, bs.AllowsCount(0))
	assert.True(t, bs.AllowsCount(1))
	assert.True(t, bs.AllowsCount(3))
	assert.False(t, bs.AllowsCount(4))

	assert.False(t, as.IsToMany())
	assert.True(t, as.AllowsCount(0))
	assert.True(t, as.AllowsCount(1))
	assert.False(t, as.AllowsCount(2))
}

func TestSchema_Describe(t *testing.T) {
	s := MustBuild(TeamModelDefinition())

	want := fmt.Sprintf(`TeamModel v1 (fingerprint %s)
  Team
    identifier: uuid (identifier)
    teamName: string
    members: to-many Person, inverse teams, 0..*, optional, nullify
  Person
    identifier: uuid (identifier)
    name: string
    teams: to-many Team, inverse members, 0..*, optional, nullify
`, s.Fingerprint())

	if diff := cmp.Diff(want, s.Describe()); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}

func TestSchema_Fingerprint(t *testing.T) {
	a := MustBuild(TeamModelDefinition())
	b := MustBuild(TeamModelDefinition())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)

	bumped := TeamModelDefinition()
	bumped.Version = 7
	assert.Equal(t, a.Fingerprint(), MustBuild(bumped).Fingerprint(), "version does not affect storage shape")

	changed := TeamModelDefinition()
	changed.Entities[0].Attributes = append(changed.Entities[0].Attributes,
		AttributeDefinition{Name: "founded", Type: TypeDate, Optional: true})
	assert.NotEqual(t, a.Fingerprint(), MustBuild(changed).Fingerprint())
}

func TestBuild_Errors(t *testing.T) {
	id := AttributeDefinition{Name: "identifier", Type: TypeUUID}

	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{
			name:   "empty model name",
			mutate: func(d *Definition) { d.Name = "" },
		},
		{
			name:   "no entities",
			mutate: func(d *Definition) { d.Entities = nil },
		},
		{
			name:   "entity without name",
			mutate: func(d *Definition) { d.Entities[0].Name = "" },
		},
		{
			name:   "duplicate entity",
			mutate: func(d *Definition) { d.Entities[1].Name = EntityTeam },
		},
		{
			name: "duplicate attribute",
			mutate: func(d *Definition) {
				d.Entities[0].Attributes = append(d.Entities[0].Attributes,
					AttributeDefinition{Name: AttrTeamName, Type: TypeString})
			},
		},
		{
			name: "relationship shadows attribute",
			mutate: func(d *Definition) {
				d.Entities[0].Relationships[0].Name = AttrTeamName
				d.Entities[1].Relationships[0].Inverse = AttrTeamName
			},
		},
		{
			name:   "missing identifier",
			mutate: func(d *Definition) { d.Entities[0].Attributes = d.Entities[0].Attributes[1:] },
		},
		{
			name:   "identifier not uuid",
			mutate: func(d *Definition) { d.Entities[0].Attributes[0].Type = TypeString },
		},
		{
			name:   "unknown attribute type",
			mutate: func(d *Definition) { d.Entities[0].Attributes[1].Type = "decimal" },
		},
		{
			name:   "unknown destination",
			mutate: func(d *Definition) { d.Entities[0].Relationships[0].Destination = "Player" },
		},
		{
			name:   "missing inverse",
			mutate: func(d *Definition) { d.Entities[0].Relationships[0].Inverse = "" },
		},
		{
			name:   "inverse does not exist",
			mutate: func(d *Definition) { d.Entities[0].Relationships[0].Inverse = "clubs" },
		},
		{
			name: "asymmetric inverse",
			mutate: func(d *Definition) {
				d.Entities[1].Relationships = append(d.Entities[1].Relationships, RelationshipDefinition{
					Name: "captains", Destination: EntityTeam, Inverse: RelMembers, Optional: true,
				})
				d.Entities[1].Relationships[0].Inverse = "captains"
			},
		},
		{
			name:   "negative min count",
			mutate: func(d *Definition) { d.Entities[0].Relationships[0].MinCount = -1 },
		},
		{
			name: "min exceeds max",
			mutate: func(d *Definition) {
				d.Entities[0].Relationships[0].MinCount = 3
				d.Entities[0].Relationships[0].MaxCount = 2
			},
		},
		{
			name:   "unknown delete rule",
			mutate: func(d *Definition) { d.Entities[0].Relationships[0].DeleteRule = "explode" },
		},
		{
			name: "self inverse",
			mutate: func(d *Definition) {
				d.Entities = append(d.Entities, EntityDefinition{
					Name:       "Node",
					Attributes: []AttributeDefinition{id},
					Relationships: []RelationshipDefinition{
						{Name: "peers", Destination: "Node", Inverse: "peers", Optional: true},
					},
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := TeamModelDefinition()
			tt.mutate(&def)

			s, err := Build(def)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, domain.ErrInvalidSchema)
		})
	}
}

func TestBuild_Defaults(t *testing.T) {
	s, err := Build(Definition{
		Name: "Tree",
		Entities: []EntityDefinition{
			{
				Name:       "Node",
				Identifier: "uid",
				Attributes: []AttributeDefinition{{Name: "uid", Type: TypeUUID, Optional: true}},
				Relationships: []RelationshipDefinition{
					{Name: "children", Destination: "Node", Inverse: "parent", Optional: true},
					{Name: "parent", Destination: "Node", Inverse: "children", MaxCount: 1, Optional: true},
				},
			},
		},
	})
	require.NoError(t, err)

	node, _ := s.Entity("Node")
	assert.Equal(t, "Node", node.ClassName())
	assert.Equal(t, "uid", node.Identifier().Name())
	assert.False(t, node.Identifier().IsOptional(), "identifier is always required")

	children, _ := node.Relationship("children")
	parent, _ := node.Relationship("parent")
	assert.Equal(t, DeleteRuleNullify, children.DeleteRule())
	assert.True(t, children.IsOwner(), "same-entity pairs are owned by the lexically first name")
	assert.False(t, parent.IsOwner())
	assert.Equal(t, "node_children", parent.JoinTable())
	assert.Same(t, parent, children.Inverse())
}

func TestMustBuild_Panics(t *testing.T) {
	assert.Panics(t, func() { MustBuild(Definition{}) })
}

func TestAttributeType_Accepts(t *testing.T) {
	tests := []struct {
		typ   AttributeType
		value any
		want  bool
	}{
		{TypeUUID, uuid.New(), true},
		{TypeUUID, "not-a-uuid", false},
		{TypeString, "x", true},
		{TypeString, 1, false},
		{TypeInteger64, int64(1), true},
		{TypeInteger64, 1, false},
		{TypeBoolean, true, true},
		{TypeDate, time.Now(), true},
		{TypeDate, nil, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%T", tt.typ, tt.value), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Accepts(tt.value))
		})
	}
}

func TestAttributeType_ZeroValue(t *testing.T) {
	for _, typ := range []AttributeType{TypeUUID, TypeString, TypeInteger64, TypeBoolean, TypeDate} {
		assert.True(t, typ.IsValid())
		assert.True(t, typ.Accepts(typ.ZeroValue()), typ)
	}
	assert.Nil(t, AttributeType("bogus").ZeroValue())
}

func TestDeleteRule_IsValid(t *testing.T) {
	for _, r := range []DeleteRule{DeleteRuleNullify, DeleteRuleCascade, DeleteRuleDeny, DeleteRuleNoAction} {
		assert.True(t, r.IsValid(), r)
	}
	assert.False(t, DeleteRule("").IsValid())
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"teamName":   "team_name",
		"TeamModel":  "team_model",
		"identifier": "identifier",
		"Team":       "team",
		"ID":         "id",
	}
	for in, want := range tests {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestSchema_Relationship(t *testing.T) {
	s := MustBuild(TeamModelDefinition())

	r, ok := s.Relationship(EntityTeam, RelMembers)
	require.True(t, ok)
	assert.Equal(t, "Team.members", r.Qualified())

	_, ok = s.Relationship(EntityTeam, "coaches")
	assert.False(t, ok)
	_, ok = s.Relationship("Player", RelTeams)
	assert.False(t, ok)
}
