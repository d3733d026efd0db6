package schema

// Names used by the team model.
const (
	ModelName = "TeamModel"

	EntityTeam   = "Team"
	EntityPerson = "Person"

	AttrIdentifier = "identifier"
	AttrTeamName   = "teamName"
	AttrName       = "name"

	RelMembers = "members"
	RelTeams   = "teams"
)

// TeamModelDefinition returns the declarative Team/Person model.
func TeamModelDefinition() Definition {
	return Definition{
		Name:    ModelName,
		Version: 1,
		Entities: []EntityDefinition{
			{
				Name: EntityTeam,
				Attributes: []AttributeDefinition{
					{Name: AttrIdentifier, Type: TypeUUID},
					{Name: AttrTeamName, Type: TypeString},
				},
				Relationships: []RelationshipDefinition{
					{
						Name:        RelMembers,
						Destination: EntityPerson,
						Inverse:     RelTeams,
						MinCount:    0,
						MaxCount:    Unbounded,
						Optional:    true,
						DeleteRule:  DeleteRuleNullify,
					},
				},
			},
			{
				Name: EntityPerson,
				Attributes: []AttributeDefinition{
					{Name: AttrIdentifier, Type: TypeUUID},
					{Name: AttrName, Type: TypeString},
				},
				Relationships: []RelationshipDefinition{
					{
						Name:        RelTeams,
						Destination: EntityTeam,
						Inverse:     RelMembers,
						MinCount:    0,
						MaxCount:    Unbounded,
						Optional:    true,
						DeleteRule:  DeleteRuleNullify,
					},
				},
			},
		},
	}
}

// TeamModel builds the Team/Person model.
func TeamModel() (*Schema, error) {
	return Build(TeamModelDefinition())
}
