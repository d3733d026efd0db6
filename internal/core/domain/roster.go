package domain

import "github.com/google/uuid"

// Identifiable is implemented by everything that exposes a stable external identity.
// Consumers use it for list diffing and selection.
type Identifiable interface {
	ID() uuid.UUID
}

// Team is a snapshot of a Team entity.
type Team struct {
	// Identifier is the immutable primary key.
	Identifier uuid.UUID

	// TeamName is the display name of the team.
	TeamName string

	// MemberIDs lists the identifiers of the team's members, sorted.
	MemberIDs []uuid.UUID
}

// ID returns the team identifier.
func (t Team) ID() uuid.UUID {
	return t.Identifier
}

// HasMember reports whether the person is in the team's member set.
func (t Team) HasMember(personID uuid.UUID) bool {
	return containsID(t.MemberIDs, personID)
}

// Person is a snapshot of a Person entity.
type Person struct {
	// Identifier is the immutable primary key.
	Identifier uuid.UUID

	// Name is the person's display name.
	Name string

	// TeamIDs lists the identifiers of the teams the person belongs to, sorted.
	TeamIDs []uuid.UUID
}

// ID returns the person identifier.
func (p Person) ID() uuid.UUID {
	return p.Identifier
}

// InTeam reports whether the person belongs to the team.
func (p Person) InTeam(teamID uuid.UUID) bool {
	return containsID(p.TeamIDs, teamID)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
