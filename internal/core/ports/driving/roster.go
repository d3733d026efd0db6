package driving

import (
	"context"

	"github.com/google/uuid"

	"github.com/custodia-labs/roster/internal/core/domain"
)

// RosterService manages teams, people and their memberships.
type RosterService interface {
	// CreateTeam inserts a new team.
	CreateTeam(ctx context.Context, name string) (*domain.Team, error)

	// CreatePerson inserts a new person.
	CreatePerson(ctx context.Context, name string) (*domain.Person, error)

	// GetTeam retrieves a team by ID.
	GetTeam(ctx context.Context, id uuid.UUID) (*domain.Team, error)

	// GetPerson retrieves a person by ID.
	GetPerson(ctx context.Context, id uuid.UUID) (*domain.Person, error)

	// ListTeams returns all teams ordered by name.
	ListTeams(ctx context.Context) ([]domain.Team, error)

	// ListPeople returns all people ordered by name.
	ListPeople(ctx context.Context) ([]domain.Person, error)

	// RenameTeam changes a team's name.
	RenameTeam(ctx context.Context, id uuid.UUID, name string) (*domain.Team, error)

	// RenamePerson changes a person's name.
	RenamePerson(ctx context.Context, id uuid.UUID, name string) (*domain.Person, error)

	// AddMember relates a person to a team through the team's members.
	AddMember(ctx context.Context, teamID, personID uuid.UUID) error

	// JoinTeam relates a person to a team through the person's teams.
	JoinTeam(ctx context.Context, personID, teamID uuid.UUID) error

	// RemoveMember removes a person from a team.
	RemoveMember(ctx context.Context, teamID, personID uuid.UUID) error

	// DeleteTeam deletes a team. Its members are kept.
	DeleteTeam(ctx context.Context, id uuid.UUID) error

	// DeletePerson deletes a person. Their teams are kept.
	DeletePerson(ctx context.Context, id uuid.UUID) error
}
