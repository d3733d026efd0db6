package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/ports/driving"
	"github.com/custodia-labs/roster/internal/core/schema"
)

// Ensure RosterService implements the interface.
var _ driving.RosterService = (*RosterService)(nil)

// RosterService manages teams and people through one managed context.
type RosterService struct {
	mu  sync.Mutex
	moc *ManagedContext
}

// NewRosterService creates a roster service working on moc.
func NewRosterService(moc *ManagedContext) *RosterService {
	return &RosterService{moc: moc}
}

// CreateTeam inserts and saves a new team.
func (s *RosterService) CreateTeam(ctx context.Context, name string) (*domain.Team, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.moc.Insert(schema.EntityTeam)
	if err != nil {
		return nil, err
	}
	if err := obj.Set(schema.AttrTeamName, name); err != nil {
		s.moc.Rollback()
		return nil, err
	}
	if err := s.save(ctx); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}
	team := teamFromObject(obj)
	return &team, nil
}

// CreatePerson inserts and saves a new person.
func (s *RosterService) CreatePerson(ctx context.Context, name string) (*domain.Person, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.moc.Insert(schema.EntityPerson)
	if err != nil {
		return nil, err
	}
	if err := obj.Set(schema.AttrName, name); err != nil {
		s.moc.Rollback()
		return nil, err
	}
	if err := s.save(ctx); err != nil {
		return nil, fmt.Errorf("creating person: %w", err)
	}
	person := personFromObject(obj)
	return &person, nil
}

// GetTeam retrieves a team by ID.
func (s *RosterService) GetTeam(ctx context.Context, id uuid.UUID) (*domain.Team, error) {
	obj, err := s.moc.Object(ctx, schema.EntityTeam, id)
	if err != nil {
		return nil, err
	}
	team := teamFromObject(obj)
	return &team, nil
}

// GetPerson retrieves a person by ID.
func (s *RosterService) GetPerson(ctx context.Context, id uuid.UUID) (*domain.Person, error) {
	obj, err := s.moc.Object(ctx, schema.EntityPerson, id)
	if err != nil {
		return nil, err
	}
	person := personFromObject(obj)
	return &person, nil
}

// ListTeams returns all teams ordered by name.
func (s *RosterService) ListTeams(ctx context.Context) ([]domain.Team, error) {
	objs, err := s.moc.Fetch(ctx, FetchRequest{
		Entity: schema.EntityTeam,
		SortBy: []SortDescriptor{{Key: schema.AttrTeamName, Ascending: true}},
	})
	if err != nil {
		return nil, err
	}
	teams := make([]domain.Team, 0, len(objs))
	for _, obj := range objs {
		teams = append(teams, teamFromObject(obj))
	}
	return teams, nil
}

// ListPeople returns all people ordered by name.
func (s *RosterService) ListPeople(ctx context.Context) ([]domain.Person, error) {
	objs, err := s.moc.Fetch(ctx, FetchRequest{
		Entity: schema.EntityPerson,
		SortBy: []SortDescriptor{{Key: schema.AttrName, Ascending: true}},
	})
	if err != nil {
		return nil, err
	}
	people := make([]domain.Person, 0, len(objs))
	for _, obj := range objs {
		people = append(people, personFromObject(obj))
	}
	return people, nil
}

// RenameTeam changes a team's name.
func (s *RosterService) RenameTeam(ctx context.Context, id uuid.UUID, name string) (*domain.Team, error) {
	obj, err := s.rename(ctx, schema.EntityTeam, schema.AttrTeamName, id, name)
	if err != nil {
		return nil, fmt.Errorf("renaming team: %w", err)
	}
	team := teamFromObject(obj)
	return &team, nil
}

// RenamePerson changes a person's name.
func (s *RosterService) RenamePerson(ctx context.Context, id uuid.UUID, name string) (*domain.Person, error) {
	obj, err := s.rename(ctx, schema.EntityPerson, schema.AttrName, id, name)
	if err != nil {
		return nil, fmt.Errorf("renaming person: %w", err)
	}
	person := personFromObject(obj)
	return &person, nil
}

// AddMember relates a person to a team through the team's members.
func (s *RosterService) AddMember(ctx context.Context, teamID, personID uuid.UUID) error {
	return s.relate(ctx, schema.EntityTeam, teamID, schema.RelMembers, schema.EntityPerson, personID, true)
}

// JoinTeam relates a person to a team through the person's teams.
func (s *RosterService) JoinTeam(ctx context.Context, personID, teamID uuid.UUID) error {
	return s.relate(ctx, schema.EntityPerson, personID, schema.RelTeams, schema.EntityTeam, teamID, true)
}

// RemoveMember removes a person from a team.
func (s *RosterService) RemoveMember(ctx context.Context, teamID, personID uuid.UUID) error {
	return s.relate(ctx, schema.EntityTeam, teamID, schema.RelMembers, schema.EntityPerson, personID, false)
}

// DeleteTeam deletes a team. Its members are kept.
func (s *RosterService) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	return s.delete(ctx, schema.EntityTeam, id)
}

// DeletePerson deletes a person. Their teams are kept.
func (s *RosterService) DeletePerson(ctx context.Context, id uuid.UUID) error {
	return s.delete(ctx, schema.EntityPerson, id)
}

func (s *RosterService) rename(ctx context.Context, entity, attr string, id uuid.UUID, name string) (*ManagedObject, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.moc.Object(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	if err := obj.Set(attr, name); err != nil {
		return nil, err
	}
	if err := s.save(ctx); err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *RosterService) relate(ctx context.Context, entity string, id uuid.UUID, rel, otherEntity string, otherID uuid.UUID, add bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.moc.Object(ctx, entity, id)
	if err != nil {
		return err
	}
	other, err := s.moc.Object(ctx, otherEntity, otherID)
	if err != nil {
		return err
	}
	if add {
		err = obj.Relate(rel, other)
	} else {
		err = obj.Unrelate(rel, other)
	}
	if err != nil {
		return err
	}
	if err := s.save(ctx); err != nil {
		return fmt.Errorf("updating %s.%s: %w", entity, rel, err)
	}
	return nil
}

func (s *RosterService) delete(ctx context.Context, entity string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.moc.Object(ctx, entity, id)
	if err != nil {
		return err
	}
	if err := s.moc.Delete(ctx, obj); err != nil {
		s.moc.Rollback()
		return err
	}
	if err := s.save(ctx); err != nil {
		return fmt.Errorf("deleting %s: %w", strings.ToLower(entity), err)
	}
	return nil
}

// save saves the context, discarding pending changes on failure.
func (s *RosterService) save(ctx context.Context) error {
	if err := s.moc.Save(ctx); err != nil {
		s.moc.Rollback()
		return err
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name must not be empty", domain.ErrInvalidInput)
	}
	return name, nil
}

func teamFromObject(obj *ManagedObject) domain.Team {
	return domain.Team{
		Identifier: obj.ID(),
		TeamName:   obj.String(schema.AttrTeamName),
		MemberIDs:  obj.RelatedIDs(schema.RelMembers),
	}
}

func personFromObject(obj *ManagedObject) domain.Person {
	return domain.Person{
		Identifier: obj.ID(),
		Name:       obj.String(schema.AttrName),
		TeamIDs:    obj.RelatedIDs(schema.RelTeams),
	}
}
