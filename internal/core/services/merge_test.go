package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/schema"
)

// conflictSetup saves a Parent{name: "a", city: "x"} and returns two contexts
// that both hold it at version 1.
func conflictSetup(t *testing.T, policy domain.MergePolicy) (ours, theirs *ManagedObject, ctx *ManagedContext, fetch func() *domain.Record) {
	t.Helper()
	coord, store := newTestCoordinator(t, ruleModel(schema.DeleteRuleNullify))
	seed := coord.NewContext("seed", policy)
	parent := mustInsert(t, seed, "Parent", map[string]any{"name": "a", "city": "x"})
	require.NoError(t, seed.Save(context.Background()))

	a := coord.NewContext("a", policy)
	b := coord.NewContext("b", policy)
	ours = mustObject(t, a, "Parent", parent)
	theirs = mustObject(t, b, "Parent", parent)
	fetch = func() *domain.Record { return mustFetchStored(t, store, "Parent", parent) }
	return ours, theirs, a, fetch
}

func TestMergePolicy_AttributeConflicts(t *testing.T) {
	tests := []struct {
		name      string
		policy    domain.MergePolicy
		wantErr   error
		wantName  string
		wantCity  string
		wantDirty bool
	}{
		{
			name:      "error rejects the save",
			policy:    domain.MergePolicyError,
			wantErr:   domain.ErrMergeConflict,
			wantName:  "a",
			wantCity:  "z",
			wantDirty: true,
		},
		{
			name:     "object trump keeps our changed attributes",
			policy:   domain.MergePolicyPropertyObjectTrump,
			wantName: "ours",
			wantCity: "z",
		},
		{
			name:     "store trump keeps stored changes",
			policy:   domain.MergePolicyPropertyStoreTrump,
			wantName: "ours",
			wantCity: "z",
		},
		{
			name:     "overwrite replaces the stored object",
			policy:   domain.MergePolicyOverwrite,
			wantName: "ours",
			wantCity: "x",
		},
		{
			name:     "rollback discards our changes",
			policy:   domain.MergePolicyRollback,
			wantName: "a",
			wantCity: "z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ours, theirs, moc, fetch := conflictSetup(t, tt.policy)

			require.NoError(t, theirs.Set("city", "z"))
			require.NoError(t, theirs.Context().Save(ctx))

			require.NoError(t, ours.Set("name", "ours"))
			err := moc.Save(ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantName, ours.String("name"))
				assert.Equal(t, tt.wantCity, ours.String("city"))
			}

			rec := fetch()
			assert.Equal(t, tt.wantName, rec.Values["name"])
			assert.Equal(t, tt.wantCity, rec.Values["city"])
			assert.Equal(t, tt.wantDirty, moc.HasChanges())
		})
	}
}

func TestMergePolicy_SameAttributeConflict(t *testing.T) {
	tests := []struct {
		policy domain.MergePolicy
		want   string
	}{
		{domain.MergePolicyPropertyObjectTrump, "ours"},
		{domain.MergePolicyPropertyStoreTrump, "theirs"},
		{domain.MergePolicyOverwrite, "ours"},
		{domain.MergePolicyRollback, "theirs"},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			ctx := context.Background()
			ours, theirs, moc, fetch := conflictSetup(t, tt.policy)

			require.NoError(t, theirs.Set("name", "theirs"))
			require.NoError(t, theirs.Context().Save(ctx))

			require.NoError(t, ours.Set("name", "ours"))
			require.NoError(t, ours.Set("city", "mine"))
			require.NoError(t, moc.Save(ctx))

			rec := fetch()
			assert.Equal(t, tt.want, rec.Values["name"])
			assert.Equal(t, tt.want, ours.String("name"))
			assert.Equal(t, rec.Version, ours.Version())
			assert.False(t, moc.HasChanges())
			if tt.policy != domain.MergePolicyRollback {
				assert.Equal(t, "mine", rec.Values["city"], "unconflicted attribute still applies")
			}
		})
	}
}

func TestMergePolicy_NoConflictWithoutConcurrentSave(t *testing.T) {
	for _, policy := range domain.AllMergePolicies() {
		t.Run(policy.String(), func(t *testing.T) {
			ours, _, moc, fetch := conflictSetup(t, policy)

			require.NoError(t, ours.Set("name", "ours"))
			require.NoError(t, moc.Save(context.Background()))

			rec := fetch()
			assert.Equal(t, "ours", rec.Values["name"])
			assert.Equal(t, int64(2), rec.Version)
		})
	}
}

func TestMergePolicy_RelationshipsMergePerLink(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, policy domain.MergePolicy) []uuid.UUID {
		coord, store := newTestCoordinator(t, nil)
		seed := coord.NewContext("seed", policy)
		team := mustInsert(t, seed, schema.EntityTeam, map[string]any{schema.AttrTeamName: "Falcons"})
		ava := mustInsert(t, seed, schema.EntityPerson, map[string]any{schema.AttrName: "Ava"})
		ben := mustInsert(t, seed, schema.EntityPerson, map[string]any{schema.AttrName: "Ben"})
		require.NoError(t, seed.Save(ctx))

		a := coord.NewContext("a", policy)
		b := coord.NewContext("b", policy)
		aTeam := mustObject(t, a, schema.EntityTeam, team)
		bTeam := mustObject(t, b, schema.EntityTeam, team)

		require.NoError(t, bTeam.Relate(schema.RelMembers, mustObject(t, b, schema.EntityPerson, ava)))
		require.NoError(t, b.Save(ctx))

		require.NoError(t, aTeam.Relate(schema.RelMembers, mustObject(t, a, schema.EntityPerson, ben)))
		require.NoError(t, a.Save(ctx))

		rec := mustFetchStored(t, store, schema.EntityTeam, team)
		assert.Equal(t, rec.Relations[schema.RelMembers], aTeam.RelatedIDs(schema.RelMembers))
		return rec.Relations[schema.RelMembers]
	}

	for _, policy := range []domain.MergePolicy{
		domain.MergePolicyError,
		domain.MergePolicyPropertyObjectTrump,
		domain.MergePolicyPropertyStoreTrump,
	} {
		t.Run(policy.String(), func(t *testing.T) {
			assert.Len(t, run(t, policy), 2, "both links survive")
		})
	}

	t.Run("overwrite", func(t *testing.T) {
		assert.Len(t, run(t, domain.MergePolicyOverwrite), 1, "in-memory set replaces the stored set")
	})
}

func TestMergePolicy_UpdateOfDeletedObject(t *testing.T) {
	tests := []struct {
		policy      domain.MergePolicy
		wantErr     error
		wantStored  bool
		wantDeleted bool
	}{
		{policy: domain.MergePolicyError, wantErr: domain.ErrMergeConflict},
		{policy: domain.MergePolicyPropertyObjectTrump, wantStored: true},
		{policy: domain.MergePolicyOverwrite, wantStored: true},
		{policy: domain.MergePolicyPropertyStoreTrump, wantDeleted: true},
		{policy: domain.MergePolicyRollback, wantDeleted: true},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			ctx := context.Background()
			coord, store := newTestCoordinator(t, nil)
			seed := coord.NewContext("seed", tt.policy)
			team := mustInsert(t, seed, schema.EntityTeam, map[string]any{schema.AttrTeamName: "Falcons"})
			require.NoError(t, seed.Save(ctx))

			a := coord.NewContext("a", tt.policy)
			ours := mustObject(t, a, schema.EntityTeam, team)
			require.NoError(t, seed.Delete(ctx, team))
			require.NoError(t, seed.Save(ctx))

			require.NoError(t, ours.Set(schema.AttrTeamName, "Hawks"))
			err := a.Save(ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			rec, err := store.Fetch(ctx, schema.EntityTeam, team.ID())
			if tt.wantStored {
				require.NoError(t, err)
				assert.Equal(t, "Hawks", rec.Values[schema.AttrTeamName])
			} else {
				assert.ErrorIs(t, err, domain.ErrNotFound)
			}
			assert.Equal(t, tt.wantDeleted, ours.IsDeleted())
		})
	}
}

func TestMergePolicy_ErrorOnStaleDelete(t *testing.T) {
	ctx := context.Background()
	ours, theirs, moc, fetch := conflictSetup(t, domain.MergePolicyError)

	require.NoError(t, theirs.Set("name", "b"))
	require.NoError(t, theirs.Context().Save(ctx))

	require.NoError(t, moc.Delete(ctx, ours))
	assert.ErrorIs(t, moc.Save(ctx), domain.ErrMergeConflict)
	assert.Equal(t, "b", fetch().Values["name"])
}

func TestAutoMerge_RefreshesRegisteredObjects(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestCoordinator(t, ruleModel(schema.DeleteRuleNullify))
	view := coord.NewContext("view", domain.DefaultMergePolicy)
	view.SetAutomaticallyMergesChanges(true)
	assert.True(t, view.AutomaticallyMergesChanges())

	parent := mustInsert(t, view, "Parent", map[string]any{"name": "a", "city": "x"})
	require.NoError(t, view.Save(ctx))
	require.NoError(t, parent.Set("city", "local"))

	bg := coord.NewContext("background", domain.DefaultMergePolicy)
	theirs := mustObject(t, bg, "Parent", parent)
	require.NoError(t, theirs.Set("name", "b"))
	child := mustInsert(t, bg, "Child", nil)
	require.NoError(t, child.Relate("parent", theirs))
	require.NoError(t, bg.Save(ctx))

	assert.Equal(t, "b", parent.String("name"), "unchanged attribute refreshed")
	assert.Equal(t, "local", parent.String("city"), "pending change kept")
	assert.Equal(t, []uuid.UUID{child.ID()}, parent.RelatedIDs("children"))
	assert.Equal(t, theirs.Version(), parent.Version())
	assert.True(t, view.HasChanges())

	require.NoError(t, view.Save(ctx))
	assert.Equal(t, "local", mustFetchStored(t, store, "Parent", parent).Values["city"])
}

func TestAutoMerge_PropagatesDeletes(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t, nil)
	view := coord.NewContext("view", domain.DefaultMergePolicy)
	view.SetAutomaticallyMergesChanges(true)

	team := mustInsert(t, view, schema.EntityTeam, map[string]any{schema.AttrTeamName: "Falcons"})
	ava := mustInsert(t, view, schema.EntityPerson, map[string]any{schema.AttrName: "Ava"})
	require.NoError(t, team.Relate(schema.RelMembers, ava))
	require.NoError(t, view.Save(ctx))

	bg := coord.NewContext("background", domain.DefaultMergePolicy)
	require.NoError(t, bg.Delete(ctx, mustObject(t, bg, schema.EntityPerson, ava)))
	require.NoError(t, bg.Save(ctx))

	assert.True(t, ava.IsDeleted())
	assert.Empty(t, team.RelatedIDs(schema.RelMembers))
	assert.False(t, team.IsDeleted(), "deleting a person keeps the team")
	assert.False(t, view.HasChanges())

	_, err := view.Object(ctx, schema.EntityPerson, ava.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAutoMerge_Disabled(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t, nil)
	view := coord.NewContext("view", domain.DefaultMergePolicy)
	view.SetAutomaticallyMergesChanges(true)
	view.SetAutomaticallyMergesChanges(false)

	team := mustInsert(t, view, schema.EntityTeam, map[string]any{schema.AttrTeamName: "Falcons"})
	require.NoError(t, view.Save(ctx))

	bg := coord.NewContext("background", domain.DefaultMergePolicy)
	require.NoError(t, mustObject(t, bg, schema.EntityTeam, team).Set(schema.AttrTeamName, "Hawks"))
	require.NoError(t, bg.Save(ctx))

	assert.Equal(t, "Falcons", team.String(schema.AttrTeamName))
}

func TestAutoMerge_ConcurrentBackgroundSaves(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestCoordinator(t, nil)
	view := coord.NewContext("view", domain.DefaultMergePolicy)
	view.SetAutomaticallyMergesChanges(true)

	team := mustInsert(t, view, schema.EntityTeam, map[string]any{schema.AttrTeamName: "Falcons"})
	require.NoError(t, view.Save(ctx))

	const workers = 16
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			bg := coord.NewContext(fmt.Sprintf("background-%d", i), domain.DefaultMergePolicy)
			bgTeam, err := bg.Object(gctx, schema.EntityTeam, team.ID())
			if err != nil {
				return err
			}
			person, err := bg.Insert(schema.EntityPerson)
			if err != nil {
				return err
			}
			if err := person.Set(schema.AttrName, fmt.Sprintf("p%02d", i)); err != nil {
				return err
			}
			if err := bgTeam.Relate(schema.RelMembers, person); err != nil {
				return err
			}
			return bg.Save(gctx)
		})
	}
	require.NoError(t, g.Wait())

	rec := mustFetchStored(t, store, schema.EntityTeam, team)
	assert.Len(t, rec.Relations[schema.RelMembers], workers)
	assert.Equal(t, rec.Relations[schema.RelMembers], team.RelatedIDs(schema.RelMembers))

	people, err := view.Fetch(ctx, FetchRequest{Entity: schema.EntityPerson})
	require.NoError(t, err)
	assert.Len(t, people, workers)
}
