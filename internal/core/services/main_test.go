package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/custodia-labs/roster/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestCoordinator returns a coordinator over a fresh in-memory store.
func newTestCoordinator(t *testing.T, model *schema.Schema) (*StoreCoordinator, *memory.RecordStore) {
	t.Helper()
	if model == nil {
		var err error
		model, err = schema.TeamModel()
		require.NoError(t, err)
	}
	store := memory.NewRecordStore(model, nil)
	t.Cleanup(func() { _ = store.Close() })
	return NewStoreCoordinator(model, store, nil), store
}

// ruleModel is a Parent/Child model whose Parent.children uses the given delete rule.
func ruleModel(rule schema.DeleteRule) *schema.Schema {
	return schema.MustBuild(schema.Definition{
		Name: "Rules",
		Entities: []schema.EntityDefinition{
			{
				Name: "Parent",
				Attributes: []schema.AttributeDefinition{
					{Name: "identifier", Type: schema.TypeUUID},
					{Name: "name", Type: schema.TypeString},
					{Name: "city", Type: schema.TypeString, Optional: true},
				},
				Relationships: []schema.RelationshipDefinition{
					{Name: "children", Destination: "Child", Inverse: "parent", Optional: true, DeleteRule: rule},
				},
			},
			{
				Name: "Child",
				Attributes: []schema.AttributeDefinition{
					{Name: "identifier", Type: schema.TypeUUID},
				},
				Relationships: []schema.RelationshipDefinition{
					{Name: "parent", Destination: "Parent", Inverse: "children", MaxCount: 1, Optional: true},
				},
			},
		},
	})
}

func mustInsert(t *testing.T, moc *ManagedContext, entity string, values map[string]any) *ManagedObject {
	t.Helper()
	obj, err := moc.Insert(entity)
	require.NoError(t, err)
	for k, v := range values {
		require.NoError(t, obj.Set(k, v))
	}
	return obj
}

func mustObject(t *testing.T, moc *ManagedContext, entity string, obj *ManagedObject) *ManagedObject {
	t.Helper()
	got, err := moc.Object(context.Background(), entity, obj.ID())
	require.NoError(t, err)
	return got
}

func mustFetchStored(t *testing.T, store *memory.RecordStore, entity string, obj *ManagedObject) *domain.Record {
	t.Helper()
	rec, err := store.Fetch(context.Background(), entity, obj.ID())
	require.NoError(t, err)
	return rec
}
