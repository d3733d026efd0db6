package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/roster/internal/core/schema"
)

func TestSchemaCmd_PrintsModel(t *testing.T) {
	setupTestServices(t)

	out, err := executeCommand(t, "schema")

	require.NoError(t, err)
	model, err := schema.TeamModel()
	require.NoError(t, err)
	assert.Equal(t, model.Describe(), out)
	assert.Contains(t, out, schema.EntityTeam)
	assert.Contains(t, out, schema.EntityPerson)
}
