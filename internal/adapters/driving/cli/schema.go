package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/roster/internal/core/schema"
)

var schemaCmd = &cobra.Command{
	Use:         "schema",
	Short:       "Print the data model",
	Long:        `Prints the entities, attributes and relationships of the team model.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE:        runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	model, err := schema.TeamModel()
	if err != nil {
		return fmt.Errorf("failed to build model: %w", err)
	}
	cmd.Print(model.Describe())
	return nil
}
