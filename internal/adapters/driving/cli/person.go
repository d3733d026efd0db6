package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Manage people",
	Long:  `Create, list, rename and delete people and add them to teams.`,
}

var personCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a person",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonCreate,
}

var personListCmd = &cobra.Command{
	Use:   "list",
	Short: "List people",
	Args:  cobra.NoArgs,
	RunE:  runPersonList,
}

var personShowCmd = &cobra.Command{
	Use:   "show [person-id]",
	Short: "Show a person and their teams",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonShow,
}

var personRenameCmd = &cobra.Command{
	Use:   "rename [person-id] [name]",
	Short: "Rename a person",
	Args:  cobra.ExactArgs(2),
	RunE:  runPersonRename,
}

var personDeleteCmd = &cobra.Command{
	Use:   "delete [person-id]",
	Short: "Delete a person",
	Long:  `Deletes a person. Their teams are kept.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonDelete,
}

var personJoinCmd = &cobra.Command{
	Use:   "join [person-id] [team-id]",
	Short: "Add a person to a team",
	Args:  cobra.ExactArgs(2),
	RunE:  runPersonJoin,
}

func init() {
	personCmd.AddCommand(personCreateCmd)
	personCmd.AddCommand(personListCmd)
	personCmd.AddCommand(personShowCmd)
	personCmd.AddCommand(personRenameCmd)
	personCmd.AddCommand(personDeleteCmd)
	personCmd.AddCommand(personJoinCmd)
	rootCmd.AddCommand(personCmd)
}

func runPersonCreate(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}

	person, err := rosterService.CreatePerson(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}

	cmd.Printf("Created person %s\n", person.Name)
	cmd.Printf("  ID: %s\n", person.ID())
	return nil
}

func runPersonList(cmd *cobra.Command, _ []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}

	people, err := rosterService.ListPeople(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list people: %w", err)
	}

	if len(people) == 0 {
		cmd.Println("No people found.")
		return nil
	}

	cmd.Println("People:")
	cmd.Println()
	for i := range people {
		cmd.Printf("  %s\n", people[i].ID())
		cmd.Printf("    Name: %s\n", people[i].Name)
		cmd.Printf("    Teams: %d\n", len(people[i].TeamIDs))
		cmd.Println()
	}

	cmd.Printf("Total: %d people\n", len(people))
	return nil
}

func runPersonShow(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}
	id, err := parseID("person", args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()

	person, err := rosterService.GetPerson(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get person: %w", err)
	}

	cmd.Printf("Person: %s\n\n", person.ID())
	cmd.Printf("  Name:  %s\n", person.Name)
	cmd.Printf("  Teams: %d\n", len(person.TeamIDs))
	for _, teamID := range person.TeamIDs {
		team, err := rosterService.GetTeam(ctx, teamID)
		if err != nil {
			return fmt.Errorf("failed to get team %s: %w", teamID, err)
		}
		cmd.Printf("    %s  %s\n", team.ID(), team.TeamName)
	}
	return nil
}

func runPersonRename(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}
	id, err := parseID("person", args[0])
	if err != nil {
		return err
	}

	person, err := rosterService.RenamePerson(context.Background(), id, args[1])
	if err != nil {
		return fmt.Errorf("failed to rename person: %w", err)
	}

	cmd.Printf("Renamed person %s to %s\n", person.ID(), person.Name)
	return nil
}

func runPersonDelete(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}
	id, err := parseID("person", args[0])
	if err != nil {
		return err
	}

	if err := rosterService.DeletePerson(context.Background(), id); err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}

	cmd.Printf("Deleted person %s\n", id)
	return nil
}

func runPersonJoin(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}
	personID, err := parseID("person", args[0])
	if err != nil {
		return err
	}
	teamID, err := parseID("team", args[1])
	if err != nil {
		return err
	}

	if err := rosterService.JoinTeam(context.Background(), personID, teamID); err != nil {
		return fmt.Errorf("failed to join team: %w", err)
	}

	cmd.Printf("%s joined team %s\n", personID, teamID)
	return nil
}
