package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage teams",
	Long:  `Create, list, rename and delete teams and change their members.`,
}

var teamCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a team",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamCreate,
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List teams",
	Args:  cobra.NoArgs,
	RunE:  runTeamList,
}

var teamShowCmd = &cobra.Command{
	Use:   "show [team-id]",
	Short: "Show a team and its members",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamShow,
}

var teamRenameCmd = &cobra.Command{
	Use:   "rename [team-id] [name]",
	Short: "Rename a team",
	Args:  cobra.ExactArgs(2),
	RunE:  runTeamRename,
}

var teamDeleteCmd = &cobra.Command{
	Use:   "delete [team-id]",
	Short: "Delete a team",
	Long:  `Deletes a team. Its members are kept and only lose their membership.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamDelete,
}

var teamAddMemberCmd = &cobra.Command{
	Use:   "add-member [team-id] [person-id]",
	Short: "Add a person to a team",
	Args:  cobra.ExactArgs(2),
	RunE:  runTeamAddMember,
}

var teamRemoveMemberCmd = &cobra.Command{
	Use:   "remove-member [team-id] [person-id]",
	Short: "Remove a person from a team",
	Args:  cobra.ExactArgs(2),
	RunE:  runTeamRemoveMember,
}

func init() {
	teamCmd.AddCommand(teamCreateCmd)
	teamCmd.AddCommand(teamListCmd)
	teamCmd.AddCommand(teamShowCmd)
	teamCmd.AddCommand(teamRenameCmd)
	teamCmd.AddCommand(teamDeleteCmd)
	teamCmd.AddCommand(teamAddMemberCmd)
	teamCmd.AddCommand(teamRemoveMemberCmd)
	rootCmd.AddCommand(teamCmd)
}

func runTeamCreate(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}

	team, err := rosterService.CreateTeam(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	cmd.Printf("Created team %s\n", team.TeamName)
	cmd.Printf("  ID: %s\n", team.ID())
	return nil
}

func runTeamList(cmd *cobra.Command, _ []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}

	teams, err := rosterService.ListTeams(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list teams: %w", err)
	}

	if len(teams) == 0 {
		cmd.Println("No teams found.")
		return nil
	}

	cmd.Println("Teams:")
	cmd.Println()
	for i := range teams {
		cmd.Printf("  %s\n", teams[i].ID())
		cmd.Printf("    Name: %s\n", teams[i].TeamName)
		cmd.Printf("    Members: %d\n", len(teams[i].MemberIDs))
		cmd.Println()
	}

	cmd.Printf("Total: %d teams\n", len(teams))
	return nil
}

func runTeamShow(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}
	id, err := parseID("team", args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()

	team, err := rosterService.GetTeam(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get team: %w", err)
	}

	cmd.Printf("Team: %s\n\n", team.ID())
	cmd.Printf("  Name:    %s\n", team.TeamName)
	cmd.Printf("  Members: %d\n", len(team.MemberIDs))
	for _, personID := range team.MemberIDs {
		person, err := rosterService.GetPerson(ctx, personID)
		if err != nil {
			return fmt.Errorf("failed to get member %s: %w", personID, err)
		}
		cmd.Printf("    %s  %s\n", person.ID(), person.Name)
	}
	return nil
}

func runTeamRename(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}
	id, err := parseID("team", args[0])
	if err != nil {
		return err
	}

	team, err := rosterService.RenameTeam(context.Background(), id, args[1])
	if err != nil {
		return fmt.Errorf("failed to rename team: %w", err)
	}

	cmd.Printf("Renamed team %s to %s\n", team.ID(), team.TeamName)
	return nil
}

func runTeamDelete(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}
	id, err := parseID("team", args[0])
	if err != nil {
		return err
	}

	if err := rosterService.DeleteTeam(context.Background(), id); err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	cmd.Printf("Deleted team %s\n", id)
	return nil
}

func runTeamAddMember(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}
	teamID, err := parseID("team", args[0])
	if err != nil {
		return err
	}
	personID, err := parseID("person", args[1])
	if err != nil {
		return err
	}

	if err := rosterService.AddMember(context.Background(), teamID, personID); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	cmd.Printf("Added %s to team %s\n", personID, teamID)
	return nil
}

func runTeamRemoveMember(cmd *cobra.Command, args []string) error {
	if rosterService == nil {
		return errRosterNotConfigured
	}
	teamID, err := parseID("team", args[0])
	if err != nil {
		return err
	}
	personID, err := parseID("person", args[1])
	if err != nil {
		return err
	}

	if err := rosterService.RemoveMember(context.Background(), teamID, personID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	cmd.Printf("Removed %s from team %s\n", personID, teamID)
	return nil
}
