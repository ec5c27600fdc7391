package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"tables"},
	Short:   "List, create and delete sessions",
	RunE:    runListSessions,
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Start a new session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		sess, err := a.tracker.CreateSession(commandContext(cmd), name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sess.ID)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a session and all of its rounds",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionFlag(cmd)
		if err != nil {
			return err
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.tracker.DeleteSession(commandContext(cmd), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		return nil
	},
}

func runListSessions(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	list, err := a.tracker.ListSessions(commandContext(cmd), limit, 0)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions yet; start one with: studio sessions new")
		return nil
	}
	t := newTable("ID", "NAME", "ROUNDS", "COOLDOWN", "LAST SEEN")
	for _, s := range list {
		t.Row(s.ID.String(), s.Name, fmt.Sprint(s.Rounds), fmt.Sprint(s.Cooldown), s.LastSeenAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func init() {
	sessionsCmd.Flags().Int("limit", 50, "Maximum sessions to list")
	addSessionFlag(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}
