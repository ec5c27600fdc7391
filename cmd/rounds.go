package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MJE43/studio-analyzer/internal/round"
)

var addCmd = &cobra.Command{
	Use:   "add [outcome]",
	Short: "Record a round and print the new analysis",
	Long: `Record a round for a session. The outcome is one of side_a/red/a,
side_b/blue/b or tie/t. Without an outcome both --a and --b cards are
required and the higher card wins.`,
	Example: `  studio add -s <id> red
  studio add -s <id> --a K --b 4
  studio add -s <id> tie --a 7 --b 7`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionFlag(cmd)
		if err != nil {
			return err
		}
		outcome := ""
		if len(args) == 1 {
			outcome = args[0]
		}
		cardA, _ := cmd.Flags().GetString("a")
		cardB, _ := cmd.Flags().GetString("b")
		r, err := round.Parse(outcome, cardA, cardB, time.Now())
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.tracker.AppendRound(commandContext(cmd), id, r)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderResult(res))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear a session's history",
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

		res, err := a.tracker.Clear(commandContext(cmd), id)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderResult(res))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent rounds",
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

		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = a.cfg.Server.HistoryLimit
		}
		rounds, err := a.tracker.Recent(commandContext(cmd), id, limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(rounds) == 0 {
			fmt.Fprintln(out, "no rounds recorded")
			return nil
		}
		fmt.Fprintln(out, renderStrip(rounds))

		t := newTable("#", "TIME", "WINNER", "A", "B", "TIER")
		for _, r := range rounds {
			tier := "-"
			if tr, ok := r.Tier(); ok {
				tier = tr.Label()
			}
			t.Row(fmt.Sprint(r.Index), r.Timestamp.Local().Format(time.TimeOnly),
				renderOutcome(r.Outcome), string(r.SideA), string(r.SideB), tier)
		}
		fmt.Fprintln(out, t.Render())
		return nil
	},
}

func init() {
	addSessionFlag(addCmd)
	addCmd.Flags().String("a", "", "Side A card (2-10, J, Q, K, A)")
	addCmd.Flags().String("b", "", "Side B card (2-10, J, Q, K, A)")

	addSessionFlag(clearCmd)

	addSessionFlag(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 0, "Rounds to show (default server.history_limit)")
}
