package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sujalbistaa/entrenous/internal/models"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Work the moderation queue",
}

var flagsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending flags, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		flags, err := a.pipeline.ListPending(cmd.Context())
		if err != nil {
			return err
		}
		if len(flags) == 0 {
			printInfo("Queue is empty.")
			return nil
		}
		rows := make([][]string, 0, len(flags))
		for _, f := range flags {
			source := "user"
			if f.ReporterID == models.SystemReporterID {
				source = "system"
			}
			rows = append(rows, []string{
				strconv.FormatUint(uint64(f.ID), 10),
				fmt.Sprintf("%s/%d", f.TargetType, f.TargetID),
				f.Reason,
				source,
				f.CreatedAt.Format(time.RFC3339),
				f.Details,
			})
		}
		printTable([]string{"ID", "TARGET", "REASON", "SOURCE", "CREATED", "DETAILS"}, rows)
		return nil
	},
}

var flagsReviewCmd = &cobra.Command{
	Use:       "review <flag-id> <dismiss|remove|restore>",
	Short:     "Resolve every pending flag on the flagged target",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"dismiss", "remove", "restore"},
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid flag id %q", args[0])
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.pipeline.Review(cmd.Context(), uint(id), args[1])
		if err != nil {
			return err
		}
		printSuccess("%s on %s/%d closed %d flag(s)", res.Decision, res.TargetType, res.TargetID, res.FlagsClosed)
		if res.TargetHidden {
			printWarning("%s/%d is hidden", res.TargetType, res.TargetID)
		}
		return nil
	},
}

func init() {
	flagsCmd.AddCommand(flagsPendingCmd)
	flagsCmd.AddCommand(flagsReviewCmd)
}
