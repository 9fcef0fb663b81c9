package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit <ip-or-cidr>",
	Short: "Show account activity from an address's ban prefix, newest first",
	Long:  "Matches on the same prefix a ban would cover, so every address in the /24 (or /64) is included.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.audit.ByAddress(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(events) == 0 {
			printInfo("No activity recorded.")
			return nil
		}
		rows := make([][]string, 0, len(events))
		for _, e := range events {
			rows = append(rows, []string{
				e.CreatedAt.Format(time.RFC3339),
				strconv.FormatUint(uint64(e.UserID), 10),
				e.Action,
				e.IP,
			})
		}
		printTable([]string{"WHEN", "USER", "ACTION", "IP"}, rows)
		return nil
	},
}
