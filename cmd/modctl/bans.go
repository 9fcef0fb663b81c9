package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	banReason    string
	banListLimit int
)

var banCmd = &cobra.Command{
	Use:   "ban",
	Short: "Manage IP prefix bans",
	Long:  "Bare addresses are widened to BAN_IPV4_PREFIX / BAN_IPV6_PREFIX before they are stored.",
}

var banAddCmd = &cobra.Command{
	Use:   "add <ip-or-cidr>",
	Short: "Ban an address or prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ban, err := a.guard.Ban(cmd.Context(), args[0], banReason)
		if err != nil {
			return err
		}
		printSuccess("Banned %s", ban.Prefix)
		return nil
	},
}

var banLiftCmd = &cobra.Command{
	Use:   "lift <ip-or-cidr>",
	Short: "Lift a ban",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ban, err := a.guard.Lift(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSuccess("Lifted %s", ban.Prefix)
		return nil
	},
}

var banListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent bans, active or lifted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		bans, err := a.guard.List(cmd.Context(), banListLimit)
		if err != nil {
			return err
		}
		if len(bans) == 0 {
			printInfo("No bans found.")
			return nil
		}
		rows := make([][]string, 0, len(bans))
		for _, b := range bans {
			rows = append(rows, []string{
				b.Prefix,
				strconv.FormatBool(b.Active),
				b.Reason,
				b.UpdatedAt.Format(time.RFC3339),
			})
		}
		printTable([]string{"PREFIX", "ACTIVE", "REASON", "UPDATED"}, rows)
		return nil
	},
}

func init() {
	banAddCmd.Flags().StringVarP(&banReason, "reason", "r", "", "Reason recorded with the ban")
	banListCmd.Flags().IntVar(&banListLimit, "limit", 50, "Maximum number of bans to show")

	banCmd.AddCommand(banAddCmd)
	banCmd.AddCommand(banLiftCmd)
	banCmd.AddCommand(banListCmd)
}
