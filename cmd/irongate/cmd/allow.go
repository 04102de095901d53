package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/irongate/access"
)

var allowCmd = &cobra.Command{
	Use:   "allow",
	Short: "Inspect the client allow-list",
}

var allowCheckCmd = &cobra.Command{
	Use:   "check <ip>",
	Short: "Report whether an address may connect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gate, err := loadGate()
		if err != nil {
			return err
		}
		if gate.IsAllowed(args[0]) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is allowed\n", args[0])
			return nil
		}
		return fmt.Errorf("%s is not on the allow-list", args[0])
	},
}

var allowListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List allowed addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		gate, err := loadGate()
		if err != nil {
			return err
		}
		for _, a := range gate.Addresses() {
			fmt.Fprintln(cmd.OutOrStdout(), a)
		}
		return nil
	},
}

func loadGate() (*access.Gate, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return access.Load(cfg.AllowListFile)
}

func init() {
	rootCmd.AddCommand(allowCmd)
	allowCmd.AddCommand(allowCheckCmd, allowListCmd)
}
