package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jmcleod/irongate/credential"
)

var passwordStdin bool

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the password file",
	Long:  `Commands for adding, removing, and re-keying users in the password file.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		password, err := readNewPassword(cmd)
		if err != nil {
			return err
		}
		if err := store.Create(args[0], password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %s added to %s\n", args[0], store.Path())
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Change a user's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if _, err := store.Lookup(args[0]); err != nil {
			return err
		}
		password, err := readNewPassword(cmd)
		if err != nil {
			return err
		}
		if err := store.ChangePassword(args[0], password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Password changed for %s\n", args[0])
		return nil
	},
}

var userDelCmd = &cobra.Command{
	Use:     "del <username>",
	Aliases: []string{"rm", "remove"},
	Short:   "Remove a user",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %s removed\n", args[0])
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		names, err := store.Usernames()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No users.")
			return nil
		}
		table := newTable(cmd.OutOrStdout(), "#", "Username")
		for i, n := range names {
			table.Append([]string{fmt.Sprint(i + 1), n})
		}
		table.Render()
		return nil
	},
}

func openStore() (*credential.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return credential.NewStore(cfg.PasswordFile), nil
}

// readNewPassword reads a password from stdin when --password-stdin is set,
// otherwise prompts twice with masked input.
func readNewPassword(cmd *cobra.Command) (string, error) {
	if passwordStdin {
		return readPasswordLine(cmd.InOrStdin())
	}
	first := promptui.Prompt{Label: "Password", Mask: '*'}
	password, err := first.Run()
	if err != nil {
		return "", err
	}
	confirm := promptui.Prompt{Label: "Confirm Password", Mask: '*'}
	again, err := confirm.Run()
	if err != nil {
		return "", err
	}
	if password != again {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userPasswdCmd, userDelCmd, userListCmd)
	userCmd.PersistentFlags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
}
