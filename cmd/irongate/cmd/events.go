package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/irongate/eventlog"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Event chain inspection tools",
	Long:  `Commands for listing and verifying the tamper-evident event chain.`,
}

var (
	eventsLimit int
	eventsDB    string
)

var eventsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded events",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := eventsPath()
		if err != nil {
			return err
		}
		entries, err := readChain(path, eventsLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events.")
			return nil
		}
		table := newTable(cmd.OutOrStdout(), "Seq", "Time", "Kind", "Remote IP", "Username", "Detail")
		for _, e := range entries {
			table.Append([]string{
				fmt.Sprint(e.Seq),
				e.Time.Format(time.RFC3339),
				string(e.Kind),
				e.RemoteIP,
				e.Username,
				e.Detail,
			})
		}
		table.Render()
		return nil
	},
}

func eventsPath() (string, error) {
	if eventsDB != "" {
		return eventsDB, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Events.BoltPath == "" {
		return "", errors.New("no event database configured (set events.bolt_path or --db)")
	}
	return cfg.Events.BoltPath, nil
}

// readChain opens the event database read-only so a running server keeps
// its write lock.
func readChain(path string, limit int) ([]eventlog.Entry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("event database: %w", err)
	}
	chain, err := eventlog.OpenBolt(path, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	defer chain.Close()
	return chain.Entries(limit)
}

func printHumanResult(w io.Writer, path string, result eventlog.VerifyResult) {
	fmt.Fprintf(w, "Event chain verification: %s\n", path)
	fmt.Fprintf(w, "Entries: %d\n\n", result.EntryCount)

	for _, c := range result.Checks {
		tag := "[PASS]"
		switch c.Status {
		case eventlog.StatusFail:
			tag = "[FAIL]"
		case eventlog.StatusWarn:
			tag = "[WARN]"
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintln(w, "Result: VALID")
		return
	}
	failures, warnings := result.Counts()
	fmt.Fprintf(w, "Result: INVALID (%d error(s), %d warning(s))\n", failures, warnings)
}

type verifyOutput struct {
	File string `json:"file"`
	eventlog.VerifyResult
}

func printJSONResult(w io.Writer, path string, result eventlog.VerifyResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(verifyOutput{File: path, VerifyResult: result})
}

var verifyJSONOutput bool

var eventsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the event chain",
	Long: `Reads every entry of the event database and verifies the genesis anchor,
per-entry hashes, chain continuity, sequence numbering, and timestamp order.
Exits non-zero when the chain is invalid.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	path, err := eventsPath()
	if err != nil {
		return err
	}
	entries, err := readChain(path, 0)
	if err != nil {
		return err
	}

	result := eventlog.Verify(entries)
	out := cmd.OutOrStdout()
	if verifyJSONOutput {
		if err := printJSONResult(out, path, result); err != nil {
			return err
		}
	} else {
		printHumanResult(out, path, result)
	}
	if !result.Valid {
		os.Exit(1)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd, eventsVerifyCmd)
	eventsCmd.PersistentFlags().StringVar(&eventsDB, "db", "", "Path to the event database (default from config)")
	eventsListCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "Show only the most recent n events (0 for all)")
	eventsVerifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
}
