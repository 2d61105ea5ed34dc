package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobank/internal/ledger"
	"github.com/rcliao/biobank/internal/signer"
)

func init() {
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a new identity key",
		Run:   runKeygen,
	}
	keygenCmd.Flags().StringP("out", "o", "", "Key file (default: identity.key_file from config)")
	keygenCmd.Flags().Bool("force", false, "Overwrite an existing key file")

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity address",
		Run:   runWhoami,
	}

	historyCmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show ledger write receipts for a record (sqlite ledger only)",
		Args:  cobra.ExactArgs(1),
		Run:   runHistory,
	}

	RootCmd.AddCommand(keygenCmd, whoamiCmd, historyCmd)
}

func runKeygen(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")
	force, _ := cmd.Flags().GetBool("force")
	if out == "" {
		out = cfg.Identity.KeyFile
	}

	if _, err := os.Stat(out); err == nil && !force {
		exitErr("keygen", fmt.Errorf("%s already exists (use --force to overwrite)", out))
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		exitErr("keygen", err)
	}

	k, err := signer.GenerateKey()
	if err != nil {
		exitErr("keygen", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
		exitErr("keygen", err)
	}
	if err := k.SaveFile(out); err != nil {
		exitErr("keygen", err)
	}

	printJSON(cmd.OutOrStdout(), map[string]string{"address": k.Address(), "key_file": out})
}

func runWhoami(cmd *cobra.Command, args []string) {
	k, err := loadIdentity()
	if err != nil {
		exitErr("whoami", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), k.Address())
}

func runHistory(cmd *cobra.Command, args []string) {
	if cfg.Ledger.Driver != "sqlite" {
		exitErr("history", fmt.Errorf("receipts are only kept by the sqlite ledger, not %q", cfg.Ledger.Driver))
	}
	l, err := ledger.NewSQLite(cfg.Ledger.Path)
	if err != nil {
		exitErr("open ledger", err)
	}
	defer l.Close()

	receipts, err := l.History(cmd.Context(), ledger.RecordKey(args[0]))
	if err != nil {
		exitErr("history", err)
	}
	printJSON(cmd.OutOrStdout(), receipts)
}
