package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/biobank/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one record (token only, never the value)",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	s, err := openSession(false)
	if err != nil {
		exitErr("open ledger", err)
	}
	defer s.Close()

	rec, err := s.store.GetRecord(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	printRecords(cmd.OutOrStdout(), []model.Record{*rec}, formatFlag)
}
