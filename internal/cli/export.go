package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all records as JSON",
		Long:  "Export every indexed record (tokens, not values) as a JSON array, newest first. Feed it to import to copy a ledger.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s, err := openSession(false)
	if err != nil {
		exitErr("open ledger", err)
	}
	defer s.Close()

	records, err := s.store.ListAll(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	printJSON(cmd.OutOrStdout(), records)
}
