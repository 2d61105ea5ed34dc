package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobank/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import records from JSON",
		Long:  "Import records from JSON on stdin. Expects the format produced by export. Records are copied as they are; ids already on the ledger are skipped.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		exitErr("parse json", err)
	}

	s, err := openSession(true)
	if err != nil {
		exitErr("open ledger", err)
	}
	defer s.Close()

	// Oldest first so the rebuilt index keeps submission order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	imported, err := s.store.Import(cmd.Context(), records)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"imported":%d}`+"\n", imported)
}
