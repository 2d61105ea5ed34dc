package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobank/internal/model"
	"github.com/rcliao/biobank/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		Run:   runList,
	}

	cmd.Flags().String("status", "", "Filter by status: pending, verified, rejected")
	cmd.Flags().String("category", "", "Filter by category")
	cmd.Flags().String("owner", "", "Filter by owner identity")
	cmd.Flags().Bool("mine", false, "Only records owned by your identity")
	cmd.Flags().IntP("limit", "l", 0, "Max results (0 = all)")
	cmd.Flags().Bool("ids-only", false, "Only output the raw index")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	status, _ := cmd.Flags().GetString("status")
	category, _ := cmd.Flags().GetString("category")
	owner, _ := cmd.Flags().GetString("owner")
	mine, _ := cmd.Flags().GetBool("mine")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	if status != "" && !model.ValidStatuses[model.Status(status)] {
		exitErr("list", fmt.Errorf("%w: unknown status %q", model.ErrValidation, status))
	}

	s, err := openSession(mine)
	if err != nil {
		exitErr("list", err)
	}
	defer s.Close()
	if mine {
		owner = s.identity
	}

	if idsOnly {
		for _, id := range s.store.ListIDs(cmd.Context()) {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return
	}

	records, err := s.store.List(cmd.Context(), store.ListParams{
		Status:   model.Status(status),
		Category: category,
		Owner:    owner,
		Limit:    limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	printRecords(cmd.OutOrStdout(), records, formatFlag)
}
