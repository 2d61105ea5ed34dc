package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobank/internal/lifecycle"
	"github.com/rcliao/biobank/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a value as a new pending record",
		Long:  "Encode a numeric biomedical value and store it on the ledger as a pending record owned by your identity.",
		Run:   runSubmit,
	}

	cmd.Flags().String("category", "", "Category: "+strings.Join(categoryNames(), ", ")+" (required)")
	cmd.Flags().Float64P("value", "v", 0, "Numeric value (required)")
	cmd.Flags().StringP("description", "D", "", "Short description")

	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("value")

	RootCmd.AddCommand(cmd)
}

func runSubmit(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	description, _ := cmd.Flags().GetString("description")

	p := lifecycle.SubmitParams{Category: category, Description: description}
	if cmd.Flags().Changed("value") {
		v, _ := cmd.Flags().GetFloat64("value")
		p.Value = &v
	}

	s, err := openSession(true)
	if err != nil {
		fail(opSubmit, err)
	}
	defer s.Close()
	p.Owner = s.identity

	rec, err := s.ctl.Submit(cmd.Context(), p)
	if err != nil {
		fail(opSubmit, err)
	}

	printJSON(cmd.OutOrStdout(), rec)
	fmt.Fprintln(cmd.ErrOrStderr(), "Encrypted data submitted securely!")
}

func categoryNames() []string {
	var names []string
	for c := range model.ValidCategories {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}
