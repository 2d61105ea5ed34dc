package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	verifyCmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Verify a pending record (raises its value by 10%)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runReview(cmd, args[0], opVerify, "FHE verification completed successfully!")
		},
	}

	rejectCmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending record",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runReview(cmd, args[0], opReject, "FHE rejection completed successfully!")
		},
	}

	RootCmd.AddCommand(verifyCmd, rejectCmd)
}

func runReview(cmd *cobra.Command, id, op, done string) {
	s, err := openSession(true)
	if err != nil {
		fail(op, err)
	}
	defer s.Close()

	step := s.ctl.Reject
	if op == opVerify {
		step = s.ctl.Verify
	}
	rec, err := step(cmd.Context(), s.identity, id)
	if err != nil {
		fail(op, err)
	}

	printJSON(cmd.OutOrStdout(), rec)
	fmt.Fprintln(cmd.ErrOrStderr(), done)
}
