package cli

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rcliao/biobank/internal/gate"
	"github.com/rcliao/biobank/internal/signer"
)

func init() {
	decryptCmd := &cobra.Command{
		Use:   "decrypt <id>",
		Short: "Reveal a record's value after signing the session challenge",
		Args:  cobra.ExactArgs(1),
		Run:   runDecrypt,
	}

	challengeCmd := &cobra.Command{
		Use:   "challenge",
		Short: "Print the challenge message for a new session",
		Run:   runChallenge,
	}

	RootCmd.AddCommand(decryptCmd, challengeCmd)
}

func newSessionParams() (gate.SessionParams, error) {
	return gate.NewSession(nil, cfg.Ledger.ContractAddress, cfg.Session.ChainID, cfg.Session.DurationDays, time.Now())
}

func runDecrypt(cmd *cobra.Command, args []string) {
	s, err := openSession(true)
	if err != nil {
		fail(opDecrypt, err)
	}
	defer s.Close()

	rec, err := s.store.GetRecord(cmd.Context(), args[0])
	if err != nil {
		fail(opDecrypt, err)
	}

	params, err := newSessionParams()
	if err != nil {
		fail(opDecrypt, err)
	}

	var sig gate.Signer = s.key
	if !assumeYes {
		sig = &signer.Confirming{Key: s.key, Prompt: prompt}
	}
	g := &gate.Gate{
		Identity: s.identity,
		Session:  params,
		Signer:   sig,
		Verifier: signer.RecoverVerifier{},
		Log:      logrus.NewEntry(log).WithField("component", "gate"),
	}

	v, err := g.Decrypt(cmd.Context(), rec.EncryptedData)
	if err != nil {
		fail(opDecrypt, err)
	}

	if formatFlag == "text" {
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return
	}
	printJSON(cmd.OutOrStdout(), map[string]any{"id": rec.ID, "value": v})
}

func runChallenge(cmd *cobra.Command, args []string) {
	params, err := newSessionParams()
	if err != nil {
		exitErr("challenge", err)
	}
	if formatFlag == "text" {
		fmt.Fprintln(cmd.OutOrStdout(), gate.BuildChallenge(params))
		return
	}
	printJSON(cmd.OutOrStdout(), map[string]any{
		"params":  params,
		"message": gate.BuildChallenge(params),
	})
}
