package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/biobank/internal/ledger"
	"github.com/rcliao/biobank/internal/lifecycle"
	"github.com/rcliao/biobank/internal/model"
	"github.com/rcliao/biobank/internal/signer"
	"github.com/rcliao/biobank/internal/store"
)

func TestUserMessage(t *testing.T) {
	rejected := fmt.Errorf("%w: %w", model.ErrLedgerUnavailable, model.ErrUserRejected)
	assert.Equal(t, "Transaction rejected by user", userMessage(opSubmit, rejected))

	assert.True(t, strings.HasPrefix(userMessage(opSubmit, errors.New("boom")), "Submission failed: "))
	assert.True(t, strings.HasPrefix(userMessage(opVerify, model.ErrInvalidTransition), "Verification failed: "))
	assert.True(t, strings.HasPrefix(userMessage(opReject, model.ErrNotFound), "Rejection failed: "))
	assert.Contains(t, userMessage(opVerify, model.ErrNotAuthorized), "owner")
	assert.Contains(t, userMessage(opDecrypt, model.ErrNotAuthenticated), "connect an identity")
}

func TestDeclinedWriteIsUserRejection(t *testing.T) {
	ctx := context.Background()
	from := "0x71562b71999873DB5b286dF957af199Ec94617F7"
	m := ledger.NewMemory()
	w := &signer.ConfirmingWriter{
		W:      m.Signer(from),
		From:   from,
		Prompt: signer.NewPrompter(strings.NewReader("n\n"), io.Discard),
	}
	lg, _ := test.NewNullLogger()
	ctl := lifecycle.NewController(store.New(m, w, logrus.NewEntry(lg)), nil, lifecycle.Policy{}, logrus.NewEntry(lg))

	v := 42.0
	_, err := ctl.Submit(ctx, lifecycle.SubmitParams{Owner: from, Category: "Health", Value: &v})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUserRejected)
	assert.Equal(t, "Transaction rejected by user", userMessage(opSubmit, err))
	assert.Empty(t, m.Receipts())
}

func TestPrintRecordsText(t *testing.T) {
	var buf bytes.Buffer
	printRecords(&buf, []model.Record{{
		ID: "01ABC", Category: "Genetic", Owner: "0x1234567890abcdef1234567890abcdef12345678",
		Status: model.StatusPending, Timestamp: 0,
	}}, "text")

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "0x1234...5678")
	assert.Contains(t, out, "1970-01-01 00:00")
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs(args)
	require.NoError(t, RootCmd.Execute(), errOut.String())
	return out.String()
}

func TestSubmitVerifyDecryptFlow(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("[ledger]\ndriver = \"sqlite\"\npath = %q\n\n[identity]\nkey_file = %q\n\n[log]\nlevel = \"error\"\n",
		filepath.Join(dir, "ledger.db"), filepath.Join(dir, "identity.key"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	var ident map[string]string
	require.NoError(t, json.Unmarshal([]byte(run(t, "--config", cfgPath, "keygen")), &ident))
	require.NotEmpty(t, ident["address"])

	var rec model.Record
	out := run(t, "--config", cfgPath, "submit", "--yes", "--category", "Biometric", "--value", "100", "-D", "resting heart rate")
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Equal(t, ident["address"], rec.Owner)

	out = run(t, "--config", cfgPath, "verify", "--yes", rec.ID)
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, model.StatusVerified, rec.Status)

	var listed []model.Record
	require.NoError(t, json.Unmarshal([]byte(run(t, "--config", cfgPath, "list", "--status", "verified")), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, rec.ID, listed[0].ID)

	var dec struct {
		ID    string  `json:"id"`
		Value float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(run(t, "--config", cfgPath, "decrypt", "--yes", rec.ID)), &dec))
	assert.InDelta(t, 110, dec.Value, 1e-9)

	assert.Equal(t, ident["address"]+"\n", run(t, "--config", cfgPath, "whoami"))
}
