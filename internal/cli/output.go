package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rcliao/biobank/internal/model"
)

// Operation labels used in user messages.
const (
	opSubmit  = "submit"
	opVerify  = "verify"
	opReject  = "reject"
	opDecrypt = "decrypt"
)

// userMessage turns err into the sentence shown to a user.
func userMessage(op string, err error) string {
	if model.IsUserRejected(err) {
		return "Transaction rejected by user"
	}
	detail := err.Error()
	switch {
	case errors.Is(err, model.ErrNotAuthenticated):
		return "Please connect an identity first: " + detail
	case errors.Is(err, model.ErrNotAuthorized):
		return "Only the record owner or a configured reviewer may do this: " + detail
	}
	switch op {
	case opSubmit:
		return "Submission failed: " + detail
	case opVerify:
		return "Verification failed: " + detail
	case opReject:
		return "Rejection failed: " + detail
	case opDecrypt:
		return "Decryption failed: " + detail
	}
	return op + ": " + detail
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// printRecords writes records as JSON or, with --format text, as a table.
func printRecords(w io.Writer, records []model.Record, format string) {
	if format != "text" {
		printJSON(w, records)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tOWNER\tSTATUS\tSUBMITTED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Category, shortIdentity(r.Owner), r.Status,
			time.Unix(r.Timestamp, 0).UTC().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func shortIdentity(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}
