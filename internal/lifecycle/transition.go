// Package lifecycle moves records through pending -> verified | rejected.
//
// Transitions are pure functions over model.Record; Controller wires them to
// the record store.
package lifecycle

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rcliao/biobank/internal/model"
	"github.com/rcliao/biobank/internal/transform"
)

// VerifyOp is applied to a record's token when it is verified.
const VerifyOp = transform.OpIncrease10

// SubmitParams holds the input of a new submission. Value is nil when the
// caller supplied no number.
type SubmitParams struct {
	Owner       string
	Category    string
	Description string
	Value       *float64
}

// Policy decides who may verify or reject a record. The owner is always
// allowed; Reviewers lists additional identities.
type Policy struct {
	Reviewers []string
}

// CanReview reports whether actor may transition rec.
func (p Policy) CanReview(actor string, rec model.Record) bool {
	if model.SameIdentity(actor, rec.Owner) {
		return true
	}
	for _, r := range p.Reviewers {
		if model.SameIdentity(actor, r) {
			return true
		}
	}
	return false
}

// ValidateSubmit checks p without touching the ledger.
func ValidateSubmit(p SubmitParams) error {
	if strings.TrimSpace(p.Owner) == "" {
		return model.ErrNotAuthenticated
	}
	if strings.TrimSpace(p.Category) == "" {
		return fmt.Errorf("%w: category is required", model.ErrValidation)
	}
	if !model.ValidCategories[p.Category] {
		return fmt.Errorf("%w: unknown category %q", model.ErrValidation, p.Category)
	}
	if p.Value == nil || math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0) {
		return fmt.Errorf("%w: value must be a finite number", model.ErrValidation)
	}
	return nil
}

// NewRecord builds a pending record for p with the value encoded by scheme.
func NewRecord(p SubmitParams, id string, now time.Time, scheme transform.Scheme) (model.Record, error) {
	if err := ValidateSubmit(p); err != nil {
		return model.Record{}, err
	}
	return model.Record{
		ID:            id,
		EncryptedData: scheme.Encode(*p.Value),
		Timestamp:     now.Unix(),
		Owner:         p.Owner,
		Category:      p.Category,
		Description:   strings.TrimSpace(p.Description),
		Status:        model.StatusPending,
	}, nil
}

// Verify returns rec marked verified with its token passed through VerifyOp.
func Verify(rec model.Record, actor string, policy Policy, scheme transform.Scheme) (model.Record, error) {
	if err := checkTransition(rec, actor, policy); err != nil {
		return rec, err
	}
	tok, err := scheme.Apply(rec.EncryptedData, VerifyOp)
	if err != nil {
		return rec, err
	}
	next := rec
	next.EncryptedData = tok
	next.Status = model.StatusVerified
	return next, nil
}

// Reject returns rec marked rejected. The token is left as is.
func Reject(rec model.Record, actor string, policy Policy) (model.Record, error) {
	if err := checkTransition(rec, actor, policy); err != nil {
		return rec, err
	}
	next := rec
	next.Status = model.StatusRejected
	return next, nil
}

func checkTransition(rec model.Record, actor string, policy Policy) error {
	if strings.TrimSpace(actor) == "" {
		return model.ErrNotAuthenticated
	}
	if !policy.CanReview(actor, rec) {
		return fmt.Errorf("%w: %s may not review record %s", model.ErrNotAuthorized, actor, rec.ID)
	}
	if rec.Status != model.StatusPending {
		return fmt.Errorf("%w: record %s is %s", model.ErrInvalidTransition, rec.ID, rec.Status)
	}
	return nil
}
