package lifecycle

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/rcliao/biobank/internal/model"
	"github.com/rcliao/biobank/internal/store"
	"github.com/rcliao/biobank/internal/transform"
)

// Controller runs submissions and review transitions against a record store.
type Controller struct {
	store  *store.RecordStore
	scheme transform.Scheme
	policy Policy
	log    *logrus.Entry

	// Now returns the current time; replaced in tests.
	Now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewController returns a controller. A nil scheme selects transform.Default.
func NewController(s *store.RecordStore, scheme transform.Scheme, policy Policy, log *logrus.Entry) *Controller {
	if scheme == nil {
		scheme = transform.Default
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		store:   s,
		scheme:  scheme,
		policy:  policy,
		log:     log.WithField("component", "lifecycle"),
		Now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (c *Controller) newID(now time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), c.entropy).String()
}

// Submit encodes the value and stores a new pending record, then appends it
// to the index. If the index append fails the blob stays behind as an
// unlisted orphan; the error is still returned.
func (c *Controller) Submit(ctx context.Context, p SubmitParams) (*model.Record, error) {
	if err := ValidateSubmit(p); err != nil {
		return nil, err
	}
	now := c.Now()
	rec, err := NewRecord(p, c.newID(now), now, c.scheme)
	if err != nil {
		return nil, err
	}

	if _, err := c.store.PutRecord(ctx, rec); err != nil {
		return nil, err
	}
	if _, err := c.store.AppendIndex(ctx, rec.ID); err != nil {
		c.log.WithError(err).WithField("id", rec.ID).Warn("record stored but not indexed")
		return nil, err
	}

	c.log.WithFields(logrus.Fields{"id": rec.ID, "category": rec.Category}).Info("record submitted")
	return &rec, nil
}

// Verify marks a pending record verified and raises its value by 10%.
func (c *Controller) Verify(ctx context.Context, actor, id string) (*model.Record, error) {
	return c.transition(ctx, actor, id, func(rec model.Record) (model.Record, error) {
		return Verify(rec, actor, c.policy, c.scheme)
	})
}

// Reject marks a pending record rejected.
func (c *Controller) Reject(ctx context.Context, actor, id string) (*model.Record, error) {
	return c.transition(ctx, actor, id, func(rec model.Record) (model.Record, error) {
		return Reject(rec, actor, c.policy)
	})
}

func (c *Controller) transition(ctx context.Context, actor, id string, step func(model.Record) (model.Record, error)) (*model.Record, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, model.ErrNotAuthenticated
	}
	rec, err := c.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := step(*rec)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.PutRecord(ctx, next); err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"id": id, "status": next.Status}).Info("record reviewed")
	return &next, nil
}
