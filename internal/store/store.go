// Package store keeps records in an external ledger: one index entry holding
// the ordered record ids plus one JSON blob per record.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/biobank/internal/ledger"
	"github.com/rcliao/biobank/internal/model"
)

// DefaultConcurrency bounds parallel blob fetches in ListAll.
const DefaultConcurrency = 8

// RecordStore adapts a ledger to record operations. Every read goes to the
// ledger; nothing is cached between calls.
type RecordStore struct {
	r           ledger.Reader
	w           ledger.Writer
	log         *logrus.Entry
	concurrency int
}

// New returns a store reading from r. w may be nil for a read-only store;
// writes then fail with model.ErrNotAuthenticated.
func New(r ledger.Reader, w ledger.Writer, log *logrus.Entry) *RecordStore {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RecordStore{
		r:           r,
		w:           w,
		log:         log.WithField("component", "store"),
		concurrency: DefaultConcurrency,
	}
}

// SetConcurrency changes the fetch parallelism of ListAll. n < 1 is ignored.
func (s *RecordStore) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// blob is the ledger wire format of a record. The id lives in the key.
type blob struct {
	Data        string       `json:"data"`
	Timestamp   int64        `json:"timestamp"`
	Owner       string       `json:"owner"`
	Category    string       `json:"category"`
	Description string       `json:"description"`
	Status      model.Status `json:"status"`
}

// ListIDs returns the ordered index. An unavailable ledger, a missing index
// or a corrupt index all read as no records.
func (s *RecordStore) ListIDs(ctx context.Context) []string {
	if !s.r.IsAvailable(ctx) {
		s.log.Warn("ledger unavailable, listing nothing")
		return []string{}
	}
	ids, err := s.readIndex(ctx)
	if err != nil {
		s.log.WithError(err).Warn("unreadable index")
		return []string{}
	}
	return ids
}

func (s *RecordStore) readIndex(ctx context.Context) ([]string, error) {
	raw, err := s.r.GetData(ctx, ledger.IndexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLedgerUnavailable, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: index: %v", model.ErrFormat, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// GetRecord fetches one record. It fails with model.ErrNotFound when the
// blob is empty and model.ErrFormat when it does not parse.
func (s *RecordStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", model.ErrNotFound)
	}
	if !s.r.IsAvailable(ctx) {
		return nil, model.ErrLedgerUnavailable
	}
	raw, err := s.r.GetData(ctx, ledger.RecordKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLedgerUnavailable, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}

	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", model.ErrFormat, id, err)
	}
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	if !model.ValidStatuses[b.Status] {
		return nil, fmt.Errorf("%w: record %s: unknown status %q", model.ErrFormat, id, b.Status)
	}

	return &model.Record{
		ID:            id,
		EncryptedData: b.Data,
		Timestamp:     b.Timestamp,
		Owner:         b.Owner,
		Category:      b.Category,
		Description:   b.Description,
		Status:        b.Status,
	}, nil
}

// PutRecord writes the record blob under its key.
func (s *RecordStore) PutRecord(ctx context.Context, rec model.Record) (*ledger.Receipt, error) {
	if s.w == nil {
		return nil, model.ErrNotAuthenticated
	}
	b, err := json.Marshal(blob{
		Data:        rec.EncryptedData,
		Timestamp:   rec.Timestamp,
		Owner:       rec.Owner,
		Category:    rec.Category,
		Description: rec.Description,
		Status:      rec.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	r, err := s.w.SetData(ctx, ledger.RecordKey(rec.ID), b)
	if err != nil {
		return nil, writeErr(err)
	}
	s.log.WithFields(logrus.Fields{"id": rec.ID, "tx": r.TxHash}).Debug("record written")
	return r, nil
}

// AppendIndex reads the index, appends id and writes the whole index back.
// The read-modify-write is not atomic: concurrent appends may lose one of
// the ids (last write wins).
func (s *RecordStore) AppendIndex(ctx context.Context, id string) (*ledger.Receipt, error) {
	if s.w == nil {
		return nil, model.ErrNotAuthenticated
	}
	if !s.r.IsAvailable(ctx) {
		return nil, model.ErrLedgerUnavailable
	}
	ids, err := s.readIndex(ctx)
	if errors.Is(err, model.ErrFormat) {
		s.log.WithError(err).Warn("corrupt index, starting a new one")
		ids = []string{}
	} else if err != nil {
		return nil, err
	}

	ids = append(ids, id)
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	r, err := s.w.SetData(ctx, ledger.IndexKey, b)
	if err != nil {
		return nil, writeErr(err)
	}
	return r, nil
}

// ListAll resolves every indexed id, skipping absent or malformed blobs,
// and returns the records newest first. Equal timestamps keep index order.
func (s *RecordStore) ListAll(ctx context.Context) ([]model.Record, error) {
	ids := s.ListIDs(ctx)
	slots := make([]*model.Record, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			rec, err := s.GetRecord(gctx, id)
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				s.log.WithError(err).WithField("id", id).Warn("skipping record")
				return nil
			}
			slots[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			records = append(records, *r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	return records, nil
}

// ListParams filters List results. Zero values match everything.
type ListParams struct {
	Status   model.Status
	Category string
	Owner    string
	Limit    int
}

// List returns ListAll filtered by p.
func (s *RecordStore) List(ctx context.Context, p ListParams) ([]model.Record, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(all))
	for _, r := range all {
		if p.Status != "" && r.Status != p.Status {
			continue
		}
		if p.Category != "" && !strings.EqualFold(r.Category, p.Category) {
			continue
		}
		if p.Owner != "" && !model.SameIdentity(r.Owner, p.Owner) {
			continue
		}
		out = append(out, r)
		if p.Limit > 0 && len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

func writeErr(err error) error {
	if errors.Is(err, model.ErrNotAuthenticated) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrLedgerUnavailable, err)
}
