package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/biobank/internal/model"
)

// Import copies records into the ledger as they are, keeping ids, status and
// tokens. Used to move records between ledger backends. Ids that already
// resolve to a stored record are skipped, so an import never rewinds a
// reviewed record or replaces someone else's token. It returns the number of
// records written.
func (s *RecordStore) Import(ctx context.Context, records []model.Record) (int, error) {
	indexed := map[string]bool{}
	for _, id := range s.ListIDs(ctx) {
		indexed[id] = true
	}

	imported := 0
	for _, r := range records {
		if r.ID == "" {
			return imported, fmt.Errorf("%w: record without id", model.ErrValidation)
		}
		if !model.ValidStatuses[r.Status] {
			return imported, fmt.Errorf("%w: record %s: unknown status %q", model.ErrValidation, r.ID, r.Status)
		}

		_, err := s.GetRecord(ctx, r.ID)
		switch {
		case err == nil:
			s.log.WithField("id", r.ID).Info("record exists, not imported")
			continue
		case !errors.Is(err, model.ErrNotFound):
			return imported, fmt.Errorf("import %s: %w", r.ID, err)
		}

		if _, err := s.PutRecord(ctx, r); err != nil {
			return imported, err
		}
		if !indexed[r.ID] {
			if _, err := s.AppendIndex(ctx, r.ID); err != nil {
				return imported, err
			}
			indexed[r.ID] = true
		}
		imported++
	}
	return imported, nil
}
