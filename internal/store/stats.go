package store

import (
	"context"
	"sort"
	"strings"

	"github.com/rcliao/biobank/internal/model"
	"github.com/rcliao/biobank/internal/transform"
)

// TopContributorLimit caps Stats.TopContributors.
const TopContributorLimit = 5

// Stats holds dashboard statistics over all listed records.
type Stats struct {
	Total           int             `json:"total"`
	Verified        int             `json:"verified"`
	Pending         int             `json:"pending"`
	Rejected        int             `json:"rejected"`
	VerifiedValue   float64         `json:"verified_value"`
	TopContributors []Contributor   `json:"top_contributors"`
	Categories      []CategoryCount `json:"categories"`
}

// Contributor counts verified records per owner.
type Contributor struct {
	Owner    string `json:"owner"`
	Verified int    `json:"verified"`
}

// CategoryCount holds per-category record counts.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Stats lists every record and summarizes it.
func (s *RecordStore) Stats(ctx context.Context, scheme transform.Scheme) (*Stats, error) {
	records, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(records, scheme), nil
}

// Summarize computes Stats for records. VerifiedValue sums the decoded value
// of verified records; tokens that fail to decode are left out.
func Summarize(records []model.Record, scheme transform.Scheme) *Stats {
	if scheme == nil {
		scheme = transform.Default
	}
	st := &Stats{Total: len(records), TopContributors: []Contributor{}, Categories: []CategoryCount{}}

	verifiedBy := map[string]*Contributor{}
	var order []string
	categories := map[string]int{}

	for _, r := range records {
		categories[r.Category]++
		switch r.Status {
		case model.StatusPending:
			st.Pending++
		case model.StatusRejected:
			st.Rejected++
		case model.StatusVerified:
			st.Verified++
			if v, err := scheme.Decode(r.EncryptedData); err == nil {
				st.VerifiedValue += v
			}
			key := strings.ToLower(r.Owner)
			c, ok := verifiedBy[key]
			if !ok {
				c = &Contributor{Owner: r.Owner}
				verifiedBy[key] = c
				order = append(order, key)
			}
			c.Verified++
		}
	}

	for _, k := range order {
		st.TopContributors = append(st.TopContributors, *verifiedBy[k])
	}
	sort.SliceStable(st.TopContributors, func(i, j int) bool {
		return st.TopContributors[i].Verified > st.TopContributors[j].Verified
	})
	if len(st.TopContributors) > TopContributorLimit {
		st.TopContributors = st.TopContributors[:TopContributorLimit]
	}

	for c, n := range categories {
		st.Categories = append(st.Categories, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(st.Categories, func(i, j int) bool {
		if st.Categories[i].Count != st.Categories[j].Count {
			return st.Categories[i].Count > st.Categories[j].Count
		}
		return st.Categories[i].Category < st.Categories[j].Category
	})

	return st
}
