package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/biobank/internal/ledger"
	"github.com/rcliao/biobank/internal/model"
	"github.com/rcliao/biobank/internal/transform"
)

const owner = "0xAbC0000000000000000000000000000000000001"

func newTestStore(t *testing.T) (*RecordStore, *ledger.Memory) {
	t.Helper()
	m := ledger.NewMemory()
	logger, _ := test.NewNullLogger()
	return New(m, m.Signer(owner), logrus.NewEntry(logger)), m
}

func record(id string, ts int64, value float64) model.Record {
	return model.Record{
		ID:            id,
		EncryptedData: transform.Default.Encode(value),
		Timestamp:     ts,
		Owner:         owner,
		Category:      "Clinical",
		Status:        model.StatusPending,
	}
}

func put(t *testing.T, s *RecordStore, r model.Record) {
	t.Helper()
	_, err := s.PutRecord(context.Background(), r)
	require.NoError(t, err)
	_, err = s.AppendIndex(context.Background(), r.ID)
	require.NoError(t, err)
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	want := record("r1", 100, 42)
	want.Description = "fasting glucose"
	put(t, s, want)

	got, err := s.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.Equal(t, []string{"r1"}, s.ListIDs(ctx))
}

func TestBlobWireFormat(t *testing.T) {
	ctx := context.Background()
	s, m := newTestStore(t)
	put(t, s, record("r1", 100, 1))

	raw, err := m.GetData(ctx, "record_r1")
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, k := range []string{"data", "timestamp", "owner", "category", "description", "status"} {
		assert.Contains(t, fields, k)
	}

	raw, err = m.GetData(ctx, "record_keys")
	require.NoError(t, err)
	assert.JSONEq(t, `["r1"]`, string(raw))
}

func TestGetRecordMissingAndMalformed(t *testing.T) {
	ctx := context.Background()
	s, m := newTestStore(t)

	_, err := s.GetRecord(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)

	m.Put("record_bad", []byte("{not json"))
	_, err = s.GetRecord(ctx, "bad")
	assert.ErrorIs(t, err, model.ErrFormat)

	m.Put("record_odd", []byte(`{"data":"1","status":"archived"}`))
	_, err = s.GetRecord(ctx, "odd")
	assert.ErrorIs(t, err, model.ErrFormat)
}

func TestMissingStatusReadsPending(t *testing.T) {
	s, m := newTestStore(t)
	m.Put("record_legacy", []byte(`{"data":"12","timestamp":5,"owner":"0x1","category":"Other"}`))

	got, err := s.GetRecord(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestListAllOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	put(t, s, record("a", 10, 1))
	put(t, s, record("b", 30, 2))
	put(t, s, record("c", 20, 3))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{30, 20, 10}, []int64{all[0].Timestamp, all[1].Timestamp, all[2].Timestamp})
}

func TestListAllStableTies(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetConcurrency(3)
	for i := 0; i < 6; i++ {
		put(t, s, record(fmt.Sprintf("r%d", i), 7, float64(i)))
	}

	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"r0", "r1", "r2", "r3", "r4", "r5"}, ids)
}

func TestListAllSkipsBadEntries(t *testing.T) {
	ctx := context.Background()
	s, m := newTestStore(t)

	put(t, s, record("good", 10, 1))
	m.Put("record_broken", []byte("garbage"))
	_, err := s.AppendIndex(ctx, "broken")
	require.NoError(t, err)
	_, err = s.AppendIndex(ctx, "ghost")
	require.NoError(t, err)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)
}

func TestListAllLogsSkippedEntries(t *testing.T) {
	m := ledger.NewMemory()
	logger, hook := test.NewNullLogger()
	s := New(m, m.Signer(owner), logrus.NewEntry(logger))

	m.Put("record_keys", []byte(`["broken"]`))
	m.Put("record_broken", []byte("garbage"))

	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "broken", hook.LastEntry().Data["id"])
}

func TestMalformedIndex(t *testing.T) {
	ctx := context.Background()
	s, m := newTestStore(t)
	m.Put("record_keys", []byte("not json at all"))

	assert.Empty(t, s.ListIDs(ctx))
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAppendIndexReplacesCorruptIndex(t *testing.T) {
	ctx := context.Background()
	s, m := newTestStore(t)
	m.Put("record_keys", []byte("{{"))

	_, err := s.AppendIndex(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, s.ListIDs(ctx))
}

func TestUnavailableLedger(t *testing.T) {
	ctx := context.Background()
	s, m := newTestStore(t)
	put(t, s, record("a", 1, 1))
	m.SetAvailable(false)

	assert.Empty(t, s.ListIDs(ctx))
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = s.GetRecord(ctx, "a")
	assert.ErrorIs(t, err, model.ErrLedgerUnavailable)
	_, err = s.AppendIndex(ctx, "b")
	assert.ErrorIs(t, err, model.ErrLedgerUnavailable)
}

func TestReadOnlyStore(t *testing.T) {
	m := ledger.NewMemory()
	s := New(m, nil, nil)
	_, err := s.PutRecord(context.Background(), record("a", 1, 1))
	assert.ErrorIs(t, err, model.ErrNotAuthenticated)
	_, err = s.AppendIndex(context.Background(), "a")
	assert.ErrorIs(t, err, model.ErrNotAuthenticated)
}

func TestWriteRejectedByUser(t *testing.T) {
	s, m := newTestStore(t)
	m.RejectWrites(func(string) error { return model.ErrUserRejected })

	_, err := s.PutRecord(context.Background(), record("a", 1, 1))
	assert.ErrorIs(t, err, model.ErrLedgerUnavailable)
	assert.ErrorIs(t, err, model.ErrUserRejected)

	m.RejectWrites(func(string) error { return errors.New("rpc down") })
	_, err = s.PutRecord(context.Background(), record("a", 1, 1))
	assert.ErrorIs(t, err, model.ErrLedgerUnavailable)
	assert.False(t, model.IsUserRejected(err))
}

// Concurrent appends may lose ids. The store must never corrupt the index
// while doing so: every surviving id is one of those appended.
func TestConcurrentAppendIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendIndex(ctx, fmt.Sprintf("id%d", i))
		}(i)
	}
	wg.Wait()

	ids := s.ListIDs(ctx)
	assert.NotEmpty(t, ids)
	assert.LessOrEqual(t, len(ids), 16)
	for _, id := range ids {
		assert.Regexp(t, `^id\d+$`, id)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	a := record("a", 1, 1)
	b := record("b", 2, 2)
	b.Status = model.StatusVerified
	b.Category = "Genetic"
	c := record("c", 3, 3)
	c.Owner = "0xother"
	for _, r := range []model.Record{a, b, c} {
		put(t, s, r)
	}

	got, err := s.List(ctx, ListParams{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, _ = s.List(ctx, ListParams{Category: "genetic"})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	got, _ = s.List(ctx, ListParams{Owner: "0XOTHER"})
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	got, _ = s.List(ctx, ListParams{Limit: 2})
	assert.Len(t, got, 2)
}

func TestSQLiteBackedStore(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	s := New(l, l.Signer(owner), nil)
	put(t, s, record("a", 10, 1))
	put(t, s, record("b", 20, 2))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	put(t, s, record("a", 1, 1))

	v := record("b", 2, 2)
	v.Status = model.StatusVerified
	n, err := s.Import(ctx, []model.Record{record("a", 1, 5), v})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a", "b"}, s.ListIDs(ctx))

	got, err := s.GetRecord(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, got.Status)

	_, err = s.Import(ctx, []model.Record{{ID: "", Status: model.StatusPending}})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestImportKeepsExistingRecords(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	verified := record("r1", 1, 110)
	verified.Status = model.StatusVerified
	put(t, s, verified)

	rejected := record("r2", 2, 7)
	rejected.Status = model.StatusRejected
	put(t, s, rejected)

	pending := record("r3", 3, 1)
	pending.Owner = "0x00000000000000000000000000000000000000aa"
	put(t, s, pending)

	overwrite := func(id string, value float64) model.Record {
		r := record(id, 9, value)
		r.Owner = "0x00000000000000000000000000000000000000bb"
		return r
	}
	n, err := s.Import(ctx, []model.Record{overwrite("r1", 5), overwrite("r2", 5), overwrite("r3", 5)})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for _, want := range []model.Record{verified, rejected, pending} {
		got, err := s.GetRecord(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.Status, got.Status, want.ID)
		assert.Equal(t, want.EncryptedData, got.EncryptedData, want.ID)
		assert.Equal(t, want.Owner, got.Owner, want.ID)
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, s.ListIDs(ctx))
}

func TestImportStopsOnUnreadableLedger(t *testing.T) {
	ctx := context.Background()
	s, m := newTestStore(t)
	m.Put(ledger.RecordKey("bad"), []byte("{not json"))

	n, err := s.Import(ctx, []model.Record{record("bad", 1, 5)})
	assert.ErrorIs(t, err, model.ErrFormat)
	assert.Equal(t, 0, n)
}
