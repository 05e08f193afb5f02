package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	"github.com/vlikcc/yargisalzeka.V2/internal/store"
	"github.com/vlikcc/yargisalzeka.V2/internal/store/memstore"
	"github.com/vlikcc/yargisalzeka.V2/pkg/elastic"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
	"github.com/vlikcc/yargisalzeka.V2/pkg/kafka"
	"github.com/vlikcc/yargisalzeka.V2/pkg/resilience"
)

// ---------------------------------------------------------------------------
// Fake search index
// ---------------------------------------------------------------------------

type fakeIndex struct {
	mu       sync.Mutex
	indexes  map[string]map[string]json.RawMessage
	mappings map[string][]byte
	created  int
	deleted  int

	// reject fails single documents; bulkErr fails whole bulk calls, once
	// per entry.
	reject  func(id string) *elastic.BulkFailure
	bulkErr []error
	calls   int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		indexes:  map[string]map[string]json.RawMessage{},
		mappings: map[string][]byte{},
	}
}

func (f *fakeIndex) IndexExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.indexes[name]
	return ok, nil
}

func (f *fakeIndex) DeleteIndex(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexes, name)
	f.deleted++
	return nil
}

func (f *fakeIndex) CreateIndex(_ context.Context, name string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[name]; ok {
		return errors.New("resource_already_exists_exception")
	}
	f.indexes[name] = map[string]json.RawMessage{}
	f.mappings[name] = body
	f.created++
	return nil
}

func (f *fakeIndex) Bulk(_ context.Context, index string, docs []elastic.BulkDoc) (elastic.BulkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.bulkErr) > 0 {
		err := f.bulkErr[0]
		f.bulkErr = f.bulkErr[1:]
		return elastic.BulkResult{}, err
	}
	var res elastic.BulkResult
	for _, d := range docs {
		if f.reject != nil {
			if failure := f.reject(d.ID); failure != nil {
				res.Failures = append(res.Failures, *failure)
				continue
			}
		}
		raw, err := json.Marshal(d.Source)
		if err != nil {
			return res, err
		}
		f.indexes[index][d.ID] = raw
		res.Indexed++
	}
	return res, nil
}

func (f *fakeIndex) Refresh(context.Context, string) error { return nil }

func (f *fakeIndex) Count(_ context.Context, index string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.indexes[index])), nil
}

func (f *fakeIndex) doc(t *testing.T, index, id string) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.indexes[index][id]
	require.True(t, ok, "document %s/%s not indexed", index, id)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

type recordingNotifier struct {
	events []kafka.Event
}

func (n *recordingNotifier) Publish(_ context.Context, events ...kafka.Event) error {
	n.events = append(n.events, events...)
	return nil
}

func ptr[T any](v T) *T { return &v }

func seedDecisions(t *testing.T, st *memstore.Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := st.UpsertDecision(context.Background(), ingestion.Decision{
			ExternalID:   fmt.Sprint(1000 + i),
			ItemType:     "YARGITAYKARARI",
			UnitName:     ptr("9. Hukuk Dairesi"),
			CaseYear:     ptr(2023),
			CaseNo:       ptr(fmt.Sprintf("2023/%d", i)),
			DecisionDate: ptr(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
			Body:         ptr("karar metni"),
		})
		require.NoError(t, err)
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestReindexDecisions(t *testing.T) {
	st := memstore.New()
	seedDecisions(t, st, 5)
	idx := newFakeIndex()
	notifier := &recordingNotifier{}

	res, err := New(st, idx, Options{BatchSize: 2, Retry: fastRetry(), Notifier: notifier}).Reindex(context.Background(), Specs()["ictihatlar"])
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.EqualValues(t, 5, res.Rows)
	assert.Equal(t, 5, res.Indexed)
	assert.Zero(t, res.Failed)
	assert.EqualValues(t, 5, res.IndexCount)
	assert.Equal(t, 3, idx.calls)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "ictihatlar", notifier.events[0].Key)

	doc := idx.doc(t, "ictihatlar", "1")
	assert.Equal(t, "1001", doc["documentId"])
	assert.Equal(t, "9. Hukuk Dairesi", doc["birimAdi"])
	assert.Equal(t, "9. Hukuk Dairesi", doc["yargitayDairesi"])
	assert.Equal(t, "2024-03-15", doc["kararTarihi"])
	assert.EqualValues(t, 2023, doc["esasNoYil"])
	assert.Nil(t, doc["kararNoYil"])
	assert.Equal(t, "karar metni", doc["kararMetni"])
}

func TestReindexTwiceLeavesSameCount(t *testing.T) {
	st := memstore.New()
	seedDecisions(t, st, 4)
	idx := newFakeIndex()
	r := New(st, idx, Options{Retry: fastRetry()})

	first, err := r.Reindex(context.Background(), Specs()["ictihatlar"])
	require.NoError(t, err)
	second, err := r.Reindex(context.Background(), Specs()["ictihatlar"])
	require.NoError(t, err)

	assert.Equal(t, first.IndexCount, second.IndexCount)
	assert.Equal(t, 2, idx.created)
	assert.Equal(t, 1, idx.deleted)
}

func TestReindexDropsStaleDocuments(t *testing.T) {
	idx := newFakeIndex()
	require.NoError(t, idx.CreateIndex(context.Background(), "kararlar", nil))
	idx.indexes["kararlar"]["999"] = json.RawMessage(`{"id": 999}`)

	st := memstore.New()
	st.SeedTable("kararlar", []store.Row{
		{"id": int64(1), "yargitay_dairesi": "1. Ceza Dairesi", "esas_no": "2020/1", "karar_no": "2021/1", "karar_tarihi": time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC), "karar_metni": "metin"},
		{"id": int64(2), "yargitay_dairesi": "2. Ceza Dairesi", "karar_tarihi": nil},
	})

	res, err := New(st, idx, Options{Retry: fastRetry()}).Reindex(context.Background(), Specs()["kararlar"])
	require.NoError(t, err)

	assert.EqualValues(t, 2, res.IndexCount)
	_, stale := idx.indexes["kararlar"]["999"]
	assert.False(t, stale)
	assert.Equal(t, "2021-01-05", idx.doc(t, "kararlar", "1")["kararTarihi"])
	assert.Nil(t, idx.doc(t, "kararlar", "2")["kararTarihi"])
}

func TestReindexEmptyTableStillRebuildsIndex(t *testing.T) {
	idx := newFakeIndex()
	require.NoError(t, idx.CreateIndex(context.Background(), "mevzuatlar", nil))
	idx.indexes["mevzuatlar"]["7"] = json.RawMessage(`{}`)

	res, err := New(memstore.New(), idx, Options{Retry: fastRetry()}).Reindex(context.Background(), Specs()["mevzuatlar"])
	require.NoError(t, err)

	assert.Zero(t, res.Rows)
	assert.Zero(t, res.IndexCount)
	assert.Zero(t, idx.calls)
	assert.Contains(t, string(idx.mappings["mevzuatlar"]), "turkish_analyzer")
}

func TestReindexMissingTableIsSkipped(t *testing.T) {
	idx := newFakeIndex()

	res, err := New(memstore.New(), idx, Options{}).Reindex(context.Background(), Specs()["kararlar"])
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Zero(t, idx.created)
}

func TestReindexPartialFailuresAreCountedAndSampled(t *testing.T) {
	st := memstore.New()
	seedDecisions(t, st, 10)
	idx := newFakeIndex()
	idx.reject = func(id string) *elastic.BulkFailure {
		if id == "1" || id == "2" || id == "3" || id == "4" {
			return &elastic.BulkFailure{ID: id, Status: 400, Type: "mapper_parsing_exception", Reason: "failed to parse field"}
		}
		return nil
	}

	res, err := New(st, idx, Options{BatchSize: 3, ErrorSampleSize: 2, Retry: fastRetry()}).Reindex(context.Background(), Specs()["ictihatlar"])
	require.NoError(t, err)

	assert.Equal(t, 6, res.Indexed)
	assert.Equal(t, 4, res.Failed)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "mapper_parsing_exception")
}

func TestReindexRetriesTransientBulkErrors(t *testing.T) {
	st := memstore.New()
	seedDecisions(t, st, 2)
	idx := newFakeIndex()
	idx.bulkErr = []error{apperrors.New(apperrors.ErrTransient, "bulk", "connection reset")}

	res, err := New(st, idx, Options{Retry: fastRetry()}).Reindex(context.Background(), Specs()["ictihatlar"])
	require.NoError(t, err)

	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 2, idx.calls)
}

func TestReindexPermanentBulkErrorFailsBatchOnly(t *testing.T) {
	st := memstore.New()
	seedDecisions(t, st, 4)
	idx := newFakeIndex()
	idx.bulkErr = []error{apperrors.New(apperrors.ErrConfiguration, "bulk", "bad request")}

	res, err := New(st, idx, Options{BatchSize: 2, Retry: fastRetry()}).Reindex(context.Background(), Specs()["ictihatlar"])
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 2, idx.calls)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "bad request")
}

func TestReindexAll(t *testing.T) {
	st := memstore.New()
	seedDecisions(t, st, 1)
	idx := newFakeIndex()
	r := New(st, idx, Options{Retry: fastRetry()})

	results, err := r.ReindexAll(context.Background(), []string{"ictihatlar", "kararlar", "mevzuatlar"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Indexed)
	assert.True(t, results[1].Skipped)
	assert.False(t, results[2].Skipped)

	_, err = r.ReindexAll(context.Background(), []string{"unknown"})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestLegislationDocument(t *testing.T) {
	doc := legislationDocument(store.Row{
		"id":                  int64(3),
		"mevzuat_id":          "m-1",
		"mevzuat_no":          int64(5237),
		"mevzuat_adi":         "Türk Ceza Kanunu",
		"resmi_gazete_tarihi": time.Date(2004, 10, 12, 0, 0, 0, 0, time.UTC),
		"kayit_tarihi":        "2004-10-12T10:00:00Z",
	})

	assert.EqualValues(t, 3, doc.ID)
	assert.EqualValues(t, 5237, *doc.MevzuatNo)
	assert.Equal(t, "2004-10-12", *doc.ResmiGazeteTarihi)
	assert.Equal(t, "2004-10-12", *doc.KayitTarihi)
	assert.Nil(t, doc.GuncellemeTarihi)
	assert.Nil(t, doc.MevzuatTertip)
}

func TestMappingsAreValidJSON(t *testing.T) {
	for name, spec := range Specs() {
		var body map[string]any
		require.NoError(t, json.Unmarshal(spec.Mapping, &body), name)
		assert.Contains(t, body, "settings")
		assert.Contains(t, body, "mappings")
	}
}
