package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlikcc/yargisalzeka.V2/internal/bedesten"
	"github.com/vlikcc/yargisalzeka.V2/internal/content"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	"github.com/vlikcc/yargisalzeka.V2/internal/store/memstore"
	"github.com/vlikcc/yargisalzeka.V2/pkg/config"
	"github.com/vlikcc/yargisalzeka.V2/pkg/kafka"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

var fixedNow = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

func rawDecision(id, itemType string) bedesten.RawDecision {
	d := bedesten.RawDecision{
		DocumentID: json.RawMessage(fmt.Sprintf("%q", id)),
		EsasNo:     json.RawMessage(`"2024/` + id + `"`),
	}
	if itemType != "" {
		d.ItemType = json.RawMessage(fmt.Sprintf(`{"name": %q}`, itemType))
	}
	return d
}

func rawLegislation(id, title string) bedesten.RawLegislation {
	return bedesten.RawLegislation{
		MevzuatID:  json.RawMessage(fmt.Sprintf("%q", id)),
		MevzuatAdi: json.RawMessage(fmt.Sprintf("%q", title)),
		MevzuatTur: json.RawMessage(`{"name": "KANUN", "description": "Kanun"}`),
	}
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

type fakeAPI struct {
	mu sync.Mutex

	decisionPages map[string][][]bedesten.RawDecision
	decisionTotal map[string]int
	decisionErr   map[string]error
	legisPages    map[string][][]bedesten.RawLegislation
	legisTotal    map[string]int

	bodies       map[string]string
	contentErr   map[string]error
	onContent    func(id string)
	contentCalls []string
	queries      []bedesten.DecisionQuery
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		decisionPages: map[string][][]bedesten.RawDecision{},
		decisionTotal: map[string]int{},
		decisionErr:   map[string]error{},
		legisPages:    map[string][][]bedesten.RawLegislation{},
		legisTotal:    map[string]int{},
		bodies:        map[string]string{},
		contentErr:    map[string]error{},
	}
}

func (f *fakeAPI) SearchDecisions(_ context.Context, q bedesten.DecisionQuery, page, _ int) (*bedesten.DecisionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err := f.decisionErr[q.ItemType]; err != nil {
		return nil, err
	}
	pages := f.decisionPages[q.ItemType]
	out := &bedesten.DecisionPage{Total: f.decisionTotal[q.ItemType]}
	if page <= len(pages) {
		out.Items = pages[page-1]
	}
	return out, nil
}

func (f *fakeAPI) SearchLegislation(_ context.Context, typ string, page, _ int) (*bedesten.LegislationPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := f.legisPages[typ]
	out := &bedesten.LegislationPage{Total: f.legisTotal[typ]}
	if page <= len(pages) {
		out.Items = pages[page-1]
	}
	return out, nil
}

func (f *fakeAPI) content(id string) (string, error) {
	f.mu.Lock()
	f.contentCalls = append(f.contentCalls, id)
	hook := f.onContent
	body, err := f.bodies[id], f.contentErr[id]
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return body, err
}

func (f *fakeAPI) DecisionContent(_ context.Context, id string) (string, error) {
	return f.content(id)
}

func (f *fakeAPI) LegislationContent(_ context.Context, id string) (string, error) {
	return f.content(id)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (n *fakeNotifier) Publish(_ context.Context, events ...kafka.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
	return n.err
}

// threeDecisions serves three YARGITAYKARARI decisions over two pages of two.
func threeDecisions() *fakeAPI {
	api := newFakeAPI()
	api.decisionPages["YARGITAYKARARI"] = [][]bedesten.RawDecision{
		{rawDecision("1", "YARGITAYKARARI"), rawDecision("2", "YARGITAYKARARI")},
		{rawDecision("3", "YARGITAYKARARI")},
	}
	api.decisionTotal["YARGITAYKARARI"] = 3
	return api
}

func newRunner(api API, sink Sink, opts Options) *Runner {
	opts.DecisionPageSize = 2
	opts.LegislationPageSize = 2
	opts.Now = fixedNow
	return New(api, sink, opts)
}

// ---------------------------------------------------------------------------
// Decision runs
// ---------------------------------------------------------------------------

func TestRunDecisionsStoresEveryRecord(t *testing.T) {
	api := threeDecisions()
	st := memstore.New()

	summary := newRunner(api, st, Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"YARGITAYKARARI"},
		Years:     []int{2024},
	})

	require.Len(t, summary.Segments, 1)
	seg := summary.Segments[0]
	assert.Equal(t, 2, seg.Pages)
	assert.Equal(t, 3, seg.Total)
	assert.Equal(t, 3, seg.Fetched)
	assert.Equal(t, 3, seg.Inserted)
	assert.Zero(t, seg.Updated)
	assert.Empty(t, seg.PageError)
	assert.False(t, summary.Cancelled)
	assert.False(t, summary.DryRun)
	assert.NotEmpty(t, summary.RunID)

	for _, id := range []string{"1", "2", "3"} {
		d, _, ok := st.Decision(id)
		require.True(t, ok, id)
		assert.Equal(t, "YARGITAYKARARI", d.ItemType)
		assert.Equal(t, "2024/"+id, *d.CaseNo)
	}
	assert.Equal(t, 2024, api.queries[0].DecisionYear)
}

func TestRunDecisionsTwiceUpdatesInsteadOfDuplicating(t *testing.T) {
	api := threeDecisions()
	st := memstore.New()
	r := newRunner(api, st, Options{})
	job := DecisionJob{ItemTypes: []string{"YARGITAYKARARI"}, Years: []int{2024}}

	r.RunDecisions(context.Background(), job)
	second := r.RunDecisions(context.Background(), job)

	totals := second.Totals()
	assert.Zero(t, totals.Inserted)
	assert.Equal(t, 3, totals.Updated)
	stats, err := st.Stats(context.Background(), ingestion.FamilyDecision)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
}

func TestRunDecisionsUpsertFailureDoesNotStopRun(t *testing.T) {
	api := threeDecisions()
	st := memstore.New()
	st.FailUpsert = func(id string) error {
		if id == "2" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	summary := newRunner(api, st, Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"YARGITAYKARARI"},
		Years:     []int{2024},
	})

	totals := summary.Totals()
	assert.Equal(t, 3, totals.Fetched)
	assert.Equal(t, 2, totals.Inserted)
	assert.Equal(t, 1, totals.Failed)
	_, _, ok := st.Decision("3")
	assert.True(t, ok)
}

func TestRunDecisionsDryRunWritesNothing(t *testing.T) {
	api := threeDecisions()

	summary := newRunner(api, nil, Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"YARGITAYKARARI"},
		Years:     []int{2024},
	})

	assert.True(t, summary.DryRun)
	totals := summary.Totals()
	assert.Equal(t, 3, totals.Fetched)
	assert.Zero(t, totals.Inserted+totals.Updated+totals.Failed)
}

func TestRunDecisionsDefaultsToCurrentYearWithoutFilters(t *testing.T) {
	api := threeDecisions()

	newRunner(api, nil, Options{}).RunDecisions(context.Background(), DecisionJob{ItemTypes: []string{"YARGITAYKARARI"}})

	require.NotEmpty(t, api.queries)
	assert.Equal(t, 2025, api.queries[0].DecisionYear)
}

func TestRunDecisionsPhraseSuppressesYearDefault(t *testing.T) {
	api := threeDecisions()

	newRunner(api, nil, Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"YARGITAYKARARI"},
		Phrase:    "kira tespiti",
	})

	require.NotEmpty(t, api.queries)
	assert.Zero(t, api.queries[0].DecisionYear)
	assert.Equal(t, "kira tespiti", api.queries[0].Phrase)
}

func TestRunDecisionsCaseYearSuppressesYearDefault(t *testing.T) {
	api := threeDecisions()

	newRunner(api, nil, Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"YARGITAYKARARI"},
		CaseYear:  2019,
	})

	require.NotEmpty(t, api.queries)
	assert.Zero(t, api.queries[0].DecisionYear)
	assert.Equal(t, 2019, api.queries[0].CaseYear)
}

func TestRunDecisionsEveryTypeAndYearIsASegment(t *testing.T) {
	api := threeDecisions()
	api.decisionPages["KYB"] = [][]bedesten.RawDecision{{rawDecision("k1", "KYB")}}
	api.decisionTotal["KYB"] = 1

	summary := newRunner(api, memstore.New(), Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"KYB", "YARGITAYKARARI"},
		Years:     []int{2024, 2023},
	})

	require.Len(t, summary.Segments, 4)
	assert.Equal(t, "KYB", summary.Segments[0].ItemType)
	assert.Equal(t, 2024, summary.Segments[0].Year)
	assert.Equal(t, 2023, summary.Segments[1].Year)
	assert.Equal(t, "YARGITAYKARARI", summary.Segments[2].ItemType)
}

func TestRunDecisionsPageErrorEndsOnlyItsSegment(t *testing.T) {
	api := threeDecisions()
	api.decisionErr["KYB"] = errors.New("http 503")

	summary := newRunner(api, memstore.New(), Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"KYB", "YARGITAYKARARI"},
		Years:     []int{2024},
	})

	require.Len(t, summary.Segments, 2)
	assert.Contains(t, summary.Segments[0].PageError, "503")
	assert.Zero(t, summary.Segments[0].Fetched)
	assert.Equal(t, 3, summary.Segments[1].Inserted)
}

func TestRunDecisionsLimit(t *testing.T) {
	api := threeDecisions()

	summary := newRunner(api, memstore.New(), Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"YARGITAYKARARI"},
		Years:     []int{2024},
		Limit:     2,
	})

	assert.Equal(t, 2, summary.Totals().Fetched)
	assert.Equal(t, 1, summary.Totals().Pages)
}

func TestRunDecisionsMissingItemTypeFallsBackToQuery(t *testing.T) {
	api := newFakeAPI()
	api.decisionPages["DANISTAYKARAR"] = [][]bedesten.RawDecision{{rawDecision("d1", "")}}
	api.decisionTotal["DANISTAYKARAR"] = 1
	st := memstore.New()

	newRunner(api, st, Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"DANISTAYKARAR"},
		Years:     []int{2024},
	})

	d, _, ok := st.Decision("d1")
	require.True(t, ok)
	assert.Equal(t, "DANISTAYKARAR", d.ItemType)
}

func TestRunDecisionsRejectsRecordsWithoutID(t *testing.T) {
	api := newFakeAPI()
	noID := rawDecision("x", "KYB")
	noID.DocumentID = nil
	api.decisionPages["KYB"] = [][]bedesten.RawDecision{{noID, rawDecision("ok", "KYB")}}
	api.decisionTotal["KYB"] = 2

	summary := newRunner(api, memstore.New(), Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"KYB"},
		Years:     []int{2024},
	})

	totals := summary.Totals()
	assert.Equal(t, 1, totals.Rejected)
	assert.Equal(t, 1, totals.Inserted)
}

func TestRunDecisionsCountsFieldDiagnostics(t *testing.T) {
	api := newFakeAPI()
	bad := rawDecision("1", "KYB")
	bad.KararTarihi = json.RawMessage(`"not a date"`)
	api.decisionPages["KYB"] = [][]bedesten.RawDecision{{bad}}
	api.decisionTotal["KYB"] = 1
	st := memstore.New()

	summary := newRunner(api, st, Options{}).RunDecisions(context.Background(), DecisionJob{ItemTypes: []string{"KYB"}, Years: []int{2024}})

	assert.Equal(t, 1, summary.Totals().Diagnostics)
	assert.Equal(t, 1, summary.Totals().Inserted)
	d, _, _ := st.Decision("1")
	assert.Nil(t, d.DecisionDate)
	assert.Equal(t, "not a date", *d.DecisionDateRaw)
}

// ---------------------------------------------------------------------------
// Content
// ---------------------------------------------------------------------------

func TestRunDecisionsWithContent(t *testing.T) {
	api := threeDecisions()
	api.bodies["1"] = b64("<p>Birinci</p><p>karar</p>")
	api.bodies["2"] = "%%%"
	api.contentErr["3"] = errors.New("timeout")
	st := memstore.New()

	summary := newRunner(api, st, Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes:   []string{"YARGITAYKARARI"},
		Years:       []int{2024},
		WithContent: true,
	})

	totals := summary.Totals()
	assert.Equal(t, 3, totals.Inserted)
	assert.Equal(t, 2, totals.ContentMissing)

	d1, _, _ := st.Decision("1")
	require.NotNil(t, d1.Body)
	assert.Equal(t, "Birinci karar", *d1.Body)
	d2, _, _ := st.Decision("2")
	assert.Nil(t, d2.Body)
	d3, _, _ := st.Decision("3")
	assert.Nil(t, d3.Body)
}

func TestRunDecisionsContentFailureKeepsStoredBody(t *testing.T) {
	api := threeDecisions()
	api.bodies["1"] = b64("<p>ilk metin</p>")
	st := memstore.New()
	r := newRunner(api, st, Options{})
	job := DecisionJob{ItemTypes: []string{"YARGITAYKARARI"}, Years: []int{2024}, WithContent: true}

	r.RunDecisions(context.Background(), job)
	api.contentErr["1"] = errors.New("http 500")
	r.RunDecisions(context.Background(), job)

	d, _, _ := st.Decision("1")
	require.NotNil(t, d.Body)
	assert.Equal(t, "ilk metin", *d.Body)
}

func TestRunDecisionsCacheHitSkipsContentCall(t *testing.T) {
	api := threeDecisions()
	api.bodies["2"] = b64("<p>iki</p>")
	api.bodies["3"] = b64("<p>üç</p>")
	cache := content.NewMemoryCache()
	cache.Set(context.Background(), content.Key("decision", "1"), "önbellekten")
	st := memstore.New()

	newRunner(api, st, Options{Cache: cache}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes:   []string{"YARGITAYKARARI"},
		Years:       []int{2024},
		WithContent: true,
	})

	assert.Equal(t, []string{"2", "3"}, api.contentCalls)
	d1, _, _ := st.Decision("1")
	assert.Equal(t, "önbellekten", *d1.Body)
	cached, ok := cache.Get(context.Background(), content.Key("decision", "3"))
	require.True(t, ok)
	assert.Equal(t, "üç", cached)
}

// ---------------------------------------------------------------------------
// Cancellation and notification
// ---------------------------------------------------------------------------

func TestRunDecisionsCancellationFinishesRecordInFlight(t *testing.T) {
	api := threeDecisions()
	api.bodies["1"] = b64("<p>bir</p>")
	ctx, cancel := context.WithCancel(context.Background())
	api.onContent = func(string) { cancel() }
	st := memstore.New()

	summary := newRunner(api, st, Options{}).RunDecisions(ctx, DecisionJob{
		ItemTypes:   []string{"YARGITAYKARARI", "KYB"},
		Years:       []int{2024},
		WithContent: true,
	})

	assert.True(t, summary.Cancelled)
	require.Len(t, summary.Segments, 1)
	assert.Equal(t, 1, summary.Totals().Inserted)
	d, _, ok := st.Decision("1")
	require.True(t, ok)
	assert.Equal(t, "bir", *d.Body)
	_, _, ok = st.Decision("2")
	assert.False(t, ok)
}

func TestRunPublishesSummary(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("broker down")}

	summary := newRunner(threeDecisions(), memstore.New(), Options{Notifier: notifier}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes: []string{"YARGITAYKARARI"},
		Years:     []int{2024},
	})

	require.Len(t, notifier.events, 1)
	assert.Equal(t, summary.RunID, notifier.events[0].Key)
	published, ok := notifier.events[0].Value.(*Summary)
	require.True(t, ok)
	assert.Equal(t, 3, published.Totals().Inserted)
	assert.Equal(t, fixedNow(), summary.FinishedAt)
}

// ---------------------------------------------------------------------------
// Legislation
// ---------------------------------------------------------------------------

func TestRunLegislation(t *testing.T) {
	api := newFakeAPI()
	api.legisPages["KANUN"] = [][]bedesten.RawLegislation{
		{rawLegislation("m1", "Türk Medeni Kanunu"), rawLegislation("m2", "Türk Borçlar Kanunu")},
		{rawLegislation("m3", "Türk Ticaret Kanunu")},
	}
	api.legisTotal["KANUN"] = 3
	api.bodies["m1"] = b64("<h1>Madde 1</h1>")
	st := memstore.New()

	summary := newRunner(api, st, Options{}).RunLegislation(context.Background(), LegislationJob{
		Types:       []string{"KANUN", "TUZUK"},
		WithContent: true,
	})

	require.Len(t, summary.Segments, 2)
	assert.Equal(t, 3, summary.Segments[0].Inserted)
	assert.Equal(t, 2, summary.Segments[0].ContentMissing)
	assert.Zero(t, summary.Segments[1].Fetched)

	l, ok := st.Legislation("m1")
	require.True(t, ok)
	assert.Equal(t, "KANUN", l.Type)
	assert.Equal(t, "Madde 1", *l.Body)
	stats, _ := st.Stats(context.Background(), ingestion.FamilyLegislation)
	assert.EqualValues(t, 3, stats.Total)
}

// ---------------------------------------------------------------------------
// Against the real client
// ---------------------------------------------------------------------------

func TestRunDecisionsOverHTTP(t *testing.T) {
	docs := []map[string]any{
		{"documentId": "101", "itemType": map[string]any{"name": "YARGITAYKARARI", "description": "Yargıtay Kararı"}, "birimAdi": "3. Hukuk Dairesi", "kararTarihi": "2024-05-02T00:00:00"},
		{"documentId": "102", "itemType": map[string]any{"name": "YARGITAYKARARI"}, "esasNoYil": "2023"},
		{"documentId": "103", "itemType": map[string]any{"name": "YARGITAYKARARI"}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Data struct {
				PageNumber int    `json:"pageNumber"`
				PageSize   int    `json:"pageSize"`
				DocumentID string `json:"documentId"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var data any
		switch r.URL.Path {
		case "/emsal-karar/searchDocuments":
			start := (req.Data.PageNumber - 1) * req.Data.PageSize
			end := min(start+req.Data.PageSize, len(docs))
			page := []map[string]any{}
			if start < len(docs) {
				page = docs[start:end]
			}
			data = map[string]any{"emsalKararList": page, "total": len(docs)}
		case "/emsal-karar/getDocumentContent":
			data = map[string]any{"content": b64("<p>metin " + req.Data.DocumentID + "</p>")}
		default:
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data, "metadata": map[string]any{"FMTY": "SUCCESS"}})
	}))
	defer srv.Close()

	client := bedesten.New(config.SourceConfig{BaseURL: srv.URL, ApplicationName: "UyapMevzuat", Timeout: 5 * time.Second}, bedesten.WithDelay(0))
	st := memstore.New()

	summary := newRunner(client, st, Options{}).RunDecisions(context.Background(), DecisionJob{
		ItemTypes:   []string{"YARGITAYKARARI"},
		Years:       []int{2024},
		WithContent: true,
	})

	totals := summary.Totals()
	assert.Equal(t, 2, totals.Pages)
	assert.Equal(t, 3, totals.Inserted)
	assert.Zero(t, totals.ContentMissing)

	d, _, ok := st.Decision("101")
	require.True(t, ok)
	assert.Equal(t, "metin 101", *d.Body)
	assert.Equal(t, "Yargıtay Kararı", *d.ItemTypeLabel)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), *d.DecisionDate)
	d2, _, _ := st.Decision("102")
	assert.Equal(t, 2023, *d2.CaseYear)
}
