package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbouazizi/tawjih/record"
	"github.com/hbouazizi/tawjih/scrape"
	"github.com/hbouazizi/tawjih/seeds"
)

// detailPage renders a minimal but complete detail document for one id.
func detailPage(id string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html dir="rtl"><body>
<table>
<tr><td>الجامعة</td><td><b>جامعة تونس</b></td></tr>
<tr><td>الولاية</td><td><b>تونس</b></td></tr>
<tr><td>المؤسسة</td><td><b>كلية العلوم</b></td></tr>
<tr><td>مجال التكوين</td><td><b>علوم %s</b></td></tr>
<tr><td>التخصصات</td><td><b>إجازة في العلوم</b></td></tr>
<tr><td>المقياس</td><td><b>ر*2+ع*1</b></td></tr>
<tr><td>نوع الباكالوريا</td><td><b>رياضيات</b></td></tr>
</table>
<script>
var labels = ["2023", "2024"];
var data = [120.5, 131.25];
</script>
</body></html>`, id)
}

// fixtureServer serves detail pages and score payloads keyed by id, with
// optional per-id failure injection.
type fixtureServer struct {
	*httptest.Server

	mu       sync.Mutex
	fail     map[string]int // id -> remaining 503s before success
	requests map[string]int
	scores   map[string]string
}

func newFixtureServer(t *testing.T) *fixtureServer {
	fs := &fixtureServer{
		fail:     make(map[string]int),
		requests: make(map[string]int),
		scores:   make(map[string]string),
	}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		switch r.URL.Path {
		case "/ar/dynamique/filiere.php":
			fs.mu.Lock()
			fs.requests[id]++
			if fs.fail[id] > 0 {
				fs.fail[id]--
				fs.mu.Unlock()
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fs.mu.Unlock()
			fmt.Fprint(w, detailPage(id))
		case "/ar/dynamique/values.php":
			fs.mu.Lock()
			payload := fs.scores[id]
			fs.mu.Unlock()
			fmt.Fprint(w, payload)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fixtureServer) requestCount(id string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests[id]
}

// testConfig keeps delays negligible so tests stay fast.
func testConfig() *Config {
	return &Config{
		Workers:      3,
		Delay:        0,
		FetchTimeout: 2 * time.Second,
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
	}
}

// recordingSink captures per-id outcomes for assertions.
type recordingSink struct {
	mu   sync.Mutex
	done map[string]error
}

func (s *recordingSink) MarkDone(internalID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = make(map[string]error)
	}
	s.done[internalID] = err
}

// TestRun_AllSucceed verifies that a clean run produces one validated
// record per seed with scores from the values endpoint.
func TestRun_AllSucceed(t *testing.T) {
	fs := newFixtureServer(t)
	fs.scores["122103"] = "2023/121.5/2024/137.4415/"
	fs.scores["230456"] = "2024/98.25/"

	fetcher := scrape.NewFetcher(fs.URL, 2*time.Second)
	h := New(fetcher, nil, testConfig())

	seedList := []seeds.Seed{
		{InternalID: "122103", UniversityID: "7"},
		{InternalID: "230456", UniversityID: "3"},
	}
	result, err := h.Run(context.Background(), seedList, nil)
	require.NoError(t, err, "Clean run should not error")
	require.Len(t, result.Records, 2, "Should produce one record per seed")
	assert.Empty(t, result.Failures, "Should have no failures")
	assert.NotEqual(t, "", result.RunID.String(), "Run should carry an id")

	byCode := make(map[string]record.Specialization)
	for _, rec := range result.Records {
		byCode[rec.Code] = rec
		require.NoError(t, rec.Validate(), "Every collected record should validate")
		assert.Len(t, rec.HistoricalScores, len(record.Years()), "Every record carries the full year series")
	}
	require.Contains(t, byCode, "22103")
	assert.Equal(t, "1", byCode["22103"].BacTypeID)
	assert.Equal(t, "7", byCode["22103"].UniversityID)
	assert.Equal(t, 137.4415, byCode["22103"].HistoricalScores[2024])
	assert.Equal(t, 98.25, byCode["30456"].HistoricalScores[2024])
}

// TestRun_RetriesTransientFailure verifies that an id recovering within
// the attempt budget still lands in the output.
func TestRun_RetriesTransientFailure(t *testing.T) {
	fs := newFixtureServer(t)
	fs.fail["122103"] = 2 // two 503s, then success

	fetcher := scrape.NewFetcher(fs.URL, 2*time.Second)
	h := New(fetcher, nil, testConfig())

	result, err := h.Run(context.Background(), []seeds.Seed{{InternalID: "122103"}}, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1, "Id should succeed on the third attempt")
	assert.Empty(t, result.Failures)
	assert.Equal(t, 3, fs.requestCount("122103"), "Should have attempted exactly three detail fetches")
}

// TestRun_PermanentFailureExcluded verifies that an id failing every
// attempt is reported as a failure and excluded from the records, while
// other ids still succeed.
func TestRun_PermanentFailureExcluded(t *testing.T) {
	fs := newFixtureServer(t)
	fs.fail["999999"] = 100 // never recovers

	fetcher := scrape.NewFetcher(fs.URL, 2*time.Second)
	h := New(fetcher, nil, testConfig())

	sink := &recordingSink{}
	seedList := []seeds.Seed{
		{InternalID: "122103"},
		{InternalID: "999999"},
	}
	result, err := h.Run(context.Background(), seedList, sink)
	require.NoError(t, err, "Per-id failures should not abort the run")
	require.Len(t, result.Records, 1)
	assert.Equal(t, "22103", result.Records[0].Code)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "999999", result.Failures[0].InternalID)
	assert.True(t, scrape.Retryable(result.Failures[0].Err), "Failure should preserve the underlying error")
	assert.Equal(t, 3, fs.requestCount("999999"), "Retries should stop at the attempt budget")

	assert.NoError(t, sink.done["122103"], "Sink should see the success")
	assert.Error(t, sink.done["999999"], "Sink should see the failure")
}

// TestRun_TimeoutsExhaustAttempts verifies that an id timing out on every
// attempt ends up a permanent failure without affecting other ids.
func TestRun_TimeoutsExhaustAttempts(t *testing.T) {
	var slowHits int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "777777" && r.URL.Path == "/ar/dynamique/filiere.php" {
			atomic.AddInt32(&slowHits, 1)
			time.Sleep(300 * time.Millisecond)
		}
		fmt.Fprint(w, detailPage(r.URL.Query().Get("id")))
	}))
	t.Cleanup(slow.Close)

	cfg := testConfig()
	cfg.FetchTimeout = 50 * time.Millisecond
	fetcher := scrape.NewFetcher(slow.URL, 2*time.Second)
	h := New(fetcher, nil, cfg)

	seedList := []seeds.Seed{
		{InternalID: "777777"},
		{InternalID: "122103"},
	}
	result, err := h.Run(context.Background(), seedList, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1, "Healthy id should still succeed")
	assert.Equal(t, "22103", result.Records[0].Code)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "777777", result.Failures[0].InternalID)

	var reqErr *scrape.RequestError
	require.ErrorAs(t, result.Failures[0].Err, &reqErr)
	assert.True(t, reqErr.Timeout, "Failure should be classified as a timeout")
	assert.Equal(t, int32(3), atomic.LoadInt32(&slowHits), "Should time out exactly three times")
}

// TestRun_NonRetryableShortCircuits verifies that a structurally broken id
// fails after a single attempt.
func TestRun_NonRetryableShortCircuits(t *testing.T) {
	fs := newFixtureServer(t)

	fetcher := scrape.NewFetcher(fs.URL, 2*time.Second)
	h := New(fetcher, nil, testConfig())

	// Id is not six digits; assembly fails with an incomplete-record error.
	result, err := h.Run(context.Background(), []seeds.Seed{{InternalID: "12ab03"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0].Err, scrape.ErrIncompleteRecord)
	assert.Equal(t, 1, fs.requestCount("12ab03"), "Non-retryable errors should not be retried")
}

// TestRun_ScoresDegradeToChart verifies that a broken values endpoint
// falls back to the page's chart arrays instead of failing the record.
func TestRun_ScoresDegradeToChart(t *testing.T) {
	fs := newFixtureServer(t)
	// values.php returns an empty payload for this id; the detail page's
	// chart script carries 2023/2024.

	fetcher := scrape.NewFetcher(fs.URL, 2*time.Second)
	h := New(fetcher, nil, testConfig())

	result, err := h.Run(context.Background(), []seeds.Seed{{InternalID: "122103"}}, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, 120.5, rec.HistoricalScores[2023], "Chart fallback should supply 2023")
	assert.Equal(t, 131.25, rec.HistoricalScores[2024], "Chart fallback should supply 2024")
	assert.Equal(t, record.MissingScore, rec.HistoricalScores[2011], "Uncovered years stay at the sentinel")
}

// TestRun_DedupByCode verifies that two seeds resolving to the same code
// collapse to one record.
func TestRun_DedupByCode(t *testing.T) {
	fs := newFixtureServer(t)

	fetcher := scrape.NewFetcher(fs.URL, 2*time.Second)
	// Single worker keeps collection order deterministic.
	cfg := testConfig()
	cfg.Workers = 1
	h := New(fetcher, nil, cfg)

	seedList := []seeds.Seed{
		{InternalID: "122103", UniversityID: "7"},
		{InternalID: "122103", UniversityID: "9"},
	}
	result, err := h.Run(context.Background(), seedList, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1, "Duplicate ids should collapse to one record")
	assert.Equal(t, "9", result.Records[0].UniversityID, "Last write should win")
}

// TestRun_Cancellation verifies that cancelling the context stops the run
// with the context's error when nothing was collected.
func TestRun_Cancellation(t *testing.T) {
	fs := newFixtureServer(t)

	fetcher := scrape.NewFetcher(fs.URL, 2*time.Second)
	cfg := testConfig()
	cfg.Delay = 200 * time.Millisecond
	h := New(fetcher, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Run(ctx, []seeds.Seed{{InternalID: "122103"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestDefaultConfig verifies the documented defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Delay)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
}
