package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// stubGallery поднимает поддельное API галереи: витрина из трёх картин,
// расчёт корзины и оформление, отклоняющее pm_decline.
func stubGallery(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/paintings", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"success":true,"data":[{"id":"aur-001"},{"id":"aur-002"},{"id":"aur-003"}]}`)
	})
	mux.HandleFunc("GET /api/paintings/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"success":true,"data":{"id":%q}}`, r.PathValue("id"))
	})
	mux.HandleFunc("POST /api/orders/validate", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"success":true,"data":{"subtotal":1200,"shippingCost":35,"total":1235}}`)
	})
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get(idempotencyHeader) == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprint(w, `{"success":false,"message":"idempotency key is required"}`)
			return
		}

		var body checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.PaymentMethodRef == declinedMethodRef {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprint(w, `{"success":false,"message":"Payment was declined","reason":"card_declined"}`)
			return
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"success":true,"message":"Order placed successfully!"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func stubDriver(server *httptest.Server, mode loadMode) *driver {
	return &driver{
		client: server.Client(),
		opts: options{
			baseURL:     server.URL,
			timeout:     2 * time.Second,
			mode:        mode,
			customerTag: "load",
		},
		runID:   "run-7",
		catalog: []paintingRef{{ID: "aur-001"}, {ID: "aur-002"}},
		stats:   newTally(),
	}
}

// seriesOf достаёт сводку одной серии из свежего отчёта.
func seriesOf(t *testing.T, drv *driver, name string) endpointReport {
	t.Helper()

	rep, found := drv.stats.report(time.Now(), time.Second).Series[name]
	if !found {
		t.Fatalf("series %q is missing from the report", name)
	}
	return rep
}

func TestParseOptionsDefaults(t *testing.T) {
	t.Parallel()

	opts, err := parseOptions(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.baseURL != "http://localhost:8080" || opts.mode != modeBrowse {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if opts.total != 400 || opts.concurrency != 40 || opts.idleConns != 20 {
		t.Fatalf("unexpected numeric defaults: %+v", opts)
	}
	if opts.timeout != 5*time.Second || opts.duration != 0 {
		t.Fatalf("unexpected durations: timeout=%s duration=%s", opts.timeout, opts.duration)
	}
	if opts.totalGiven {
		t.Fatal("totalGiven must be false when -total is not passed")
	}
}

func TestParseOptionsOverrides(t *testing.T) {
	t.Parallel()

	opts, err := parseOptions([]string{
		"-url=http://gallery.local:8080/",
		"-mode=quote",
		"-total=12",
		"-concurrency=3",
		"-connections=2",
		"-timeout=2s",
		"-customer-tag=stage",
		"-output=report.json",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.baseURL != "http://gallery.local:8080" {
		t.Fatalf("trailing slash must be trimmed, got %s", opts.baseURL)
	}
	if !opts.totalGiven {
		t.Fatal("explicit -total must set totalGiven")
	}
	if opts.mode != modeQuote || opts.total != 12 || opts.concurrency != 3 || opts.idleConns != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.timeout != 2*time.Second || opts.customerTag != "stage" || opts.reportPath != "report.json" {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestParseOptionsDurationMode(t *testing.T) {
	t.Parallel()

	opts, err := parseOptions([]string{"-duration=3s", "-concurrency=2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.duration != 3*time.Second {
		t.Fatalf("unexpected duration: %s", opts.duration)
	}
	if opts.totalGiven {
		t.Fatal("default -total must not act as a cap in duration mode")
	}
}

func TestParseOptionsRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "broken duration", args: []string{"-duration=later"}, wantErr: "parse duration"},
		{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "cannot be negative"},
		{name: "blank url", args: []string{"-url=  "}, wantErr: "base url is required"},
		{name: "zero total", args: []string{"-total=0"}, wantErr: "total must be positive"},
		{name: "zero total with duration", args: []string{"-duration=5s", "-total=0"}, wantErr: "combined with duration"},
		{name: "unknown mode", args: []string{"-mode=stress"}, wantErr: "unknown mode"},
		{name: "zero concurrency", args: []string{"-concurrency=0"}, wantErr: "concurrency must be positive"},
		{name: "zero connections", args: []string{"-connections=0"}, wantErr: "connections must be positive"},
		{name: "zero timeout", args: []string{"-timeout=0s"}, wantErr: "timeout must be positive"},
		{name: "blank customer tag", args: []string{"-customer-tag=   "}, wantErr: "customer-tag"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseOptions(tc.args)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	if mode, err := parseMode("  checkout-declined  "); err != nil || mode != modeCheckout {
		t.Fatalf("padded input must parse, got %q, %v", mode, err)
	}
	if mode, err := parseMode("quote"); err != nil || mode != modeQuote {
		t.Fatalf("unexpected result: %q, %v", mode, err)
	}
	if _, err := parseMode("soak"); err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("expected the unknown mode error, got %v", err)
	}
}

func TestFeedJobs(t *testing.T) {
	t.Parallel()

	t.Run("fixed count", func(t *testing.T) {
		t.Parallel()

		jobs := make(chan int, 16)
		feedJobs(jobs, options{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected job sequence: %v", got)
		}
	})

	t.Run("timed run", func(t *testing.T) {
		t.Parallel()

		jobs := make(chan int, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			feedJobs(jobs, options{duration: 20 * time.Millisecond})
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatal("a timed run must produce at least one job")
		}
	})

	t.Run("timed run with explicit cap", func(t *testing.T) {
		t.Parallel()

		jobs := make(chan int, 16)
		feedJobs(jobs, options{duration: time.Second, total: 3, totalGiven: true})

		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected the cap to stop the feed at 3 jobs, got %d", count)
		}
	})
}

func TestTallyReport(t *testing.T) {
	t.Parallel()

	tl := newTally()
	tl.observe(scenarioSeries, 10*time.Millisecond, http.StatusOK, true)
	tl.observe(scenarioSeries, 20*time.Millisecond, 0, false)
	tl.observe("ListPaintings", 15*time.Millisecond, http.StatusOK, true)

	result := tl.report(time.Now(), 2*time.Second)
	if result.Scenarios.Total != 2 || result.Scenarios.Succeeded != 1 || result.Scenarios.Failed != 1 {
		t.Fatalf("unexpected scenario totals: %+v", result.Scenarios)
	}
	if result.Scenarios.ErrorRate != 0.5 {
		t.Fatalf("unexpected error rate: %f", result.Scenarios.ErrorRate)
	}
	if result.RPS != 1 {
		t.Fatalf("2 scenarios over 2s must give rps=1, got %f", result.RPS)
	}

	sc := result.Series[scenarioSeries]
	if sc.StatusCodes["200"] != 1 || sc.StatusCodes["error"] != 1 {
		t.Fatalf("unexpected scenario code distribution: %+v", sc.StatusCodes)
	}
	list, found := result.Series["ListPaintings"]
	if !found || list.Calls != 1 || list.OK != 1 {
		t.Fatalf("unexpected ListPaintings series: %+v", list)
	}
}

func TestQuantiles(t *testing.T) {
	t.Parallel()

	samples := []float64{40, 10, 30, 20}
	got := quantilesOf(samples)

	if got.Min != 10 || got.Max != 40 || got.Avg != 25 {
		t.Fatalf("unexpected bounds: %+v", got)
	}
	if got.P50 != 25 {
		t.Fatalf("p50 = %f, want 25", got.P50)
	}
	if math.Abs(got.P95-38.5) > 1e-9 {
		t.Fatalf("p95 = %f, want ~38.5", got.P95)
	}
	if samples[0] != 40 {
		t.Fatal("quantilesOf must not reorder the input")
	}

	if quantilesOf(nil) != (latencyQuantiles{}) {
		t.Fatal("empty input must give a zero summary")
	}
	if q := quantile([]float64{7}, 0.99); q != 7 {
		t.Fatalf("single sample quantile = %f, want 7", q)
	}
}

func TestFailRate(t *testing.T) {
	t.Parallel()

	if got := failRate(1, 4); got != 0.25 {
		t.Fatalf("failRate(1, 4) = %f, want 0.25", got)
	}
	if got := failRate(3, 0); got != 0 {
		t.Fatalf("zero total must give rate 0, got %f", got)
	}
}

func TestDescribeTarget(t *testing.T) {
	t.Parallel()

	if got := describeTarget(options{total: 50}); got != "50 scenarios" {
		t.Fatalf("unexpected target: %s", got)
	}
	if got := describeTarget(options{duration: 2 * time.Second}); got != "2s" {
		t.Fatalf("unexpected target: %s", got)
	}
	if got := describeTarget(options{duration: 2 * time.Second, total: 10, totalGiven: true}); got != "2s (cap 10 scenarios)" {
		t.Fatalf("unexpected target: %s", got)
	}
}

func TestSaveReport(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	sample := runReport{Scenarios: scenarioReport{Total: 4, Succeeded: 4}}
	if err := saveReport(path, sample); err != nil {
		t.Fatalf("saveReport: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report back: %v", err)
	}
	var decoded runReport
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Scenarios.Total != 4 || decoded.Scenarios.Succeeded != 4 {
		t.Fatalf("report round trip lost data: %+v", decoded)
	}

	for _, bad := range []string{".", "..", "../escape.json"} {
		if err := saveReport(bad, sample); err == nil {
			t.Fatalf("expected an error for path %q", bad)
		}
	}
}

func TestDriverBrowse(t *testing.T) {
	t.Parallel()

	server := stubGallery(t)
	drv := stubDriver(server, modeBrowse)

	if err := drv.run(1); err != nil {
		t.Fatalf("browse scenario: %v", err)
	}

	if list := seriesOf(t, drv, "ListPaintings"); list.OK != 1 {
		t.Fatalf("unexpected ListPaintings series: %+v", list)
	}
	if get := seriesOf(t, drv, "GetPainting"); get.OK != 1 {
		t.Fatalf("unexpected GetPainting series: %+v", get)
	}
	if sc := seriesOf(t, drv, scenarioSeries); sc.Failed != 0 {
		t.Fatalf("browse must succeed against the stub: %+v", sc)
	}
}

func TestDriverQuote(t *testing.T) {
	t.Parallel()

	server := stubGallery(t)
	drv := stubDriver(server, modeQuote)

	if err := drv.run(0); err != nil {
		t.Fatalf("quote scenario: %v", err)
	}
	if snap := seriesOf(t, drv, "ValidateOrder"); snap.OK != 1 {
		t.Fatalf("unexpected ValidateOrder series: %+v", snap)
	}
}

func TestDriverCheckoutDeclined(t *testing.T) {
	t.Parallel()

	server := stubGallery(t)
	drv := stubDriver(server, modeCheckout)

	if err := drv.run(4); err != nil {
		t.Fatalf("checkout scenario: %v", err)
	}

	place := seriesOf(t, drv, "PlaceOrder")
	if place.OK != 1 || place.StatusCodes["400"] != 1 {
		t.Fatalf("a decline must count as success with code 400: %+v", place)
	}
	if sc := seriesOf(t, drv, scenarioSeries); sc.Failed != 0 {
		t.Fatalf("declined checkout is the expected outcome: %+v", sc)
	}
}

func TestDriverRejectsAcceptedOrder(t *testing.T) {
	t.Parallel()

	// Стенд принимает любой заказ, хотя сценарий ждёт отклонения.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"success":true,"message":"Order placed successfully!"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	drv := stubDriver(server, modeCheckout)
	err := drv.run(0)
	if err == nil || !strings.Contains(err.Error(), "status 201") {
		t.Fatalf("an accepted order is a tool failure, got %v", err)
	}

	if place := seriesOf(t, drv, "PlaceOrder"); place.Failed != 1 {
		t.Fatalf("201 must be recorded as a failed call: %+v", place)
	}
	if sc := seriesOf(t, drv, scenarioSeries); sc.Failed != 1 {
		t.Fatalf("expected a failed scenario: %+v", sc)
	}
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	t.Run("fills the driver", func(t *testing.T) {
		t.Parallel()

		server := stubGallery(t)
		drv := stubDriver(server, modeQuote)
		drv.catalog = nil

		if err := drv.loadCatalog(); err != nil {
			t.Fatalf("loadCatalog: %v", err)
		}
		if len(drv.catalog) != 3 || drv.catalog[0].ID != "aur-001" {
			t.Fatalf("unexpected catalog: %+v", drv.catalog)
		}
	})

	t.Run("refuses an empty showcase", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/paintings", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, `{"success":true,"data":[]}`)
		})
		server := httptest.NewServer(mux)
		t.Cleanup(server.Close)

		drv := stubDriver(server, modeQuote)
		err := drv.loadCatalog()
		if err == nil || !strings.Contains(err.Error(), "catalog is empty") {
			t.Fatalf("expected the empty catalog error, got %v", err)
		}
	})
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	server := stubGallery(t)
	path := filepath.Join(t.TempDir(), "run.json")

	var buf bytes.Buffer
	err := run([]string{
		"-url=" + server.URL,
		"-mode=checkout-declined",
		"-total=5",
		"-concurrency=2",
		"-timeout=2s",
		"-output=" + path,
	}, &buf)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if out := buf.String(); !strings.Contains(out, "mode=checkout-declined") || !strings.Contains(out, "PlaceOrder") {
		t.Fatalf("summary is incomplete:\n%s", out)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report file: %v", err)
	}
	var decoded runReport
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Scenarios.Total != 5 || decoded.Scenarios.Failed != 0 {
		t.Fatalf("unexpected totals: %+v", decoded.Scenarios)
	}
	if decoded.Series["PlaceOrder"].StatusCodes["400"] != 5 {
		t.Fatalf("every checkout must end with 400: %+v", decoded.Series["PlaceOrder"])
	}
}

func TestRunReportsFailures(t *testing.T) {
	t.Parallel()

	// Стенд принимает любой заказ, хотя сценарий ждёт отклонения.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/paintings", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"success":true,"data":[{"id":"aur-001"}]}`)
	})
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"success":true,"message":"Order placed successfully!"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	err := run([]string{
		"-url=" + server.URL,
		"-mode=checkout-declined",
		"-total=3",
		"-concurrency=1",
		"-timeout=2s",
	}, &buf)
	if err == nil || !strings.Contains(err.Error(), "3 of 3 scenarios failed") {
		t.Fatalf("run must fail when orders are accepted, got %v", err)
	}
}

func TestRunRejectsBadOptions(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := run([]string{"-mode=stress"}, &buf)
	if err == nil || !strings.Contains(err.Error(), "invalid options") {
		t.Fatalf("expected the options error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("no summary must be printed on a config error, got %q", buf.String())
	}
}
