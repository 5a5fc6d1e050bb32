package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Серия scenario агрегирует сценарии целиком, остальные серии считают
// отдельные вызовы API.
const scenarioSeries = "scenario"

type latencyQuantiles struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type endpointReport struct {
	Calls       int64            `json:"calls"`
	OK          int64            `json:"ok"`
	Failed      int64            `json:"failed"`
	ErrorRate   float64          `json:"error_rate"`
	StatusCodes map[string]int64 `json:"status_codes"`
	LatencyMs   latencyQuantiles `json:"latency_ms"`
}

type scenarioReport struct {
	Total     int64            `json:"total"`
	Succeeded int64            `json:"succeeded"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	LatencyMs latencyQuantiles `json:"latency_ms"`
}

// runReport — итог прогона: сводка по сценариям плюс разбивка по сериям.
// Серия scenario присутствует и в разбивке, чтобы json был самодостаточным.
type runReport struct {
	StartedAt      time.Time                 `json:"started_at"`
	ElapsedSeconds float64                   `json:"elapsed_seconds"`
	RPS            float64                   `json:"rps"`
	Scenarios      scenarioReport            `json:"scenarios"`
	Series         map[string]endpointReport `json:"series"`
}

type callSeries struct {
	count    int64
	ok       int64
	failed   int64
	byStatus map[string]int64
	samples  []float64
}

func (s *callSeries) summarize() endpointReport {
	return endpointReport{
		Calls:       s.count,
		OK:          s.ok,
		Failed:      s.failed,
		ErrorRate:   failRate(s.failed, s.count),
		StatusCodes: maps.Clone(s.byStatus),
		LatencyMs:   quantilesOf(s.samples),
	}
}

// tally копит статистику вызовов, сгруппированную по именам серий.
type tally struct {
	mu     sync.Mutex
	series map[string]*callSeries
}

func newTally() *tally {
	return &tally{series: make(map[string]*callSeries)}
}

// observe учитывает один вызов. Нулевой status означает транспортную
// ошибку и попадает в распределение кодов меткой error.
func (t *tally) observe(name string, elapsed time.Duration, status int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.series[name]
	if s == nil {
		s = &callSeries{byStatus: make(map[string]int64)}
		t.series[name] = s
	}

	s.count++
	if ok {
		s.ok++
	} else {
		s.failed++
	}

	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	s.byStatus[label]++
	s.samples = append(s.samples, elapsed.Seconds()*1000)
}

func (t *tally) report(startedAt time.Time, elapsed time.Duration) runReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := runReport{
		StartedAt:      startedAt.UTC(),
		ElapsedSeconds: elapsed.Seconds(),
		Series:         make(map[string]endpointReport, len(t.series)),
	}
	for name, s := range t.series {
		out.Series[name] = s.summarize()
	}

	if sc, found := out.Series[scenarioSeries]; found {
		out.Scenarios = scenarioReport{
			Total:     sc.Calls,
			Succeeded: sc.OK,
			Failed:    sc.Failed,
			ErrorRate: sc.ErrorRate,
			LatencyMs: sc.LatencyMs,
		}
	}
	if elapsed > 0 {
		out.RPS = float64(out.Scenarios.Total) / elapsed.Seconds()
	}
	return out
}

func quantilesOf(samples []float64) latencyQuantiles {
	if len(samples) == 0 {
		return latencyQuantiles{}
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return latencyQuantiles{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: quantile(sorted, 0.50),
		P95: quantile(sorted, 0.95),
		P99: quantile(sorted, 0.99),
	}
}

// quantile берёт q из отсортированной выборки с линейной интерполяцией
// между соседними наблюдениями.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	rank := q * float64(len(sorted)-1)
	idx, frac := math.Modf(rank)
	i := int(idx)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

func failRate(failed, total int64) float64 {
	if total < 1 {
		return 0
	}
	return float64(failed) / float64(total)
}

func printReport(out io.Writer, result runReport, opts options) {
	_, _ = fmt.Fprintf(out, "load test finished: mode=%s target=%s\n", opts.mode, describeTarget(opts))
	_, _ = fmt.Fprintf(out, "scenarios: total=%d ok=%d failed=%d error_rate=%.4f rps=%.2f elapsed=%.2fs\n",
		result.Scenarios.Total,
		result.Scenarios.Succeeded,
		result.Scenarios.Failed,
		result.Scenarios.ErrorRate,
		result.RPS,
		result.ElapsedSeconds,
	)
	lat := result.Scenarios.LatencyMs
	_, _ = fmt.Fprintf(out, "scenario latency ms: p50=%.2f p95=%.2f p99=%.2f min=%.2f avg=%.2f max=%.2f\n",
		lat.P50, lat.P95, lat.P99, lat.Min, lat.Avg, lat.Max)

	for _, name := range slices.Sorted(maps.Keys(result.Series)) {
		if name == scenarioSeries {
			continue
		}
		m := result.Series[name]
		_, _ = fmt.Fprintf(out, "%s: calls=%d ok=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, m.Calls, m.OK, m.Failed, m.ErrorRate, m.LatencyMs.P95)
	}
}

func describeTarget(opts options) string {
	switch {
	case opts.duration <= 0:
		return fmt.Sprintf("%d scenarios", opts.total)
	case opts.totalGiven:
		return fmt.Sprintf("%s (cap %d scenarios)", opts.duration, opts.total)
	default:
		return opts.duration.String()
	}
}

func saveReport(path string, result runReport) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("report path must point to a file")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("report path escapes the working directory: %s", path)
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(raw, '\n'), 0o600)
}
