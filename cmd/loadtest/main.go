// Генератор нагрузки на HTTP API галереи. Сценарий browse читает каталог,
// quote считает стоимость заказа без побочных эффектов, checkout-declined
// проводит оформление с отклоняемой картой: такой заказ не сохраняется и
// не снимает картины с витрины, поэтому прогон повторяем.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	declinedMethodRef = "pm_decline"
	loadCountry       = "Canada"
	listPath          = "/api/paintings?limit=50"
	maxBodyBytes      = 1 << 20
)

type loadMode string

const (
	modeBrowse   loadMode = "browse"
	modeQuote    loadMode = "quote"
	modeCheckout loadMode = "checkout-declined"
)

type options struct {
	baseURL     string
	total       int
	totalGiven  bool
	duration    time.Duration
	concurrency int
	idleConns   int
	timeout     time.Duration
	mode        loadMode
	customerTag string
	reportPath  string
}

func parseOptions(args []string) (options, error) {
	var (
		opts          options
		modeValue     string
		timeoutValue  string
		durationValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&opts.baseURL, "url", "http://localhost:8080", "gallery API base URL")
	fs.IntVar(&opts.total, "total", 400, "scenario count; with -duration acts as an upper cap when given explicitly")
	fs.StringVar(&durationValue, "duration", "0s", "run for a fixed time instead of a fixed count, e.g. 10m")
	fs.IntVar(&opts.concurrency, "concurrency", 40, "concurrent workers")
	fs.IntVar(&opts.idleConns, "connections", 20, "max idle HTTP connections per host")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeBrowse), "browse | quote | checkout-declined")
	fs.StringVar(&opts.customerTag, "customer-tag", "load", "prefix for generated customer names and emails")
	fs.StringVar(&opts.reportPath, "output", "", "write the JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			opts.totalGiven = true
		}
	})

	var err error
	if opts.timeout, err = time.ParseDuration(strings.TrimSpace(timeoutValue)); err != nil {
		return opts, fmt.Errorf("parse timeout: %w", err)
	}
	if opts.duration, err = time.ParseDuration(strings.TrimSpace(durationValue)); err != nil {
		return opts, fmt.Errorf("parse duration: %w", err)
	}
	if opts.mode, err = parseMode(modeValue); err != nil {
		return opts, err
	}

	opts.baseURL = strings.TrimRight(strings.TrimSpace(opts.baseURL), "/")
	switch {
	case opts.baseURL == "":
		return opts, errors.New("base url is required")
	case opts.duration < 0:
		return opts, errors.New("duration cannot be negative")
	case opts.duration == 0 && opts.total < 1:
		return opts, errors.New("total must be positive when no duration is given")
	case opts.duration > 0 && opts.totalGiven && opts.total < 1:
		return opts, errors.New("total must be positive when combined with duration")
	case opts.concurrency < 1:
		return opts, errors.New("concurrency must be positive")
	case opts.idleConns < 1:
		return opts, errors.New("connections must be positive")
	case opts.timeout <= 0:
		return opts, errors.New("timeout must be positive")
	case strings.TrimSpace(opts.customerTag) == "":
		return opts, errors.New("customer-tag must not be blank")
	}

	return opts, nil
}

func parseMode(raw string) (loadMode, error) {
	mode := loadMode(strings.TrimSpace(raw))
	switch mode {
	case modeBrowse, modeQuote, modeCheckout:
		return mode, nil
	}
	return "", fmt.Errorf("unknown mode %q, want browse, quote or checkout-declined", raw)
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	opts, err := parseOptions(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	drv := &driver{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        opts.idleConns * 2,
				MaxIdleConnsPerHost: opts.idleConns,
			},
		},
		opts:  opts,
		runID: fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid()),
		stats: newTally(),
	}
	if opts.mode != modeBrowse {
		if err := drv.loadCatalog(); err != nil {
			return fmt.Errorf("prepare catalog: %w", err)
		}
	}

	startedAt := time.Now()
	jobs := make(chan int, opts.concurrency*2)
	var failures atomic.Int64
	var wg sync.WaitGroup

	for range opts.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := drv.run(id); err != nil {
					failures.Add(1)
				}
			}
		}()
	}

	feedJobs(jobs, opts)
	wg.Wait()

	result := drv.stats.report(startedAt, time.Since(startedAt))
	if lost := failures.Load(); result.Scenarios.Failed < lost {
		result.Scenarios.Failed = lost
		result.Scenarios.ErrorRate = failRate(lost, result.Scenarios.Total)
	}

	printReport(out, result, opts)
	if opts.reportPath != "" {
		if err := saveReport(opts.reportPath, result); err != nil {
			return fmt.Errorf("write report %s: %w", opts.reportPath, err)
		}
	}
	if result.Scenarios.Failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", result.Scenarios.Failed, result.Scenarios.Total)
	}
	return nil
}

// feedJobs раздаёт номера сценариев воркерам. В режиме длительности поток
// обрывается по таймеру, явный -total при этом работает верхней планкой.
func feedJobs(jobs chan<- int, opts options) {
	defer close(jobs)

	if opts.duration <= 0 {
		for i := range opts.total {
			jobs <- i
		}
		return
	}

	stop := time.After(opts.duration)
	for i := 0; ; i++ {
		if opts.totalGiven && i >= opts.total {
			return
		}
		select {
		case <-stop:
			return
		case jobs <- i:
		}
	}
}

// apiReply покрывает поля конверта ответа, нужные генератору.
type apiReply struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

type paintingRef struct {
	ID string `json:"id"`
}

type quoteRequest struct {
	ItemIDs []string `json:"itemIds"`
	Country string   `json:"country"`
}

type buyerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type shippingInfo struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type checkoutRequest struct {
	ItemIDs          []string     `json:"itemIds"`
	Customer         buyerInfo    `json:"customer"`
	Shipping         shippingInfo `json:"shipping"`
	PaymentMethodRef string       `json:"paymentMethodRef"`
}

type driver struct {
	client  *http.Client
	opts    options
	runID   string
	catalog []paintingRef
	stats   *tally
}

// run прогоняет один сценарий и учитывает его итог в серии scenario.
func (d *driver) run(index int) error {
	start := time.Now()

	var err error
	switch d.opts.mode {
	case modeQuote:
		err = d.quote(index)
	case modeCheckout:
		err = d.checkoutDeclined(index)
	default:
		err = d.browse(index)
	}

	status := http.StatusOK
	if err != nil {
		status = 0
	}
	d.stats.observe(scenarioSeries, time.Since(start), status, err == nil)
	return err
}

// browse листает витрину и открывает одну карточку из выдачи.
func (d *driver) browse(index int) error {
	status, body, err := d.get(listPath, "ListPaintings")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("list paintings: status %d", status)
	}

	items, err := decodeItems(body)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	pick := items[index%len(items)]
	status, _, err = d.get("/api/paintings/"+pick.ID, "GetPainting")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("get painting: status %d", status)
	}
	return nil
}

// quote запрашивает расчёт корзины, состояние витрины не меняется.
func (d *driver) quote(index int) error {
	pick := d.catalog[index%len(d.catalog)]
	payload := quoteRequest{ItemIDs: []string{pick.ID}, Country: loadCountry}

	status, _, err := d.postJSON("/api/orders/validate", "ValidateOrder", payload, "", http.StatusOK)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("validate order: status %d", status)
	}
	return nil
}

// checkoutDeclined оформляет заказ картой pm_decline. Ожидаемый исход 400
// card_declined: резерв снят, заказ не сохранён, прогон повторяем.
func (d *driver) checkoutDeclined(index int) error {
	pick := d.catalog[index%len(d.catalog)]
	tag := strings.TrimSpace(d.opts.customerTag)

	payload := checkoutRequest{
		ItemIDs: []string{pick.ID},
		Customer: buyerInfo{
			Name:  tag + " tester",
			Email: fmt.Sprintf("%s-%s-%d@example.com", tag, d.runID, index),
		},
		Shipping: shippingInfo{
			Address:    "1 Load Lane",
			City:       "Toronto",
			PostalCode: "M5V 1A1",
			Country:    loadCountry,
		},
		PaymentMethodRef: declinedMethodRef,
	}
	key := fmt.Sprintf("lt-order-%s-%d", d.runID, index)

	status, body, err := d.postJSON("/api/orders", "PlaceOrder", payload, key, http.StatusBadRequest)
	if err != nil {
		return err
	}
	if status != http.StatusBadRequest {
		return fmt.Errorf("place order: status %d, want %d", status, http.StatusBadRequest)
	}

	var reply apiReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("decode checkout reply: %w", err)
	}
	if reply.Reason != "card_declined" {
		return fmt.Errorf("order was not declined as card_declined, got %q", reply.Reason)
	}
	return nil
}

// loadCatalog один раз снимает список картин перед прогоном. Подготовка
// в статистику не попадает.
func (d *driver) loadCatalog() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.opts.baseURL+listPath, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("list paintings: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}

	items, err := decodeItems(raw)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return errors.New("catalog is empty, seed paintings before quote or checkout runs")
	}
	d.catalog = items
	return nil
}

func (d *driver) get(path, name string) (int, []byte, error) {
	return d.roundTrip(http.MethodGet, path, name, nil, "", http.StatusOK)
}

func (d *driver) postJSON(path, name string, payload any, key string, want int) (int, []byte, error) {
	return d.roundTrip(http.MethodPost, path, name, payload, key, want)
}

// roundTrip выполняет запрос и через отложенный вызов учитывает его в серии
// name. Успех — ответ без транспортной ошибки со статусом want.
func (d *driver) roundTrip(method, path, name string, payload any, key string, want int) (status int, body []byte, err error) {
	start := time.Now()
	defer func() {
		d.stats.observe(name, time.Since(start), status, err == nil && status == want)
	}()

	var reqBody io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err = json.NewEncoder(buf).Encode(payload); err != nil {
			return 0, nil, fmt.Errorf("encode %s body: %w", name, err)
		}
		reqBody = buf
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, d.opts.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func decodeItems(body []byte) ([]paintingRef, error) {
	var reply apiReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode catalog page: %w", err)
	}
	var items []paintingRef
	if err := json.Unmarshal(reply.Data, &items); err != nil {
		return nil, fmt.Errorf("decode catalog items: %w", err)
	}
	return items, nil
}
