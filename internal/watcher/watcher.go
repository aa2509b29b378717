// Package watcher polls tariff bulletin feeds (RSS/Atom or JSON), normalises
// new items into change events and remembers what it has already seen.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tariff-cli/internal/config"
	"github.com/sells-group/tariff-cli/internal/fetcher"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/normalize"
	"github.com/sells-group/tariff-cli/internal/resilience"
)

// Source kinds.
const (
	KindRSS  = "rss"
	KindJSON = "json"
)

const (
	defaultMaxItems = 10
	idLength        = 16
)

// Item is one bulletin entry reduced to its title and summary.
type Item struct {
	Title   string
	Summary string
}

// Text is the normalisation input for the item.
func (i Item) Text() string {
	return strings.TrimSpace(i.Title + " " + i.Summary)
}

// ItemID is the stable dedupe key for text seen on a named source.
func ItemID(source, text string) string {
	sum := sha256.Sum256([]byte(source + "|" + text))
	return hex.EncodeToString(sum[:])[:idLength]
}

// Candidate is a normalised item, kept whether or not it became an event.
type Candidate struct {
	Record
	Event *model.TariffChangeEvent
}

// Result is the outcome of one poll.
type Result struct {
	Events     []model.TariffChangeEvent
	Candidates []Candidate
	// Failed maps source name to the error that stopped it this poll.
	Failed map[string]error
}

// Watcher polls the configured sources.
type Watcher struct {
	cfg         config.WatcherConfig
	destination string
	norm        *normalize.Normalizer
	fetcher     fetcher.Fetcher
	cache       *Cache
	breakers    *resilience.Breakers
	backoff     time.Duration

	mu    sync.Mutex
	etags map[string]string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(w *Watcher) { w.fetcher = f }
}

// WithBreakers replaces the per-source circuit breakers.
func WithBreakers(b *resilience.Breakers) Option {
	return func(w *Watcher) { w.breakers = b }
}

// WithRetryBackoff sets the delay between attempts on one source.
func WithRetryBackoff(d time.Duration) Option {
	return func(w *Watcher) { w.backoff = d }
}

// New creates a Watcher that normalises items for the given destination
// market and records them in the cache at cfg.CachePath.
func New(cfg config.WatcherConfig, destination string, norm *normalize.Normalizer, opts ...Option) (*Watcher, error) {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	cache, err := OpenCache(cfg.CachePath)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:         cfg,
		destination: destination,
		norm:        norm,
		cache:       cache,
		backoff:     200 * time.Millisecond,
		etags:       make(map[string]string),
		fetcher: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.UserAgent,
			Timeout:    time.Duration(cfg.TimeoutSecs * float64(time.Second)),
			MaxRetries: 1,
		}),
		breakers: resilience.NewBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerFailures,
			ResetTimeout:     time.Duration(cfg.BreakerResetSecs * float64(time.Second)),
		}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Cache returns the seen cache.
func (w *Watcher) Cache() *Cache { return w.cache }

// RunOnce polls every source once. Source failures are logged and reported
// in Result.Failed; they never produce events. The error is non-nil only
// when ctx is done.
func (w *Watcher) RunOnce(ctx context.Context) (*Result, error) {
	items := make([][]Item, len(w.cfg.Sources))
	errs := make([]error, len(w.cfg.Sources))

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for i, src := range w.cfg.Sources {
		g.Go(func() error {
			items[i], errs[i] = w.poll(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "watcher: cancelled")
	}

	res := &Result{Failed: make(map[string]error)}
	for i, src := range w.cfg.Sources {
		if errs[i] != nil {
			res.Failed[src.Name] = errs[i]
			zap.L().Warn("watcher: source failed",
				zap.String("source", src.Name),
				zap.Error(errs[i]),
			)
			continue
		}
		w.collect(src, items[i], res)
	}

	zap.L().Info("watcher: poll complete",
		zap.Int("sources", len(w.cfg.Sources)),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("events", len(res.Events)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

func (w *Watcher) collect(src config.WatcherSource, items []Item, res *Result) {
	for _, it := range items {
		text := it.Text()
		if text == "" {
			continue
		}
		id := ItemID(src.Name, text)
		if w.cache.Seen(id) {
			continue
		}

		ev, conf, meta := w.norm.Normalize(text, src.HSHint, w.destination)
		rec := Record{ID: id, Source: src.Name, Text: text, Confidence: conf, Meta: meta}
		if err := w.cache.Add(rec); err != nil {
			zap.L().Warn("watcher: cache write failed", zap.String("id", id), zap.Error(err))
		}

		cand := Candidate{Record: rec}
		if ev != nil && conf >= w.cfg.MinConfidence {
			cand.Event = ev
			res.Events = append(res.Events, *ev)
		}
		res.Candidates = append(res.Candidates, cand)
	}
}

// poll fetches one source through its breaker with bounded retries.
func (w *Watcher) poll(ctx context.Context, src config.WatcherSource) ([]Item, error) {
	breaker := w.breakers.Get(src.Name)
	if err := breaker.Allow(); err != nil {
		return nil, err
	}

	retry := resilience.RetryConfig{
		MaxAttempts:    w.cfg.Retries + 1,
		InitialBackoff: w.backoff,
		MaxBackoff:     w.backoff,
		Multiplier:     1,
		ShouldRetry:    func(error) bool { return ctx.Err() == nil },
		OnRetry:        resilience.RetryLogger(src.Name),
	}
	items, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]Item, error) {
		return w.fetch(ctx, src)
	})
	breaker.Record(err)
	if err != nil {
		return nil, err
	}
	if len(items) > w.cfg.MaxItems {
		items = items[:w.cfg.MaxItems]
	}
	return items, nil
}

func (w *Watcher) fetch(ctx context.Context, src config.WatcherSource) ([]Item, error) {
	w.mu.Lock()
	etag := w.etags[src.URL]
	w.mu.Unlock()

	body, newETag, changed, err := w.fetcher.DownloadIfChanged(ctx, src.URL, etag)
	if err != nil {
		return nil, eris.Wrapf(err, "watcher: fetch %s", src.Name)
	}
	if !changed {
		zap.L().Debug("watcher: feed not modified", zap.String("source", src.Name))
		return nil, nil
	}
	defer body.Close() //nolint:errcheck

	var items []Item
	switch src.Kind {
	case KindRSS:
		items, err = parseFeed(ctx, body)
	case KindJSON:
		items, err = parseJSON(ctx, body)
	default:
		err = eris.Errorf("watcher: unknown source kind %q", src.Kind)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "watcher: parse %s", src.Name)
	}

	if newETag != "" {
		w.mu.Lock()
		w.etags[src.URL] = newETag
		w.mu.Unlock()
	}
	return items, nil
}

type feedEntry struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Summary     string `xml:"summary"`
}

// parseFeed reads RSS <item> and Atom <entry> elements.
func parseFeed(ctx context.Context, r io.Reader) ([]Item, error) {
	entryCh, errCh := fetcher.StreamXML[feedEntry](ctx, r, "item", "entry")
	var items []Item
	for e := range entryCh {
		summary := e.Summary
		if summary == "" {
			summary = e.Description
		}
		items = append(items, Item{Title: strings.TrimSpace(e.Title), Summary: strings.TrimSpace(summary)})
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return items, nil
}

// parseJSON reads a top-level array of objects or an object with an "items" array.
func parseJSON(ctx context.Context, r io.Reader) ([]Item, error) {
	objCh, errCh := fetcher.DecodeJSONList[map[string]any](ctx, r, "items")
	var items []Item
	for obj := range objCh {
		items = append(items, Item{Title: field(obj, "title"), Summary: field(obj, "summary")})
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return items, nil
}

func field(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
