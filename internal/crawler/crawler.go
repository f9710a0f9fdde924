// Package crawler orchestrates a full harvest run: link discovery,
// day-over-day diffing, parallel detail extraction, and checkpointed
// persistence, followed by a self-diagnosis pass.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/estatewatch/crawler/internal/browser"
	"github.com/estatewatch/crawler/internal/checkpoint"
	"github.com/estatewatch/crawler/internal/config"
	"github.com/estatewatch/crawler/internal/discover"
	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/extract"
	"github.com/estatewatch/crawler/internal/identity"
	"github.com/estatewatch/crawler/internal/logger"
	"github.com/estatewatch/crawler/internal/metrics"
	"github.com/estatewatch/crawler/internal/ratelimit"
	"github.com/estatewatch/crawler/internal/retry"
	"github.com/estatewatch/crawler/internal/snapshot"
	"github.com/estatewatch/crawler/internal/storage"
)

// discoveryWorker is the pool slot reserved for link discovery, kept
// apart from the detail workers' slots.
const discoveryWorker = -1

// Options control a single run.
type Options struct {
	// ForceRefresh re-discovers links even when a fresh snapshot exists.
	ForceRefresh bool
	// SkipRefresh reuses the stored snapshot regardless of age.
	SkipRefresh bool
	// NoDiff scrapes every discovered URL instead of only new ones.
	NoDiff bool
	// RetryCount is the corrective re-run depth, carried in-process so
	// self-diagnosis can bound itself.
	RetryCount int
}

// Summary is the outcome of one run, corrective re-runs included.
type Summary struct {
	Categories     int
	TotalLinks     int
	NewListings    int
	SoldListings   int
	Scraped        int
	Errors         int
	CorrectiveRuns int
	Elapsed        time.Duration
}

// BrowsingContext is the crawler's view of an isolated browsing context.
type BrowsingContext interface {
	Open(ctx context.Context, url string) (*browser.Page, error)
}

// ContextPool hands out browsing contexts keyed by worker.
type ContextPool interface {
	NewContext(workerID int) (BrowsingContext, error)
	ReleaseAll()
}

// Collector discovers a category's detail URLs.
type Collector interface {
	Collect(ctx context.Context, bctx discover.Opener, cat domain.Category) ([]string, error)
}

// Extractor scrapes a single detail page.
type Extractor interface {
	Extract(ctx context.Context, bctx extract.Opener, url string, cat domain.Category) (*domain.Listing, error)
}

// Crawler runs the harvest pipeline.
type Crawler struct {
	cfg        config.CrawlerConfig
	categories []domain.Category
	store      storage.Store
	log        logger.Interface
	met        *metrics.Metrics

	pool        ContextPool
	collector   Collector
	extractor   Extractor
	snapshots   *snapshot.Engine
	checkpoints *checkpoint.Manager

	now func() time.Time
}

// poolAdapter bridges the concrete session pool to ContextPool.
type poolAdapter struct {
	pool *browser.Pool
}

func (p *poolAdapter) NewContext(workerID int) (BrowsingContext, error) {
	bctx, err := p.pool.Session(workerID).NewContext()
	if err != nil {
		return nil, err
	}
	return bctx, nil
}

func (p *poolAdapter) ReleaseAll() {
	p.pool.ReleaseAll()
}

// New wires a production crawler: shared rate governor, identity
// factory, session pool, discoverer, and extractor.
func New(cfg config.CrawlerConfig, categories []domain.Category, store storage.Store, log logger.Interface) *Crawler {
	met := metrics.New()
	gov := ratelimit.New(ratelimit.Config{
		MaxRPS:      cfg.MaxRPS,
		BurstSize:   cfg.BurstSize,
		BurstWindow: cfg.BurstWindow,
	}, log)
	pool := browser.NewPool(
		browser.Config{MaxUses: cfg.MaxSessionUses, PageTimeout: cfg.PageTimeout},
		identity.NewFactory(time.Now().UnixNano()),
		log,
		met.SessionsRecycled.Inc,
	)

	return &Crawler{
		cfg:        cfg,
		categories: categories,
		store:      store,
		log:        log,
		met:        met,
		pool:       &poolAdapter{pool: pool},
		collector: discover.New(discover.Config{
			ItemsPerPage: cfg.ItemsPerPage,
			MaxPages:     cfg.MaxPages,
			Budget:       cfg.CollectBudget,
		}, gov, log),
		extractor:   extract.New(gov, log),
		snapshots:   snapshot.New(store, log),
		checkpoints: checkpoint.New(store, log),
		now:         time.Now,
	}
}

// Metrics exposes the run's Prometheus registry for scraping.
func (c *Crawler) Metrics() *metrics.Metrics {
	return c.met
}

// Run executes one full harvest and returns its summary. Per-URL
// failures are counted, never fatal; only storage and context errors
// abort the run.
func (c *Crawler) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := c.now()
	defer c.pool.ReleaseAll()

	sum := &Summary{Categories: len(c.categories)}

	links, err := c.gatherLinks(ctx, opts)
	if err != nil {
		return sum, err
	}

	for _, cat := range c.categories {
		urls := links[cat.Code]
		sum.TotalLinks += len(urls)

		if err := c.processCategory(ctx, opts, cat, urls, sum); err != nil {
			return sum, err
		}
	}

	sum.Elapsed = c.now().Sub(start)
	c.log.Info("run complete",
		logger.Int("total_links", sum.TotalLinks),
		logger.Int("new", sum.NewListings),
		logger.Int("sold", sum.SoldListings),
		logger.Int("scraped", sum.Scraped),
		logger.Int("errors", sum.Errors),
		logger.Duration("elapsed", sum.Elapsed))

	// A failed corrective re-run is the one diagnosis outcome that must
	// surface in the exit status.
	if err := c.diagnose(ctx, opts, sum); err != nil {
		return sum, err
	}
	return sum, nil
}

// gatherLinks returns the URL set per category, re-discovering only the
// categories whose stored snapshot is missing or stale.
func (c *Crawler) gatherLinks(ctx context.Context, opts Options) (map[string][]string, error) {
	links := make(map[string][]string, len(c.categories))

	for _, cat := range c.categories {
		urls, reused, err := c.categoryLinks(ctx, opts, cat)
		if err != nil {
			return nil, err
		}
		links[cat.Code] = urls
		c.log.Info("links ready",
			logger.String("category", cat.Code),
			logger.Int("count", len(urls)),
			logger.Bool("reused", reused))
	}
	return links, nil
}

func (c *Crawler) categoryLinks(ctx context.Context, opts Options, cat domain.Category) (urls []string, reused bool, err error) {
	if !opts.ForceRefresh {
		snap, snapErr := c.store.LatestSnapshot(ctx, cat.Code)
		if snapErr != nil {
			return nil, false, fmt.Errorf("check snapshot freshness: %w", snapErr)
		}
		if snap != nil && (opts.SkipRefresh || c.now().Sub(snap.CapturedAt) < c.cfg.LinkTTL) {
			return snap.URLs, true, nil
		}
	}

	bctx, err := c.pool.NewContext(discoveryWorker)
	if err != nil {
		return nil, false, fmt.Errorf("discovery context for %s: %w", cat.Code, err)
	}

	urls, err = c.collector.Collect(ctx, bctx, cat)
	if err != nil {
		return nil, false, fmt.Errorf("collect links for %s: %w", cat.Code, err)
	}
	c.met.PagesFetched.WithLabelValues(cat.Code).Add(float64(len(urls)))
	return urls, false, nil
}

func (c *Crawler) processCategory(ctx context.Context, opts Options, cat domain.Category, urls []string, sum *Summary) error {
	if err := c.snapshots.Record(ctx, cat.Code, urls); err != nil {
		return err
	}

	toScrape := urls
	if !opts.NoDiff {
		added, removed, err := c.snapshots.Diff(ctx, cat.Code, urls)
		if err != nil {
			return err
		}
		sum.NewListings += len(added)
		sum.SoldListings += len(removed)

		if len(removed) > 0 {
			marked, err := c.store.MarkInactive(ctx, removed)
			if err != nil {
				return fmt.Errorf("mark sold for %s: %w", cat.Code, err)
			}
			c.met.SoldMarked.WithLabelValues(cat.Code).Add(float64(marked))
			c.log.Info("marked sold listings",
				logger.String("category", cat.Code),
				logger.Int64("count", marked))
		}
		toScrape = added
	}

	processed, err := c.checkpoints.Load(ctx, cat.Code)
	if err != nil {
		return err
	}
	if len(processed) > 0 {
		var remaining []string
		for _, u := range toScrape {
			if !processed[u] {
				remaining = append(remaining, u)
			}
		}
		c.log.Info("checkpoint filtered urls",
			logger.String("category", cat.Code),
			logger.Int("skipped", len(toScrape)-len(remaining)))
		toScrape = remaining
	}

	if len(toScrape) == 0 {
		c.log.Info("nothing to scrape", logger.String("category", cat.Code))
		return nil
	}

	scraped, errored := c.scrapeDetails(ctx, cat, toScrape, processed)
	sum.Scraped += scraped
	sum.Errors += errored

	if err := c.checkpoints.Save(ctx, cat.Code, processed); err != nil {
		return err
	}
	c.log.Info("category complete",
		logger.String("category", cat.Code),
		logger.Int("scraped", scraped),
		logger.Int("errors", errored))
	return nil
}

// scrapeDetails runs the detail worker pool for one category. Each
// worker owns a pool slot so session recycling stays per-worker.
func (c *Crawler) scrapeDetails(ctx context.Context, cat domain.Category, urls []string, processed map[string]bool) (scraped, errored int) {
	var mu sync.Mutex

	jobs := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	workers := c.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for workerID := 0; workerID < workers; workerID++ {
		workerID := workerID
		g.Go(func() error {
			c.met.ActiveWorkers.Inc()
			defer c.met.ActiveWorkers.Dec()

			for url := range jobs {
				listing, err := c.scrapeOne(gctx, workerID, url, cat)

				mu.Lock()
				if err != nil {
					errored++
					c.met.ExtractFailures.WithLabelValues(cat.Code).Inc()
					if errors.Is(err, extract.ErrBlocked) {
						c.met.BlockedResponses.Inc()
					}
					c.log.Warn("detail extraction failed",
						logger.String("url", url),
						logger.Error(err))
				} else if upErr := c.store.UpsertListing(gctx, listing); upErr != nil {
					errored++
					c.log.Error("upsert failed",
						logger.String("url", url),
						logger.Error(upErr))
				} else {
					scraped++
					c.met.ListingsScraped.WithLabelValues(cat.Code).Inc()
					processed[url] = true
					if scraped%c.checkpointEvery() == 0 {
						if cpErr := c.checkpoints.Save(gctx, cat.Code, processed); cpErr != nil {
							c.log.Error("checkpoint save failed", logger.Error(cpErr))
						}
					}
				}
				done := scraped + errored
				mu.Unlock()

				if done%10 == 0 {
					c.log.Info("progress",
						logger.String("category", cat.Code),
						logger.Int("done", done),
						logger.Int("total", len(urls)))
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for _, url := range urls {
			select {
			case jobs <- url:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Error("worker pool aborted", logger.Error(err))
	}
	return scraped, errored
}

// scrapeOne opens a fresh context in the worker's session and extracts
// the listing with retry.
func (c *Crawler) scrapeOne(ctx context.Context, workerID int, url string, cat domain.Category) (*domain.Listing, error) {
	var listing *domain.Listing
	err := retry.Do(ctx, c.cfg.MaxRetries, c.cfg.RetryBaseDelay, func() error {
		bctx, err := c.pool.NewContext(workerID)
		if err != nil {
			return err
		}
		listing, err = c.extractor.Extract(ctx, bctx, url, cat)
		return err
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (c *Crawler) checkpointEvery() int {
	if c.cfg.CheckpointEvery <= 0 {
		return 10
	}
	return c.cfg.CheckpointEvery
}
