// Package ratelimit implements the process-wide request governor shared by
// every crawl worker. Its window state and blocking counter are the only
// cross-worker mutable state in the pipeline; both live behind one mutex.
package ratelimit

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/estatewatch/crawler/internal/logger"
)

// Phrases that indicate the source is refusing automated traffic. Matched
// case-insensitively against page text.
var blockingIndicators = []string{
	"access denied",
	"blocked",
	"captcha",
	"too many requests",
	"rate limit",
	"403 forbidden",
	"429",
}

const (
	// window is the span of the sliding request-rate window.
	window = time.Second

	// blockThreshold is how many consecutive blocked responses trigger a
	// cooldown.
	blockThreshold = 3

	cooldownMin = 5 * time.Second
	cooldownMax = 10 * time.Second

	burstSleepMin = 500 * time.Millisecond
	burstSleepMax = time.Second
)

// Config holds governor settings.
type Config struct {
	// MaxRPS is the ceiling on requests inside any 1-second window.
	MaxRPS int
	// BurstSize and BurstWindow add a randomized pause when BurstSize
	// requests land inside BurstWindow, so traffic never turns perfectly
	// periodic.
	BurstSize   int
	BurstWindow time.Duration
}

// Governor paces all outbound requests. Wait blocks the calling worker
// until one more request is safe to issue; ReportResponse feeds blocking
// signals back from page content.
type Governor struct {
	cfg    Config
	logger logger.Interface

	mu       sync.Mutex
	requests []time.Time
	blocks   int

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)
	randf func() float64
}

// New creates a Governor. The governor has no persisted state; it resets
// on process restart.
func New(cfg Config, log logger.Interface) *Governor {
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = 2 * time.Second
	}
	return &Governor{
		cfg:    cfg,
		logger: log,
		now:    time.Now,
		sleep:  time.Sleep,
		randf:  rand.Float64,
	}
}

// Wait blocks until issuing one request keeps the process under the
// configured rate. The sleep happens while holding the governor's lock,
// which intentionally serializes all workers behind the shared budget.
func (g *Governor) Wait() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	if len(g.requests) >= g.cfg.MaxRPS {
		remainder := window - now.Sub(g.requests[0])
		if remainder > 0 {
			g.sleep(remainder)
			now = g.now()
			g.prune(now)
		}
	}

	if g.cfg.BurstSize > 0 {
		recent := 0
		for _, t := range g.requests {
			if now.Sub(t) < g.cfg.BurstWindow {
				recent++
			}
		}
		if recent >= g.cfg.BurstSize {
			g.sleep(burstSleepMin + time.Duration(g.randf()*float64(burstSleepMax-burstSleepMin)))
		}
	}

	g.requests = append(g.requests, g.now())
}

// prune drops window entries a full window old. Caller holds the lock.
func (g *Governor) prune(now time.Time) {
	cut := 0
	for cut < len(g.requests) && now.Sub(g.requests[cut]) >= window {
		cut++
	}
	if cut > 0 {
		g.requests = g.requests[cut:]
	}
}

// ReportResponse scans page text for blocking indicators and returns true
// when one is found. Three consecutive blocked reports trigger a cooldown
// sleep; each clean report decays the counter by one, floored at zero.
func (g *Governor) ReportResponse(text string) bool {
	lower := strings.ToLower(text)
	blocked := false
	for _, indicator := range blockingIndicators {
		if strings.Contains(lower, indicator) {
			blocked = true
			break
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !blocked {
		if g.blocks > 0 {
			g.blocks--
		}
		return false
	}

	g.blocks++
	if g.blocks >= blockThreshold {
		cooldown := cooldownMin + time.Duration(g.randf()*float64(cooldownMax-cooldownMin))
		g.logger.Warn("blocking detected, cooling down",
			logger.Int("consecutive", g.blocks),
			logger.Duration("cooldown", cooldown),
		)
		g.sleep(cooldown)
	}
	return true
}
