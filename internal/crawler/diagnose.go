package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/estatewatch/crawler/internal/logger"
)

const (
	// diagnosisWindow brackets the run's writes on either side of now;
	// the slack absorbs clock skew between the crawler and the database.
	diagnosisWindow = 30 * time.Minute

	// minSaveRate is the written/scraped ratio below which the run is
	// considered to have silently lost data.
	minSaveRate = 0.10
)

// diagnose verifies that the listings this run scraped actually reached
// storage. When the save rate collapses it launches one corrective
// re-run (full scrape, no diff, reusing stored links), bounded by the
// retry counter carried through Options. Only a failed corrective
// re-run returns an error; an unavailable written count merely skips
// the check.
func (c *Crawler) diagnose(ctx context.Context, opts Options, sum *Summary) error {
	if opts.RetryCount >= c.maxAutoRetries() {
		c.log.Warn("max corrective re-runs reached, skipping diagnosis",
			logger.Int("retry_count", opts.RetryCount))
		return nil
	}
	if sum.Scraped == 0 {
		c.log.Info("nothing scraped, skipping diagnosis")
		return nil
	}

	now := c.now()
	written, err := c.store.WrittenBetween(ctx,
		now.Add(-diagnosisWindow),
		now.Add(diagnosisWindow))
	if err != nil {
		c.log.Warn("written count unavailable, skipping diagnosis",
			logger.Error(err))
		return nil
	}

	if written > sum.Scraped {
		c.log.Warn("written count exceeds scraped count, window may overlap another run",
			logger.Int("written", written),
			logger.Int("scraped", sum.Scraped))
	}

	rate := float64(written) / float64(sum.Scraped)
	c.log.Info("diagnosis",
		logger.Int("scraped", sum.Scraped),
		logger.Int("written", written),
		logger.Float64("save_rate", rate))

	if rate >= minSaveRate {
		return nil
	}

	c.log.Error("save rate below threshold, launching corrective re-run",
		logger.Float64("save_rate", rate),
		logger.Int("attempt", opts.RetryCount+1),
		logger.Int("max", c.maxAutoRetries()))

	corrective, err := c.Run(ctx, Options{
		SkipRefresh: true,
		NoDiff:      true,
		RetryCount:  opts.RetryCount + 1,
	})
	if corrective != nil {
		sum.CorrectiveRuns += 1 + corrective.CorrectiveRuns
		sum.Scraped += corrective.Scraped
		sum.Errors += corrective.Errors
	}
	if err != nil {
		return fmt.Errorf("corrective re-run: %w", err)
	}
	return nil
}

func (c *Crawler) maxAutoRetries() int {
	if c.cfg.MaxAutoRetries <= 0 {
		return 2
	}
	return c.cfg.MaxAutoRetries
}
