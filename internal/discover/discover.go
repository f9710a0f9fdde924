// Package discover walks a category's paginated result pages and
// collects the detail-page URLs found there.
package discover

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/estatewatch/crawler/internal/browser"
	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
	"github.com/estatewatch/crawler/internal/ratelimit"
)

const (
	maxConsecutiveFailures = 3
	maxConsecutiveEmpty    = 3

	pageDelayMin = 500 * time.Millisecond
	pageDelayMax = 1500 * time.Millisecond
)

// sleepRange is injected by tests.
var sleepRange = func(min, max time.Duration) {
	time.Sleep(min + time.Duration(rand.Float64()*float64(max-min)))
}

var (
	countPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*件が該当`),
		regexp.MustCompile(`(\d+)\s*件`),
		regexp.MustCompile(`(\d+)件`),
	}
	pageParamPattern = regexp.MustCompile(`page=(\d+)`)
	leadingDigits    = regexp.MustCompile(`(\d+)`)
)

// countSelectors are tried in order against the first result page before
// falling back to body-text patterns.
var countSelectors = []string{
	"#search-page .result-count",
	"span.result-count",
	".search-result .count",
}

// Opener loads pages. *browser.Context satisfies it.
type Opener interface {
	Open(ctx context.Context, url string) (*browser.Page, error)
}

// Config bounds a collection run.
type Config struct {
	// ItemsPerPage is the perPage query value; it also converts a
	// detected total count into a page count.
	ItemsPerPage int
	// MaxPages caps the walk when no total count can be detected.
	MaxPages int
	// Budget is the wall-clock limit for one category.
	Budget time.Duration
}

// Discoverer collects detail links category by category.
type Discoverer struct {
	cfg Config
	gov *ratelimit.Governor
	log logger.Interface
	now func() time.Time
}

func New(cfg Config, gov *ratelimit.Governor, log logger.Interface) *Discoverer {
	return &Discoverer{cfg: cfg, gov: gov, log: log, now: time.Now}
}

// Collect walks cat's result pages and returns the de-duplicated detail
// URLs. It stops on the detected last page, a missing next-page control,
// repeated failures or empty pages, the wall budget, or ctx cancellation.
func (d *Discoverer) Collect(ctx context.Context, bctx Opener, cat domain.Category) ([]string, error) {
	var (
		urls     []string
		seen     = make(map[string]bool)
		start    = d.now()
		maxPages = 0
		failures = 0
		empties  = 0
	)

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return urls, err
		}
		if d.now().Sub(start) > d.cfg.Budget {
			d.log.Warn("collection budget exhausted",
				logger.String("category", cat.Code),
				logger.Duration("budget", d.cfg.Budget))
			break
		}
		if maxPages > 0 && pageNum > maxPages {
			break
		}
		if maxPages == 0 && pageNum > d.cfg.MaxPages {
			d.log.Warn("page count undetected, safety limit reached",
				logger.String("category", cat.Code),
				logger.Int("limit", d.cfg.MaxPages))
			break
		}

		d.gov.Wait()

		pageURL := fmt.Sprintf("%s?perPage=%d&page=%d", cat.URL, d.cfg.ItemsPerPage, pageNum)
		page, err := bctx.Open(ctx, pageURL)
		if err != nil {
			failures++
			d.log.Warn("result page load failed",
				logger.String("url", pageURL),
				logger.Int("consecutive", failures),
				logger.Error(err))
			if failures >= maxConsecutiveFailures {
				break
			}
			continue
		}
		failures = 0

		if d.gov.ReportResponse(page.Text()) {
			d.log.Warn("blocking response on result page",
				logger.String("url", pageURL))
			continue
		}

		if pageNum == 1 {
			if total := detectTotal(page); total > 0 {
				maxPages = int(math.Ceil(float64(total) / float64(d.cfg.ItemsPerPage)))
				d.log.Info("detected result total",
					logger.String("category", cat.Code),
					logger.Int("total", total),
					logger.Int("pages", maxPages))
			} else if pages := paginationPages(page); pages > 0 {
				maxPages = pages
				d.log.Info("detected page count from pagination",
					logger.String("category", cat.Code),
					logger.Int("pages", maxPages))
			}
		}

		links := detailLinks(page)
		if len(links) == 0 {
			empties++
			d.log.Info("empty result page",
				logger.String("url", pageURL),
				logger.Int("consecutive", empties))
			if empties >= maxConsecutiveEmpty || !hasNextControl(page) {
				break
			}
			sleepRange(pageDelayMin, pageDelayMax)
			continue
		}
		empties = 0

		for _, link := range links {
			if !seen[link] {
				seen[link] = true
				urls = append(urls, link)
			}
		}

		if !hasNextControl(page) {
			break
		}
		sleepRange(pageDelayMin, pageDelayMax)
	}

	d.log.Info("collection complete",
		logger.String("category", cat.Code),
		logger.Int("urls", len(urls)),
		logger.Duration("elapsed", d.now().Sub(start)))
	return urls, nil
}

func detailLinks(page *browser.Page) []string {
	var links []string
	for _, selector := range []string{"a.button.detail-button", "a.detail-button"} {
		page.Find(selector).Each(func(_ int, a *goquery.Selection) {
			if href, ok := a.Attr("href"); ok && strings.TrimSpace(href) != "" {
				links = append(links, strings.TrimSpace(href))
			}
		})
		if len(links) > 0 {
			break
		}
	}
	return links
}

// detectTotal finds the result count on the first page: a dedicated
// count element, then count phrases in the body text. Counts of ten or
// fewer are discarded as false matches against unrelated numbers.
func detectTotal(page *browser.Page) int {
	for _, selector := range countSelectors {
		text := strings.TrimSpace(page.Find(selector).First().Text())
		if m := leadingDigits.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 10 {
				return n
			}
		}
	}

	body := page.Text()
	for _, re := range countPatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 10 {
				return n
			}
		}
	}

	return 0
}

// paginationPages is the last-resort page count: the highest page number
// reachable from pagination links, by text or href.
func paginationPages(page *browser.Page) int {
	maxPage := 0
	for _, selector := range []string{"ul.pagination li a", ".pagination a", "a[href*='page=']"} {
		page.Find(selector).Each(func(_ int, a *goquery.Selection) {
			if n, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil && n > maxPage {
				maxPage = n
			}
			if href, ok := a.Attr("href"); ok {
				if m := pageParamPattern.FindStringSubmatch(href); m != nil {
					if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
						maxPage = n
					}
				}
			}
		})
		if maxPage > 0 {
			break
		}
	}
	return maxPage
}

func hasNextControl(page *browser.Page) bool {
	return page.Find("li.pagination-next a").Length() > 0
}
