// Package extract pulls structured listing records out of detail pages.
// Every field uses a cascade of strategies so that partial markup still
// yields a usable record; only a failed page load or a blocking response
// aborts the record.
package extract

import (
	"context"
	"errors"
	"fmt"
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

// ErrBlocked signals that the site answered with a blocking page.
var ErrBlocked = errors.New("extract: blocking response detected")

const (
	preDelayMin = 300 * time.Millisecond
	preDelayMax = 1200 * time.Millisecond
)

// sleepRange is injected by tests.
var sleepRange = func(min, max time.Duration) {
	time.Sleep(min + time.Duration(rand.Float64()*float64(max-min)))
}

var (
	updatePattern = regexp.MustCompile(`更新日[:：]?\s*(\d{4}[/年]\d{1,2}[/月]\d{1,2}日?)`)
	expiryPattern = regexp.MustCompile(`公開期限[:：]?\s*(\d{4}[/年]\d{1,2}[/月]\d{1,2}日?)`)
	digitsPattern = regexp.MustCompile(`\d+`)
)

// Opener loads pages. *browser.Context satisfies it.
type Opener interface {
	Open(ctx context.Context, url string) (*browser.Page, error)
}

// Extractor turns detail pages into listings while honoring the shared
// request pacing.
type Extractor struct {
	gov *ratelimit.Governor
	log logger.Interface
	now func() time.Time
}

func New(gov *ratelimit.Governor, log logger.Interface) *Extractor {
	return &Extractor{gov: gov, log: log, now: time.Now}
}

// Extract loads url in the given browsing context and returns the
// listing found there. A non-nil error means the record must be skipped,
// never partially stored.
func (e *Extractor) Extract(ctx context.Context, bctx Opener, url string, cat domain.Category) (*domain.Listing, error) {
	e.gov.Wait()
	sleepRange(preDelayMin, preDelayMax)

	page, err := bctx.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	if e.gov.ReportResponse(page.Text()) {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, url)
	}

	listing := e.FromPage(page, url, cat)
	e.log.Debug("extracted listing",
		logger.String("url", url),
		logger.String("title", listing.Title),
		logger.Int("fields", len(listing.Fields)))
	return listing, nil
}

// FromPage parses an already loaded page. Split out so tests can run
// against static documents.
func (e *Extractor) FromPage(page *browser.Page, url string, cat domain.Category) *domain.Listing {
	now := e.now()
	text := page.Text()

	listing := &domain.Listing{
		URL:          url,
		Category:     cat.Code,
		CategoryType: cat.Type,
		Genre:        cat.Genre,
		Title:        firstText(page, "h1"),
		Price:        firstText(page, ".bukken-price"),
		Favorites:    favorites(page),
		UpdateDate:   firstMatch(updatePattern, text),
		ExpiryDate:   firstMatch(expiryPattern, text),
		CompanyName:  firstText(page, ".company-info .company-name"),
		Images:       images(page),
		Fields:       tableFields(page),
		IsActive:     true,
		FirstSeen:    now.Format(domain.DayFormat),
		LastSeen:     now.Format(domain.DayFormat),
		ScrapedAt:    now,
	}
	return listing
}

func firstText(page *browser.Page, selector string) string {
	return strings.TrimSpace(page.Find(selector).First().Text())
}

func firstMatch(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// favorites reads the favorite counter from the fav button, dropping the
// button label around it.
func favorites(page *browser.Page) int {
	raw := strings.TrimSpace(page.Find("a.btn-fav").First().Text())
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "お気に入り追加", ""))
	if m := digitsPattern.FindString(raw); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	return 0
}

// tableFields harvests every th/td pair on the page. The first value
// seen for a label wins, so summary tables take precedence over the
// duplicated rows further down.
func tableFields(page *browser.Page) domain.JSONBMap {
	fields := make(domain.JSONBMap)
	page.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		key := strings.TrimSpace(row.Find("th").First().Text())
		value := strings.TrimSpace(row.Find("td").First().Text())
		if key == "" || value == "" {
			return
		}
		if _, ok := fields[key]; !ok {
			fields[key] = value
		}
	})
	return fields
}

// images collects photo URLs from the gallery viewport, filtering out
// UI chrome and thumbnails.
func images(page *browser.Page) domain.StringSlice {
	var urls domain.StringSlice
	seen := make(map[string]bool)

	page.Find(".bx-viewport img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok {
			return
		}
		src = strings.TrimSpace(src)
		if src == "" || seen[src] {
			return
		}
		if keepImage(src, img) {
			seen[src] = true
			urls = append(urls, src)
		}
	})
	return urls
}

func keepImage(src string, img *goquery.Selection) bool {
	lower := strings.ToLower(src)
	if strings.HasSuffix(lower, ".gif") {
		return false
	}
	for _, hint := range []string{"large", "detail", "main", "_l.", "_big."} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	for _, hint := range []string{"thumb", "small", "icon", "logo", "_s.", "_m."} {
		if strings.Contains(lower, hint) {
			return false
		}
	}

	// No name hints; the size filter applies only when both dimensions
	// are declared, otherwise the image is kept.
	w, wok := attrInt(img, "width")
	h, hok := attrInt(img, "height")
	if !wok || !hok {
		return true
	}
	return w >= 400 && h >= 300
}

func attrInt(img *goquery.Selection, name string) (int, bool) {
	raw, ok := img.Attr(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}
