// Package export writes the active listings to per-category CSV files
// for spreadsheet use.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
	"github.com/estatewatch/crawler/internal/storage"
)

// utf8BOM makes Excel open the files as UTF-8; without it Japanese
// column values render as mojibake.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// fixedColumns lead every file; harvested table fields follow as
// dynamic columns in sorted order.
var fixedColumns = []string{
	"title", "price", "url", "favorites",
	"update_date", "expiry_date", "images", "company_name",
}

const exportBatch = 1000

// Exporter writes CSV files from the store.
type Exporter struct {
	store      storage.Store
	categories []domain.Category
	log        logger.Interface
	now        func() time.Time
}

func New(store storage.Store, categories []domain.Category, log logger.Interface) *Exporter {
	return &Exporter{store: store, categories: categories, log: log, now: time.Now}
}

// Export writes one CSV per category that has active listings into dir.
// Filenames follow 種別_ジャンル_YYYY_MM_DD.csv. Returns the written
// file paths.
func (e *Exporter) Export(ctx context.Context, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	day := e.now().Format("2006_01_02")
	var files []string

	for _, cat := range e.categories {
		listings, err := e.fetchAll(ctx, cat.Code)
		if err != nil {
			return files, err
		}
		if len(listings) == 0 {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.csv", cat.Type, cat.Genre, day))
		if err := writeCSV(path, listings); err != nil {
			return files, fmt.Errorf("export %s: %w", cat.Code, err)
		}
		e.log.Info("exported category",
			logger.String("category", cat.Code),
			logger.String("file", path),
			logger.Int("rows", len(listings)))
		files = append(files, path)
	}
	return files, nil
}

func (e *Exporter) fetchAll(ctx context.Context, category string) ([]domain.Listing, error) {
	var all []domain.Listing
	for offset := 0; ; offset += exportBatch {
		page, err := e.store.Listings(ctx, storage.ListingFilter{
			Category:   category,
			ActiveOnly: true,
			Limit:      exportBatch,
			Offset:     offset,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch listings for %s: %w", category, err)
		}
		all = append(all, page...)
		if len(page) < exportBatch {
			return all, nil
		}
	}
}

func writeCSV(path string, listings []domain.Listing) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return err
	}

	w := csv.NewWriter(f)
	header := append(append([]string(nil), fixedColumns...), dynamicColumns(listings)...)
	if err := w.Write(header); err != nil {
		return err
	}

	for _, l := range listings {
		row := make([]string, 0, len(header))
		row = append(row,
			clean(l.Title),
			clean(l.Price),
			l.URL,
			strconv.Itoa(l.Favorites),
			l.UpdateDate,
			l.ExpiryDate,
			strings.Join(l.Images, " | "),
			clean(l.CompanyName),
		)
		for _, col := range header[len(fixedColumns):] {
			row = append(row, clean(l.Fields[col]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// dynamicColumns is the union of harvested field labels, sorted for a
// stable layout.
func dynamicColumns(listings []domain.Listing) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, l := range listings {
		for key := range l.Fields {
			if !seen[key] {
				seen[key] = true
				cols = append(cols, key)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// clean strips the Unicode line and paragraph separators that break
// spreadsheet CSV parsers, and flattens embedded newlines.
var clean = strings.NewReplacer(
	"\u2028", "",
	"\u2029", "",
	"\r", "",
	"\n", " ",
).Replace
