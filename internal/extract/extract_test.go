package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatewatch/crawler/internal/browser"
	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
	"github.com/estatewatch/crawler/internal/ratelimit"
)

const detailFixture = `
<html><body>
  <h1>那覇市首里の2LDKマンション</h1>
  <div class="bukken-price">8.5万円</div>
  <a class="btn-fav">お気に入り追加 12</a>
  <p>更新日: 2026/08/20</p>
  <p>公開期限: 2026年9月10日</p>
  <div class="company-info"><span class="company-name">沖縄ホーム株式会社</span></div>
  <table>
    <tr><th>所在地</th><td>那覇市首里当蔵町</td></tr>
    <tr><th>間取り</th><td>2LDK</td></tr>
    <tr><th>所在地</th><td>重複した値</td></tr>
    <tr><th>備考</th><td></td></tr>
  </table>
  <div class="bx-viewport">
    <img src="/photos/main_01.jpg">
    <img src="/photos/thumb_01.jpg">
    <img src="/photos/spinner.gif">
    <img src="/photos/room.jpg" width="800" height="600">
    <img src="/photos/badge.jpg" width="64" height="64">
    <img src="/photos/floorplan.jpg">
    <img src="/photos/wide.jpg" width="800">
    <img src="/photos/tower_l.jpg">
    <img src="/photos/gallery_s.jpg" width="800" height="600">
    <img src="/photos/main_01.jpg">
  </div>
</body></html>`

type fakeOpener struct {
	html string
	err  error
}

func (f *fakeOpener) Open(_ context.Context, url string) (*browser.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return browser.ParsePage(url, f.html)
}

func liveExtractor(t *testing.T) *Extractor {
	t.Helper()
	orig := sleepRange
	sleepRange = func(_, _ time.Duration) {}
	t.Cleanup(func() { sleepRange = orig })

	log := logger.NewNop()
	return New(ratelimit.New(ratelimit.Config{MaxRPS: 1000, BurstSize: 1 << 20}, log), log)
}

func testExtractor(t *testing.T) *Extractor {
	t.Helper()
	e := New(nil, logger.NewNop())
	e.now = func() time.Time {
		return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func testCategory() domain.Category {
	return domain.Category{Code: "mansion", Type: "賃貸", Genre: "マンション"}
}

func TestFromPageExtractsCoreFields(t *testing.T) {
	page, err := browser.ParsePage("https://www.e-uchina.net/bukken/1", detailFixture)
	require.NoError(t, err)

	l := testExtractor(t).FromPage(page, "https://www.e-uchina.net/bukken/1", testCategory())

	assert.Equal(t, "https://www.e-uchina.net/bukken/1", l.URL)
	assert.Equal(t, "mansion", l.Category)
	assert.Equal(t, "賃貸", l.CategoryType)
	assert.Equal(t, "那覇市首里の2LDKマンション", l.Title)
	assert.Equal(t, "8.5万円", l.Price)
	assert.Equal(t, 12, l.Favorites)
	assert.Equal(t, "2026/08/20", l.UpdateDate)
	assert.Equal(t, "2026年9月10日", l.ExpiryDate)
	assert.Equal(t, "沖縄ホーム株式会社", l.CompanyName)
	assert.True(t, l.IsActive)
}

func TestFromPageTableHarvestFirstValueWins(t *testing.T) {
	page, err := browser.ParsePage("https://example.test/x", detailFixture)
	require.NoError(t, err)

	l := testExtractor(t).FromPage(page, "https://example.test/x", testCategory())

	assert.Equal(t, "那覇市首里当蔵町", l.Fields["所在地"])
	assert.Equal(t, "2LDK", l.Fields["間取り"])
	// Empty values never enter the map.
	assert.NotContains(t, l.Fields, "備考")
}

func TestFromPageImageHeuristics(t *testing.T) {
	page, err := browser.ParsePage("https://example.test/x", detailFixture)
	require.NoError(t, err)

	l := testExtractor(t).FromPage(page, "https://example.test/x", testCategory())

	assert.Equal(t, domain.StringSlice{
		"/photos/main_01.jpg",   // name hint, kept once despite duplicate
		"/photos/room.jpg",      // large declared dimensions
		"/photos/floorplan.jpg", // no hints, no dimensions
		"/photos/wide.jpg",      // width only, size filter not applicable
		"/photos/tower_l.jpg",   // _l. name hint
	}, l.Images)
}

func TestExtractReturnsListing(t *testing.T) {
	e := liveExtractor(t)
	f := &fakeOpener{html: detailFixture}

	l, err := e.Extract(context.Background(), f, "https://www.e-uchina.net/bukken/1", testCategory())

	require.NoError(t, err)
	assert.Equal(t, "那覇市首里の2LDKマンション", l.Title)
	assert.Equal(t, "mansion", l.Category)
}

func TestExtractRejectsBlockingResponse(t *testing.T) {
	e := liveExtractor(t)
	f := &fakeOpener{html: `<html><body><p>Access Denied: too many requests</p></body></html>`}

	l, err := e.Extract(context.Background(), f, "https://www.e-uchina.net/bukken/1", testCategory())

	require.ErrorIs(t, err, ErrBlocked)
	assert.Nil(t, l)
}

func TestExtractPropagatesLoadFailure(t *testing.T) {
	e := liveExtractor(t)
	loadErr := errors.New("timeout")
	f := &fakeOpener{err: loadErr}

	l, err := e.Extract(context.Background(), f, "https://www.e-uchina.net/bukken/1", testCategory())

	require.ErrorIs(t, err, loadErr)
	assert.Nil(t, l)
}

func TestFromPageToleratesSparseMarkup(t *testing.T) {
	page, err := browser.ParsePage("https://example.test/x", `<html><body><h1>タイトルのみ</h1></body></html>`)
	require.NoError(t, err)

	l := testExtractor(t).FromPage(page, "https://example.test/x", testCategory())

	assert.Equal(t, "タイトルのみ", l.Title)
	assert.Empty(t, l.Price)
	assert.Zero(t, l.Favorites)
	assert.Empty(t, l.Images)
	assert.Empty(t, l.Fields)
}
