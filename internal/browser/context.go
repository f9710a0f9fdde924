// Package browser manages per-worker browsing sessions and isolated
// browsing contexts. Each worker owns exactly one session; a session hands
// out single-use contexts carrying a fresh identity, its own cookie jar,
// and its own collector, so no cookies or state leak between contexts.
package browser

import (
	"bytes"
	"context"
	"errors"
	"net/http/cookiejar"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/estatewatch/crawler/internal/identity"
)

// ErrNoResponse is returned when a navigation completes without a usable
// response body.
var ErrNoResponse = errors.New("browser: no response received")

// Page is one loaded document.
type Page struct {
	// URL is the final URL after redirects.
	URL string
	// StatusCode is the HTTP status of the load.
	StatusCode int

	doc  *goquery.Document
	text string
}

// Find runs a CSS selector query against the page DOM.
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Text returns the page's visible text with scripts and styling removed
// and whitespace collapsed.
func (p *Page) Text() string {
	return p.text
}

// Document exposes the underlying goquery document.
func (p *Page) Document() *goquery.Document {
	return p.doc
}

// Context is one isolated browsing context. It is owned by a single
// worker and must not be shared across goroutines.
type Context struct {
	id        *identity.Identity
	collector *colly.Collector

	page    *Page
	loadErr error
}

// newContext wires a collector to an identity: identity headers on every
// request, a private cookie jar, and the session's shared transport.
func (s *Session) newContext(id *identity.Identity) (*Context, error) {
	c := colly.NewCollector(
		colly.UserAgent(id.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.timeout)
	c.WithTransport(s.transport)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c.SetCookieJar(jar)

	bc := &Context{id: id, collector: c}

	headers := id.Headers()
	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		page, perr := parsePage(r)
		if perr != nil {
			bc.loadErr = perr
			return
		}
		bc.page = page
	})
	c.OnError(func(_ *colly.Response, cerr error) {
		bc.loadErr = cerr
	})

	return bc, nil
}

// Identity returns the context's identity. Script-capable engines apply
// its MaskScript to every new document; the HTTP engine can only present
// its headers.
func (c *Context) Identity() *identity.Identity {
	return c.id
}

// Open navigates to rawURL and returns the loaded page. The per-page
// timeout configured on the session bounds the load.
func (c *Context) Open(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.page = nil
	c.loadErr = nil

	if err := c.collector.Visit(rawURL); err != nil {
		return nil, err
	}
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	if c.page == nil {
		return nil, ErrNoResponse
	}
	return c.page, nil
}

func parsePage(r *colly.Response) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}

	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")

	return &Page{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		doc:        doc,
		text:       text,
	}, nil
}

// ParsePage builds a Page from raw HTML. Used by extraction tests that
// run against static fixtures instead of live navigations.
func ParsePage(rawURL, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	doc.Find("script, style, noscript").Remove()
	return &Page{
		URL:  rawURL,
		doc:  doc,
		text: strings.Join(strings.Fields(doc.Text()), " "),
	}, nil
}
