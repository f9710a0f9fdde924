// Package identity produces randomized browsing identities. An identity is
// generated fresh for every browsing context, never persisted, and never
// reused verbatim.
package identity

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// Base coordinate the simulated geolocation jitters around (Naha, Okinawa).
const (
	baseLatitude  = 26.2124
	baseLongitude = 127.6809
	geoJitter     = 0.1
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

var referers = []string{
	"https://www.google.com/",
	"https://www.google.co.jp/",
	"https://www.yahoo.co.jp/",
	"https://search.yahoo.co.jp/",
	"https://www.bing.com/",
	"https://www.facebook.com/",
	"https://twitter.com/",
	"https://www.linkedin.com/",
	"https://www.reddit.com/",
	"https://www.instagram.com/",
}

var timezones = []string{
	"Asia/Tokyo",
	"Asia/Seoul",
	"Asia/Shanghai",
	"Asia/Hong_Kong",
	"Asia/Singapore",
}

var viewports = []Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
}

// Viewport is a browser window size.
type Viewport struct {
	Width  int
	Height int
}

// Geolocation is a simulated device position.
type Geolocation struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Identity is one randomized bundle of browser-observable characteristics.
// It lives only in memory for the lifetime of a single browsing context.
type Identity struct {
	UserAgent   string
	Viewport    Viewport
	Locale      string
	Timezone    string
	Referer     string
	Geolocation Geolocation
	// MaskScript is the fingerprint-masking payload applied to every new
	// browsing context by script-capable engines.
	MaskScript string
}

// Headers returns the HTTP request headers this identity presents.
func (id *Identity) Headers() map[string]string {
	return map[string]string{
		"Referer":                   id.Referer,
		"Accept-Language":           id.acceptLanguage(),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Encoding":           "gzip, deflate, br",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
	}
}

// acceptLanguage builds the language preference list from the identity's
// locale, with English fallbacks.
func (id *Identity) acceptLanguage() string {
	lang, _, _ := strings.Cut(id.Locale, "-")
	return fmt.Sprintf("%s,%s;q=0.9,en-US;q=0.8,en;q=0.7", id.Locale, lang)
}

// Factory generates identities. One factory backs every worker's session,
// so the rand source is guarded for concurrent use.
type Factory struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFactory creates a Factory seeded from the given source, or from
// global randomness when seed is zero.
func NewFactory(seed int64) *Factory {
	if seed == 0 {
		return &Factory{rng: rand.New(rand.NewSource(rand.Int63()))}
	}
	return &Factory{rng: rand.New(rand.NewSource(seed))}
}

// New returns a fresh identity. Every call randomizes the user agent,
// viewport, timezone, referer, and geolocation. Safe for concurrent use.
func (f *Factory) New() *Identity {
	f.mu.Lock()
	defer f.mu.Unlock()

	return &Identity{
		UserAgent: userAgents[f.rng.Intn(len(userAgents))],
		Viewport:  viewports[f.rng.Intn(len(viewports))],
		Locale:    "ja-JP",
		Timezone:  timezones[f.rng.Intn(len(timezones))],
		Referer:   referers[f.rng.Intn(len(referers))],
		Geolocation: Geolocation{
			Latitude:  baseLatitude + (f.rng.Float64()*2-1)*geoJitter,
			Longitude: baseLongitude + (f.rng.Float64()*2-1)*geoJitter,
			Accuracy:  100,
		},
		MaskScript: f.maskScript(),
	}
}

// maskScript builds the anti-fingerprinting init script. The canvas noise
// seed is randomized per identity so perturbation stays deterministic
// within a context but differs across contexts.
func (f *Factory) maskScript() string {
	return fmt.Sprintf(maskScriptTemplate, f.rng.Intn(1<<16))
}
