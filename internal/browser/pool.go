package browser

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/estatewatch/crawler/internal/identity"
	"github.com/estatewatch/crawler/internal/logger"
)

const (
	contextDelayMin = 100 * time.Millisecond
	contextDelayMax = 500 * time.Millisecond
)

// sleepRange is injected by tests to skip the anti-correlation delay.
var sleepRange = func(min, max time.Duration) {
	time.Sleep(min + time.Duration(rand.Float64()*float64(max-min)))
}

// Config holds session lifecycle settings.
type Config struct {
	// MaxUses is the number of acquisitions a session serves before it
	// is torn down and replaced.
	MaxUses int
	// PageTimeout bounds a single page load.
	PageTimeout time.Duration
}

// Session is one worker's browsing engine instance. Contexts created
// from it share its transport but nothing else.
type Session struct {
	transport *http.Transport
	factory   *identity.Factory
	timeout   time.Duration
}

// NewContext creates a fresh isolated context with its own identity and
// cookie jar. A short randomized delay precedes creation so context
// churn across workers does not form a detectable cadence.
func (s *Session) NewContext() (*Context, error) {
	sleepRange(contextDelayMin, contextDelayMax)
	return s.newContext(s.factory.New())
}

func (s *Session) close() {
	s.transport.CloseIdleConnections()
}

type slot struct {
	session *Session
	uses    int
}

// Pool hands out sessions keyed by worker ID. Each worker always
// receives its own session; after MaxUses acquisitions the session is
// replaced with a fresh one, discarding all accumulated state.
type Pool struct {
	cfg     Config
	factory *identity.Factory
	log     logger.Interface

	mu      sync.Mutex
	slots   map[int]*slot
	recycle func()
}

// NewPool creates a session pool. onRecycle, if non-nil, is invoked each
// time a session is torn down for reaching its use limit.
func NewPool(cfg Config, factory *identity.Factory, log logger.Interface, onRecycle func()) *Pool {
	if cfg.MaxUses <= 0 {
		cfg.MaxUses = 50
	}
	return &Pool{
		cfg:     cfg,
		factory: factory,
		log:     log,
		slots:   make(map[int]*slot),
		recycle: onRecycle,
	}
}

// Session returns the session owned by workerID, creating or recycling
// it as needed. Each call counts as one use.
func (p *Pool) Session(workerID int) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	sl, ok := p.slots[workerID]
	if !ok {
		sl = &slot{session: p.newSession()}
		p.slots[workerID] = sl
	}

	sl.uses++
	if sl.uses > p.cfg.MaxUses {
		p.log.Info("recycling session",
			logger.Int("worker", workerID),
			logger.Int("uses", sl.uses-1))
		sl.session.close()
		sl.session = p.newSession()
		sl.uses = 1
		if p.recycle != nil {
			p.recycle()
		}
	}

	return sl.session
}

func (p *Pool) newSession() *Session {
	return &Session{
		transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		factory: p.factory,
		timeout: p.cfg.PageTimeout,
	}
}

// ReleaseAll tears down every session. Safe to call more than once.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sl := range p.slots {
		sl.session.close()
	}
	p.slots = make(map[int]*slot)
}
