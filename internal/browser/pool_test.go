package browser

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatewatch/crawler/internal/identity"
	"github.com/estatewatch/crawler/internal/logger"
)

func newTestPool(t *testing.T, maxUses int, onRecycle func()) *Pool {
	t.Helper()
	orig := sleepRange
	sleepRange = func(_, _ time.Duration) {}
	t.Cleanup(func() { sleepRange = orig })

	return NewPool(
		Config{MaxUses: maxUses, PageTimeout: time.Second},
		identity.NewFactory(1),
		logger.NewNop(),
		onRecycle,
	)
}

func TestSessionIsStableWithinUseLimit(t *testing.T) {
	p := newTestPool(t, 3, nil)

	first := p.Session(0)
	for i := 0; i < 2; i++ {
		assert.Same(t, first, p.Session(0))
	}
}

func TestSessionIsRecycledAfterUseLimit(t *testing.T) {
	recycles := 0
	p := newTestPool(t, 3, func() { recycles++ })

	first := p.Session(0)
	p.Session(0)
	p.Session(0)

	// Fourth acquisition crosses the limit and replaces the session.
	replaced := p.Session(0)
	assert.NotSame(t, first, replaced)
	assert.Equal(t, 1, recycles)

	// The replacement starts a fresh use count.
	assert.Same(t, replaced, p.Session(0))
	assert.Same(t, replaced, p.Session(0))
	assert.NotSame(t, replaced, p.Session(0))
	assert.Equal(t, 2, recycles)
}

func TestWorkersOwnSeparateSessions(t *testing.T) {
	p := newTestPool(t, 50, nil)

	a := p.Session(1)
	b := p.Session(2)
	assert.NotSame(t, a, b)

	// Heavy use by one worker never touches another's session.
	for i := 0; i < 60; i++ {
		p.Session(1)
	}
	assert.Same(t, b, p.Session(2))
}

func TestReleaseAllIsIdempotent(t *testing.T) {
	p := newTestPool(t, 50, nil)
	p.Session(0)
	p.Session(1)

	p.ReleaseAll()
	assert.NotPanics(t, p.ReleaseAll)
}

func TestWorkersCreateContextsConcurrently(t *testing.T) {
	p := newTestPool(t, 50, nil)

	var wg sync.WaitGroup
	for workerID := 0; workerID < 4; workerID++ {
		workerID := workerID
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				bctx, err := p.Session(workerID).NewContext()
				assert.NoError(t, err)
				assert.NotNil(t, bctx)
			}
		}()
	}
	wg.Wait()
}

func TestContextsCarryDistinctIdentities(t *testing.T) {
	p := newTestPool(t, 50, nil)
	s := p.Session(0)

	a, err := s.NewContext()
	require.NoError(t, err)
	b, err := s.NewContext()
	require.NoError(t, err)

	assert.NotEqual(t, a.Identity().MaskScript, b.Identity().MaskScript)
}
