package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docchat/internal/logging"
	"docchat/internal/model"
	"docchat/internal/session"
)

type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []model.DocumentStatus
	errs     []error
	calls    int
	fetched  chan struct{}
}

func newScriptedFetcher(statuses ...model.DocumentStatus) *scriptedFetcher {
	return &scriptedFetcher{statuses: statuses, fetched: make(chan struct{}, 16)}
}

func (f *scriptedFetcher) GetDocument(ctx context.Context, token, id string) (model.Document, error) {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		f.fetched <- struct{}{}
	}()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return model.Document{}, f.errs[i]
	}
	status := f.statuses[len(f.statuses)-1]
	if i < len(f.statuses) {
		status = f.statuses[i]
	}
	return model.Document{ID: id, Status: status}, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) fn(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() { close(m.stopped) }
}

// tick delivers one tick and reports whether the loop accepted it.
func (m *manualTicker) tick() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

type outcomeMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeMetrics) PollTick(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func waitFetch(t *testing.T, f *scriptedFetcher) {
	t.Helper()
	select {
	case <-f.fetched:
	case <-time.After(time.Second):
		t.Fatal("fetch did not happen")
	}
}

func TestStopsAfterTerminalStatus(t *testing.T) {
	fetcher := newScriptedFetcher(model.StatusIndexing, model.StatusIndexing, model.StatusIndexing, model.StatusReady)
	ticker := newManualTicker()
	metrics := &outcomeMetrics{}

	var updates []model.DocumentStatus
	p := New(fetcher, session.StaticSource("tok"), func(d model.Document) {
		updates = append(updates, d.Status)
	}, WithTicker(ticker.fn), WithLogger(logging.Discard()), WithMetrics(metrics))
	p.Start(context.Background(), model.Document{ID: "doc-1", Status: model.StatusIndexing})

	for i := 0; i < 4; i++ {
		require.True(t, ticker.tick(), "tick %d", i+1)
		waitFetch(t, fetcher)
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on ready")
	}
	require.False(t, ticker.tick(), "no 5th tick is consumed")
	require.Equal(t, 4, fetcher.Calls())
	require.Equal(t, []model.DocumentStatus{"indexing", "indexing", "indexing", "ready"}, updates)
	require.Equal(t, []string{"updated", "updated", "updated", "terminal"}, metrics.outcomes)
	<-ticker.stopped
}

func TestStopHaltsPolling(t *testing.T) {
	fetcher := newScriptedFetcher(model.StatusIndexing)
	ticker := newManualTicker()

	p := New(fetcher, session.StaticSource("tok"), nil, WithTicker(ticker.fn), WithLogger(logging.Discard()))
	p.Start(context.Background(), model.Document{ID: "doc-1", Status: model.StatusUploaded})

	require.True(t, ticker.tick())
	waitFetch(t, fetcher)
	require.True(t, ticker.tick())
	waitFetch(t, fetcher)

	p.Stop()
	require.False(t, ticker.tick())
	require.Equal(t, 2, fetcher.Calls())
	p.Stop()
}

func TestTerminalDocumentIsNotPolled(t *testing.T) {
	fetcher := newScriptedFetcher(model.StatusReady)
	ticker := newManualTicker()

	p := New(fetcher, session.StaticSource("tok"), nil, WithTicker(ticker.fn))
	p.Start(context.Background(), model.Document{ID: "doc-1", Status: model.StatusFailed})

	<-p.Done()
	require.False(t, ticker.tick())
	require.Equal(t, 0, fetcher.Calls())
}

func TestMissingSessionSkipsTickWithoutStopping(t *testing.T) {
	fetcher := newScriptedFetcher(model.StatusReady)
	ticker := newManualTicker()
	metrics := &outcomeMetrics{}

	var mu sync.Mutex
	token := ""
	asked := make(chan struct{}, 8)
	tokens := session.TokenSourceFunc(func(ctx context.Context) (string, error) {
		mu.Lock()
		defer func() {
			mu.Unlock()
			asked <- struct{}{}
		}()
		return session.StaticSource(token).Token(ctx)
	})

	p := New(fetcher, tokens, nil, WithTicker(ticker.fn), WithMetrics(metrics), WithLogger(logging.Discard()))
	p.Start(context.Background(), model.Document{ID: "doc-1", Status: model.StatusIndexing})

	for i := 0; i < 2; i++ {
		require.True(t, ticker.tick())
		<-asked
	}
	require.Equal(t, 0, fetcher.Calls())

	mu.Lock()
	token = "tok"
	mu.Unlock()

	require.True(t, ticker.tick())
	waitFetch(t, fetcher)
	<-p.Done()
	require.Equal(t, 1, fetcher.Calls())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Equal(t, []string{"skipped", "skipped", "terminal"}, metrics.outcomes)
}

func TestFailedFetchLeavesStatusAndKeepsPolling(t *testing.T) {
	fetcher := newScriptedFetcher(model.StatusIndexing, model.StatusReady)
	fetcher.errs = []error{errors.New("503")}
	ticker := newManualTicker()

	var updates int
	p := New(fetcher, session.StaticSource("tok"), func(model.Document) { updates++ },
		WithTicker(ticker.fn), WithLogger(logging.Discard()))
	p.Start(context.Background(), model.Document{ID: "doc-1", Status: model.StatusIndexing})

	require.True(t, ticker.tick())
	waitFetch(t, fetcher)
	require.True(t, ticker.tick())
	waitFetch(t, fetcher)
	<-p.Done()
	require.Equal(t, 1, updates)
}

func TestParentContextCancelStops(t *testing.T) {
	fetcher := newScriptedFetcher(model.StatusIndexing)
	ticker := newManualTicker()
	ctx, cancel := context.WithCancel(context.Background())

	p := New(fetcher, session.StaticSource("tok"), nil, WithTicker(ticker.fn))
	p.Start(ctx, model.Document{ID: "doc-1", Status: model.StatusIndexing})
	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("poller kept running after cancel")
	}
}

func TestRealTickerInterval(t *testing.T) {
	fetcher := newScriptedFetcher(model.StatusIndexing, model.StatusReady)
	p := New(fetcher, session.StaticSource("tok"), nil, WithInterval(5*time.Millisecond), WithLogger(logging.Discard()))
	p.Start(context.Background(), model.Document{ID: "doc-1", Status: model.StatusIndexing})

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish")
	}
	require.Equal(t, 2, fetcher.Calls())
}
