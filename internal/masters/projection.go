package masters

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/daewon/plantops/internal/docstore"
	"github.com/daewon/plantops/internal/metrics"
)

// Subscriber is the live-document capability a projection needs.
// *docstore.Store implements it.
type Subscriber interface {
	Subscribe(collection, id string, fn func(docstore.Snapshot)) (unsubscribe func())
}

// Snapshot is an immutable view of the three vocabularies and their derived
// lookups. Slices and maps in a Snapshot must not be modified by callers.
type Snapshot struct {
	Types         []Entry           `json:"types"`
	Lines         []Entry           `json:"lines"`
	Processes     []Entry           `json:"processes"`
	TypeCodes     []string          `json:"typeCodes"`
	LineCodes     []string          `json:"lineCodes"`
	ProcessCodes  []string          `json:"processCodes"`
	ProcessTagMap map[string]string `json:"processTagMap"`
}

func emptySnapshot() Snapshot {
	return buildSnapshot(nil, nil, nil)
}

func buildSnapshot(types, lines, processes []Entry) Snapshot {
	if types == nil {
		types = []Entry{}
	}
	if lines == nil {
		lines = []Entry{}
	}
	if processes == nil {
		processes = []Entry{}
	}
	return Snapshot{
		Types:         types,
		Lines:         lines,
		Processes:     processes,
		TypeCodes:     Codes(types),
		LineCodes:     Codes(lines),
		ProcessCodes:  Codes(processes),
		ProcessTagMap: TagMap(processes),
	}
}

// Projection keeps an always-current view of the master vocabularies while
// started. Each projection owns its views; nothing is shared between
// instances.
//
// Deliveries are serialised by deliverMu. Stop bumps the generation under mu
// and then waits on deliverMu, so once Stop returns no delivery from the
// stopped generation can touch the view or reach a listener. Consequently
// Stop must not be called from an OnChange listener.
type Projection struct {
	sub    Subscriber
	logger *slog.Logger

	deliverMu sync.Mutex

	mu        sync.RWMutex
	running   bool
	gen       uint64
	unsubs    []func()
	views     map[Vocabulary][]Entry
	snap      Snapshot
	listeners map[uint64]func(Snapshot)
	nextID    uint64
}

// New creates a stopped projection reading from sub.
func New(sub Subscriber, logger *slog.Logger) *Projection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projection{
		sub:       sub,
		logger:    logger,
		views:     make(map[Vocabulary][]Entry),
		snap:      emptySnapshot(),
		listeners: make(map[uint64]func(Snapshot)),
	}
}

// Start opens one subscription per vocabulary. The view is reset to empty so
// it reflects only what is delivered from now on. Starting a running
// projection is a no-op.
func (p *Projection) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.gen++
	gen := p.gen
	p.views = make(map[Vocabulary][]Entry)
	p.snap = emptySnapshot()
	metrics.ActiveProjections.Inc()
	p.mu.Unlock()

	unsubs := make([]func(), 0, len(Vocabularies))
	for _, v := range Vocabularies {
		unsubs = append(unsubs, p.sub.Subscribe(Collection, string(v), p.handler(v, gen)))
	}

	p.mu.Lock()
	if p.gen != gen {
		// Stopped while subscribing.
		p.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		return
	}
	p.unsubs = unsubs
	p.mu.Unlock()

	p.logger.Debug("masters: started")
}

// Stop releases all subscriptions. It is idempotent and safe before Start.
// The last view stays readable after Stop.
func (p *Projection) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.gen++
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	// Wait for an in-flight delivery to finish; it will see the new
	// generation if it has not taken mu yet.
	p.deliverMu.Lock()
	p.deliverMu.Unlock() //nolint:staticcheck // barrier

	metrics.ActiveProjections.Dec()
	p.logger.Debug("masters: stopped")
}

// Running reports whether the projection is started.
func (p *Projection) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Projection) handler(v Vocabulary, gen uint64) func(docstore.Snapshot) {
	return func(s docstore.Snapshot) {
		p.deliverMu.Lock()
		defer p.deliverMu.Unlock()

		p.mu.Lock()
		if !p.running || p.gen != gen {
			p.mu.Unlock()
			metrics.MastersDeliveries.WithLabelValues(string(v), metrics.OutcomeDiscarded).Inc()
			return
		}
		if s.Err != nil {
			// Keep the last good view.
			p.mu.Unlock()
			metrics.MastersDeliveries.WithLabelValues(string(v), metrics.OutcomeError).Inc()
			p.logger.Warn("masters: delivery failed",
				slog.String("vocabulary", string(v)),
				slog.String("error", s.Err.Error()))
			return
		}

		var entries []Entry
		var skipped int
		var parseErr error
		if s.Exists {
			entries, skipped, parseErr = ParseList(s.Data)
		}
		p.views[v] = Normalize(entries)
		p.snap = buildSnapshot(p.views[Types], p.views[Lines], p.views[Processes])
		snap := p.snap
		listeners := slices.Collect(maps.Values(p.listeners))
		p.mu.Unlock()

		metrics.MastersDeliveries.WithLabelValues(string(v), metrics.OutcomeApplied).Inc()
		switch {
		case parseErr != nil:
			p.logger.Warn("masters: malformed document treated as empty", slog.String("vocabulary", string(v)))
		case skipped > 0:
			p.logger.Warn("masters: entries skipped", slog.String("vocabulary", string(v)), slog.Int("skipped", skipped))
		}

		for _, fn := range listeners {
			fn(snap)
		}
	}
}

// Snapshot returns the current view.
func (p *Projection) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Entries returns the filtered, sorted entries of one vocabulary.
func (p *Projection) Entries(v Vocabulary) []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.views[v])
}

// TypeCodes returns the codes of the types vocabulary in view order.
func (p *Projection) TypeCodes() []string {
	return slices.Clone(p.Snapshot().TypeCodes)
}

// LineCodes returns the codes of the lines vocabulary in view order.
func (p *Projection) LineCodes() []string {
	return slices.Clone(p.Snapshot().LineCodes)
}

// ProcessCodes returns the codes of the processes vocabulary in view order.
func (p *Projection) ProcessCodes() []string {
	return slices.Clone(p.Snapshot().ProcessCodes)
}

// ProcessTagMap returns a copy of the process code → tag lookup.
func (p *Projection) ProcessTagMap() map[string]string {
	return maps.Clone(p.Snapshot().ProcessTagMap)
}

// GetProcessTag returns the tag of a process code, or "" if the code is not
// in the current view.
func (p *Projection) GetProcessTag(code string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.ProcessTagMap[code]
}

// OnChange registers fn to be called with every new view. Calls happen on
// the delivering goroutine, one at a time. The returned function removes the
// listener.
func (p *Projection) OnChange(fn func(Snapshot)) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}
