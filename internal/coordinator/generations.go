package coordinator

import "sync"

// Generations tracks, per stream, the newest generation issued by an
// explicit request and the newest generation applied by the consumer.
type Generations struct {
	mu      sync.Mutex
	issued  map[string]uint64
	applied map[string]uint64
}

func NewGenerations() *Generations {
	return &Generations{issued: make(map[string]uint64), applied: make(map[string]uint64)}
}

// Next starts a new generation for stream and returns it.
func (g *Generations) Next(stream string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued[stream]++
	return g.issued[stream]
}

// Current returns the newest issued generation for stream.
func (g *Generations) Current(stream string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.issued[stream]
}

// Applied returns the newest applied generation for stream.
func (g *Generations) Applied(stream string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applied[stream]
}

// Accept records gen as applied if it is not older than anything issued
// or applied for stream.
func (g *Generations) Accept(stream string, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen < g.issued[stream] || gen < g.applied[stream] {
		return false
	}
	g.applied[stream] = gen
	return true
}

// Reset forgets every stream, used when the active account changes.
func (g *Generations) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	// keep counters monotonic across resets so old results stay stale
	for stream := range g.issued {
		g.issued[stream]++
	}
	for stream := range g.applied {
		delete(g.applied, stream)
	}
}
