package store

import (
	"strings"
	"sync"
	"time"
)

// PinSet tracks cache rows backing the visible window. Pins expire after
// the TTL unless renewed, so a consumer that stops reporting its window
// cannot hold rows forever.
type PinSet struct {
	mu   sync.Mutex
	ttl  time.Duration
	pins map[string]time.Time // entry id -> expiry
	now  func() time.Time
}

func NewPinSet(ttl time.Duration) *PinSet {
	return &PinSet{ttl: ttl, pins: make(map[string]time.Time), now: time.Now}
}

// Pin marks keys of one kind as in use, renewing existing pins.
func (p *PinSet) Pin(account string, kind Kind, keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	expiry := p.now().Add(p.ttl)
	for _, key := range keys {
		p.pins[entryID(account, kind, key)] = expiry
	}
}

// Replace pins exactly keys for (account, kind), dropping other pins of that kind.
func (p *PinSet) Replace(account string, kind Kind, keys ...string) {
	p.mu.Lock()
	prefix := account + "\x00" + string(kind) + "\x00"
	for id := range p.pins {
		if strings.HasPrefix(id, prefix) {
			delete(p.pins, id)
		}
	}
	p.mu.Unlock()
	p.Pin(account, kind, keys...)
}

// Pinned reports whether the entry is currently pinned.
func (p *PinSet) Pinned(account string, kind Kind, key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := entryID(account, kind, key)
	expiry, ok := p.pins[id]
	if !ok {
		return false
	}
	if !p.now().Before(expiry) {
		delete(p.pins, id)
		return false
	}
	return true
}

// UnpinAccount drops every pin held for an account.
func (p *PinSet) UnpinAccount(account string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefix := account + "\x00"
	for id := range p.pins {
		if strings.HasPrefix(id, prefix) {
			delete(p.pins, id)
		}
	}
}

// Len returns the number of live pins.
func (p *PinSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	n := 0
	for id, expiry := range p.pins {
		if now.Before(expiry) {
			n++
		} else {
			delete(p.pins, id)
		}
	}
	return n
}
