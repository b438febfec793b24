package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// IndexStore persists the active credential index across restarts.
type IndexStore interface {
	LoadIndex(ctx context.Context) (int, bool, error)
	SaveIndex(ctx context.Context, index int) error
}

// CredentialPool holds alternate API keys for one provider and tracks which
// one is in use. Rotation is driven by the caller after a failed call.
type CredentialPool struct {
	mu     sync.Mutex
	keys   []string
	index  int
	store  IndexStore
	logger *slog.Logger
}

// NewCredentialPool creates a pool from keys, skipping blanks. store may be nil.
func NewCredentialPool(keys []string, store IndexStore, logger *slog.Logger) *CredentialPool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &CredentialPool{store: store, logger: logger}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			p.keys = append(p.keys, k)
		}
	}
	return p
}

// ParseKeys splits a comma separated key list.
func ParseKeys(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Restore loads the persisted index, if any.
func (p *CredentialPool) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	idx, ok, err := p.store.LoadIndex(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) > 0 {
		p.index = ((idx % len(p.keys)) + len(p.keys)) % len(p.keys)
	}
	return nil
}

// IsConfigured reports whether at least one key is available.
func (p *CredentialPool) IsConfigured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys) > 0
}

// Count returns the number of keys.
func (p *CredentialPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Index returns the active slot.
func (p *CredentialPool) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// CanRotate reports whether there is an alternate key to rotate to.
func (p *CredentialPool) CanRotate() bool {
	return p.Count() > 1
}

// EffectiveCredential returns the active key and its slot.
func (p *CredentialPool) EffectiveCredential() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", -1
	}
	return p.keys[p.index], p.index
}

// Rotate advances to the next key and returns the slot that was active
// before the rotation along with the new slot.
func (p *CredentialPool) Rotate(ctx context.Context) (failed int, next int) {
	p.mu.Lock()
	if len(p.keys) == 0 {
		p.mu.Unlock()
		return -1, -1
	}
	failed = p.index
	p.index = (p.index + 1) % len(p.keys)
	next = p.index
	p.mu.Unlock()

	p.logger.Warn("Rotated generation credential", "failed_slot", failed, "active_slot", next)
	if p.store != nil {
		if err := p.store.SaveIndex(ctx, next); err != nil {
			p.logger.Error("Failed to persist credential index", "error", err)
		}
	}
	return failed, next
}
