package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haszKEJL/Projekt-PAI/internal/blob"
	"go.uber.org/zap"
)

// PendingSignature is a prepared upload waiting for its signature. Entries
// are private to the client that created them, keyed by an unguessable
// handle, and never persisted.
type PendingSignature struct {
	Handle           string
	TempHandle       string
	ContentHash      string
	OriginalFilename string
	FallbackHash     bool
	CreatedAt        time.Time
}

// PendingStore holds pending uploads in memory. Abandoned entries expire
// after the TTL; expiry only forces the client to re-prepare.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]PendingSignature
	ttl     time.Duration
	blobs   *blob.Store
	logger  *zap.Logger
	stop    chan struct{}
	once    sync.Once
}

func NewPendingStore(blobs *blob.Store, ttl, sweepEvery time.Duration, logger *zap.Logger) *PendingStore {
	ps := &PendingStore{
		entries: make(map[string]PendingSignature),
		ttl:     ttl,
		blobs:   blobs,
		logger:  logger.With(zap.String("component", "pending_store")),
		stop:    make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ps.stop:
				return
			case <-ticker.C:
				ps.Sweep(time.Now())
			}
		}
	}()

	return ps
}

func (ps *PendingStore) Close() {
	ps.once.Do(func() { close(ps.stop) })
}

// Put registers a prepared upload and returns its entry with a fresh handle.
func (ps *PendingStore) Put(tempHandle, contentHash, filename string, fallback bool) PendingSignature {
	entry := PendingSignature{
		Handle:           uuid.New().String(),
		TempHandle:       tempHandle,
		ContentHash:      contentHash,
		OriginalFilename: filename,
		FallbackHash:     fallback,
		CreatedAt:        time.Now(),
	}

	ps.mu.Lock()
	ps.entries[entry.Handle] = entry
	ps.mu.Unlock()

	return entry
}

// Take consumes the entry for the handle. Expired entries are not returned;
// their temp blobs are released immediately, since a consumed entry is out of
// reach of the sweeper.
func (ps *PendingStore) Take(handle string) (PendingSignature, bool) {
	ps.mu.Lock()
	entry, ok := ps.entries[handle]
	if ok {
		delete(ps.entries, handle)
	}
	ps.mu.Unlock()

	if !ok {
		return PendingSignature{}, false
	}
	if time.Since(entry.CreatedAt) > ps.ttl {
		ps.releaseTempBlob(entry)
		return PendingSignature{}, false
	}
	return entry, true
}

// Restore puts a consumed entry back, for commit failures that should let
// the client retry without re-preparing.
func (ps *PendingStore) Restore(entry PendingSignature) {
	ps.mu.Lock()
	ps.entries[entry.Handle] = entry
	ps.mu.Unlock()
}

// Sweep drops entries older than the TTL and deletes their temp blobs.
func (ps *PendingStore) Sweep(now time.Time) {
	ps.mu.Lock()
	var expired []PendingSignature
	for handle, entry := range ps.entries {
		if now.Sub(entry.CreatedAt) > ps.ttl {
			delete(ps.entries, handle)
			expired = append(expired, entry)
		}
	}
	ps.mu.Unlock()

	for _, entry := range expired {
		ps.releaseTempBlob(entry)
	}
	if len(expired) > 0 {
		ps.logger.Info("Swept expired pending signatures", zap.Int("count", len(expired)))
	}
}

func (ps *PendingStore) releaseTempBlob(entry PendingSignature) {
	if err := ps.blobs.Delete(entry.TempHandle); err != nil {
		ps.logger.Debug("Temp blob already gone on expiry",
			zap.String("handle", entry.Handle), zap.Error(err))
	}
}

// Len reports the number of live entries.
func (ps *PendingStore) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.entries)
}
