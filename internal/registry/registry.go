package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gridclash/gridclash-backend/internal/apperror"
	"github.com/gridclash/gridclash-backend/internal/entity"
	"github.com/gridclash/gridclash-backend/internal/pkg"
)

// Registry owns the identifier→match table and every match's lifetime.
// Sessions hold identifiers only, never match references, so nothing dangles
// after an eviction. The table lock covers only insert/lookup/remove; match
// state is guarded by each match's own lock.
type Registry struct {
	logger *slog.Logger

	retention       time.Duration
	creationTimeout time.Duration

	mu      sync.RWMutex
	matches map[string]*entity.Match
}

func New(logger *slog.Logger, retention, creationTimeout time.Duration) *Registry {
	return &Registry{
		logger: logger.With("component", "registry"),

		retention:       retention,
		creationTimeout: creationTimeout,

		matches: make(map[string]*entity.Match),
	}
}

// Create inserts a new waiting match owned by the creator slot.
func (that *Registry) Create(boardSize int, creator *entity.Slot) *entity.Match {
	match := entity.NewMatch(pkg.GenerateMatchID(), boardSize, creator)

	that.mu.Lock()
	that.matches[match.ID] = match
	that.mu.Unlock()

	return match
}

func (that *Registry) Lookup(id string) (*entity.Match, error) {
	that.mu.RLock()
	match, ok := that.matches[id]
	that.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrMatchNotFound, id)
	}

	return match, nil
}

// Evict removes the match from the table. Evicting an absent id is a no-op,
// which makes duplicate timer firings harmless.
func (that *Registry) Evict(id string) {
	that.mu.Lock()
	_, ok := that.matches[id]
	delete(that.matches, id)
	that.mu.Unlock()

	if ok {
		that.logger.Info("match evicted", "matchID", id)
	}
}

// Len reports the number of live matches.
func (that *Registry) Len() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.matches)
}

// Sweep evicts finished matches older than the retention window and expires
// waiting matches older than the creation timeout. Expired matches are
// completed before eviction and returned so the coordinator can notify any
// still-attached connection. Match locks are never taken under the table
// lock, so sweeps cannot deadlock against in-flight match operations.
func (that *Registry) Sweep(now time.Time) []*entity.Match {
	that.mu.RLock()
	candidates := make([]*entity.Match, 0, len(that.matches))
	for _, match := range that.matches {
		candidates = append(candidates, match)
	}
	that.mu.RUnlock()

	var expired []*entity.Match
	var evictable []string

	for _, match := range candidates {
		match.Lock()

		switch {
		case match.IsFinished() && now.Sub(match.FinishedAt) >= that.retention:
			that.logger.Info("retention passed, evicting match", "matchID", match.ID)
			evictable = append(evictable, match.ID)

		case match.IsWaiting() && now.Sub(match.CreatedAt) >= that.creationTimeout:
			match.Expire()
			expired = append(expired, match)
			that.logger.Info("creation timeout passed, match expired", "matchID", match.ID)
			evictable = append(evictable, match.ID)
		}

		match.Unlock()
	}

	for _, id := range evictable {
		that.Evict(id)
	}

	return expired
}
