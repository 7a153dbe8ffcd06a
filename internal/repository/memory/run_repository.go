package memory

import (
	"time"

	"chain-of-agents-be/pkg/coa"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// RunRepository keeps recent session snapshots for status lookup. Entries
// expire and nothing survives a restart.
type RunRepository struct {
	cache *cache.Cache
}

func NewRunRepository(ttl time.Duration) *RunRepository {
	return &RunRepository{
		cache: cache.New(ttl, ttl/3+time.Minute),
	}
}

func (r *RunRepository) Save(session coa.Session) {
	r.cache.Set(session.ID.String(), session, cache.DefaultExpiration)
}

func (r *RunRepository) Get(id uuid.UUID) (coa.Session, bool) {
	if x, found := r.cache.Get(id.String()); found {
		return x.(coa.Session), true
	}
	return coa.Session{}, false
}
