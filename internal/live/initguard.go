package live

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agenticgokit/crewview/internal/protocol"
)

const initGuardSize = 128

// InitGuard remembers which (session, entity) pairs were already initialized
type InitGuard struct {
	seen *lru.Cache[string, struct{}]
}

// NewInitGuard creates a guard holding up to size pairs
func NewInitGuard(size int) *InitGuard {
	if size <= 0 {
		size = initGuardSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		// only fails for non-positive sizes
		panic(err)
	}
	return &InitGuard{seen: cache}
}

func guardKey(session string, kind protocol.Kind, id string) string {
	return session + "|" + string(kind) + ":" + id
}

// Claim marks the pair as initialized and reports whether the caller should run initialization
func (g *InitGuard) Claim(session string, kind protocol.Kind, id string) bool {
	found, _ := g.seen.ContainsOrAdd(guardKey(session, kind, id), struct{}{})
	return !found
}

// Release forgets a pair so it initializes again next time
func (g *InitGuard) Release(session string, kind protocol.Kind, id string) {
	g.seen.Remove(guardKey(session, kind, id))
}
