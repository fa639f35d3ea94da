package testutil

import (
	"sync"

	"github.com/google/uuid"

	"claims-go/internal/claims"
)

// Fixed ids shared across tests.
var (
	Overworld = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	Nether    = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	Alice     = uuid.MustParse("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa")
	Bob       = uuid.MustParse("bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb")
	Carol     = uuid.MustParse("cccccccc-cccc-4ccc-8ccc-cccccccccccc")
)

// Worlds is a mutable claims.WorldResolver. Safe for concurrent use.
type Worlds struct {
	mu     sync.Mutex
	byName map[string]uuid.UUID
}

var _ claims.WorldResolver = (*Worlds)(nil)

// NewWorlds returns a resolver knowing "world" and "world_nether".
func NewWorlds() *Worlds {
	return &Worlds{byName: map[string]uuid.UUID{
		"world":        Overworld,
		"world_nether": Nether,
	}}
}

func (w *Worlds) WorldExists(id uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, v := range w.byName {
		if v == id {
			return true
		}
	}
	return false
}

func (w *Worlds) WorldByName(name string) (uuid.UUID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.byName[name]
	return id, ok
}

// Remove forgets a world, as if it had been unloaded for good.
func (w *Worlds) Remove(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.byName, name)
}
