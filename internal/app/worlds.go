package app

import (
	"fmt"

	"github.com/google/uuid"

	"claims-go/internal/claims"
	"claims-go/internal/config"
)

// StaticWorlds resolves worlds from the [[worlds]] config table. The CLI runs
// without a game server, so this list is the only source of truth it has.
type StaticWorlds struct {
	byName map[string]uuid.UUID
	byID   map[uuid.UUID]string
}

var _ claims.WorldResolver = (*StaticWorlds)(nil)

// NewStaticWorlds builds a resolver from config entries.
func NewStaticWorlds(entries []config.WorldConfig) (*StaticWorlds, error) {
	w := &StaticWorlds{byName: map[string]uuid.UUID{}, byID: map[uuid.UUID]string{}}
	for _, e := range entries {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return nil, fmt.Errorf("world %s: invalid id: %w", e.Name, err)
		}
		if _, dup := w.byName[e.Name]; dup {
			return nil, fmt.Errorf("world %s configured twice", e.Name)
		}
		w.byName[e.Name] = id
		w.byID[id] = e.Name
	}
	return w, nil
}

func (w *StaticWorlds) WorldExists(id uuid.UUID) bool {
	_, ok := w.byID[id]
	return ok
}

func (w *StaticWorlds) WorldByName(name string) (uuid.UUID, bool) {
	id, ok := w.byName[name]
	return id, ok
}

// Resolve accepts a world name or id.
func (w *StaticWorlds) Resolve(s string) (uuid.UUID, error) {
	if id, ok := w.byName[s]; ok {
		return id, nil
	}
	if id, err := uuid.Parse(s); err == nil && w.WorldExists(id) {
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("unknown world %q", s)
}

// Name returns the configured name of id, or the id itself.
func (w *StaticWorlds) Name(id uuid.UUID) string {
	if name, ok := w.byID[id]; ok {
		return name
	}
	return id.String()
}
