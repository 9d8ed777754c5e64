package merge

import (
	"context"
	"strings"
	"sync"

	"github.com/lherron/recmerge/internal/config"
	"github.com/lherron/recmerge/internal/domain"
	"github.com/lherron/recmerge/internal/store"
)

// DisplayName joins the non-empty display fields of rec, falling back to its id.
// Consecutive name parts are space separated; the first field that looks like
// an email is shown in angle brackets.
func DisplayName(rec domain.Record, fields []string) string {
	var parts []string
	email := ""
	for _, f := range fields {
		v := strings.TrimSpace(rec.String(f))
		if v == "" {
			continue
		}
		if strings.Contains(v, "@") && email == "" {
			email = v
			continue
		}
		parts = append(parts, v)
	}
	name := strings.Join(parts, " ")
	switch {
	case name != "" && email != "":
		return name + " <" + email + ">"
	case name != "":
		return name
	case email != "":
		return email
	default:
		return rec.ID()
	}
}

// NameCache resolves record ids to display names for one merge session.
// It is never shared between sessions, so stale names do not outlive the
// preview that loaded them.
type NameCache struct {
	store    store.Store
	entities map[string]config.EntityConfig
	// fkTargets maps a foreign key field to the collection it points at
	fkTargets map[string]string

	mu    sync.Mutex
	names map[string]string
}

// NewNameCache builds an empty cache over the configured entities
func NewNameCache(s store.Store, entities []config.EntityConfig) *NameCache {
	c := &NameCache{
		store:     s,
		entities:  make(map[string]config.EntityConfig, len(entities)),
		fkTargets: make(map[string]string),
		names:     make(map[string]string),
	}
	for _, e := range entities {
		c.entities[e.Collection] = e
		for _, fk := range e.ForeignKeys {
			c.fkTargets[fk] = e.Collection
		}
	}
	return c
}

// Target returns the collection a reference field points at
func (c *NameCache) Target(field string) (string, bool) {
	coll, ok := c.fkTargets[field]
	return coll, ok
}

// Lookup returns the display name for collection/id, loading it on first use.
// Unresolvable ids render as the id itself.
func (c *NameCache) Lookup(ctx context.Context, collection, recID string) string {
	key := collection + "/" + recID
	c.mu.Lock()
	name, ok := c.names[key]
	c.mu.Unlock()
	if ok {
		return name
	}

	name = recID
	if rec, err := c.store.Get(ctx, collection, recID); err == nil {
		name = DisplayName(rec, c.entities[collection].DisplayFields)
	}

	c.mu.Lock()
	c.names[key] = name
	c.mu.Unlock()
	return name
}

// Peek returns a cached name without loading
func (c *NameCache) Peek(collection, recID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[collection+"/"+recID]
	return name, ok
}

// Len reports the number of cached names
func (c *NameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}
