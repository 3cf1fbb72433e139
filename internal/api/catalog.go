package api

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/llmproxy-dev/llmproxy/internal/connector"
)

// ModelCatalog answers the command interpreter's backend/model validation
// questions, backed by a periodically refreshed snapshot of each registered
// connector's advertised model list.
type ModelCatalog struct {
	mu     sync.RWMutex
	models map[string]map[string]bool
}

// NewModelCatalog constructs an empty catalog; call Refresh to populate it.
func NewModelCatalog() *ModelCatalog {
	return &ModelCatalog{models: make(map[string]map[string]bool)}
}

// Refresh queries every registered connector for its current model list,
// logging a warning (not failing) for any connector that errors.
func (c *ModelCatalog) Refresh(ctx context.Context, set *connector.Set) {
	for _, backend := range set.Backends() {
		conn, ok := set.Get(backend)
		if !ok {
			continue
		}
		models, err := conn.Models(ctx)
		if err != nil {
			log.Warnf("catalog: failed to refresh models for backend %s: %v", backend, err)
			continue
		}
		c.SetModels(backend, models)
	}
}

// SetModels replaces the known model list for backend.
func (c *ModelCatalog) SetModels(backend string, models []string) {
	set := make(map[string]bool, len(models))
	for _, m := range models {
		set[m] = true
	}
	c.mu.Lock()
	c.models[backend] = set
	c.mu.Unlock()
}

// IsFunctional reports whether backend has any known models registered.
func (c *ModelCatalog) IsFunctional(backend string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.models[backend]
	return ok && len(set) > 0
}

// HasModel reports whether backend currently advertises model. An empty
// known-model set is treated as "accept any model" since some connectors
// (generic OpenAI-compatible endpoints) never enumerate models.
func (c *ModelCatalog) HasModel(backend, model string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.models[backend]
	if !ok || len(set) == 0 {
		return true
	}
	return set[model]
}

// Backends returns the sorted list of backends with at least one known
// model.
func (c *ModelCatalog) Backends() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.models))
	for b, set := range c.models {
		if len(set) > 0 {
			out = append(out, b)
		}
	}
	sort.Strings(out)
	return out
}

// Models returns the known model list for backend, in no particular order.
func (c *ModelCatalog) Models(backend string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.models[backend]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

// ModelCount returns how many models are currently known for backend.
func (c *ModelCatalog) ModelCount(backend string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models[backend])
}

// StartPeriodicRefresh refreshes the catalog immediately and then every
// interval until ctx is canceled.
func (c *ModelCatalog) StartPeriodicRefresh(ctx context.Context, set *connector.Set, interval time.Duration) {
	c.Refresh(ctx, set)
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Refresh(ctx, set)
			}
		}
	}()
}
