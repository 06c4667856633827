package store

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/fjod/go_pos/domain"
)

// collection keeps one entity type in arrival order with an id index.
type collection[T domain.Entity] struct {
	items  []T
	index  map[string]int
	digest uint64
}

func newCollection[T domain.Entity]() *collection[T] {
	return &collection[T]{index: make(map[string]int)}
}

func (c *collection[T]) get(id string) (T, bool) {
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// insert adds item unless its id is already present.
func (c *collection[T]) insert(item T) bool {
	if _, ok := c.index[item.EntityID()]; ok {
		return false
	}
	c.index[item.EntityID()] = len(c.items)
	c.items = append(c.items, item)
	return true
}

// upsert replaces the item with the same id, or appends it.
func (c *collection[T]) upsert(item T) {
	if i, ok := c.index[item.EntityID()]; ok {
		c.items[i] = item
		return
	}
	c.insert(item)
}

func (c *collection[T]) remove(id string) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].EntityID()] = j
	}
	return true
}

// replace swaps the whole content. It reports false when the new content
// is byte-identical to what was loaded last time.
func (c *collection[T]) replace(items []T, digest uint64) bool {
	if digest != 0 && digest == c.digest && len(items) == len(c.items) {
		return false
	}
	c.items = make([]T, 0, len(items))
	c.index = make(map[string]int, len(items))
	for _, item := range items {
		c.upsert(item)
	}
	c.digest = digest
	return true
}

func (c *collection[T]) list() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// apply merges one normalized event: create inserts if absent, update
// replaces by id (last writer wins), delete removes by id.
func (c *collection[T]) apply(ev domain.Event) (bool, error) {
	var changed bool
	switch ev.Action {
	case domain.EventDelete:
		changed = c.remove(ev.ID)
	case domain.EventCreate, domain.EventUpdate:
		var item T
		if err := json.Unmarshal(ev.Payload, &item); err != nil {
			return false, fmt.Errorf("decode %s %s: %w", ev.Entity, ev.ID, err)
		}
		if item.EntityID() == "" {
			return false, fmt.Errorf("decode %s: payload has no id", ev.Entity)
		}
		if ev.Action == domain.EventCreate {
			changed = c.insert(item)
		} else {
			c.upsert(item)
			changed = true
		}
	default:
		return false, fmt.Errorf("unknown action %q", ev.Action)
	}
	if changed {
		c.touch()
	}
	return changed, nil
}

// touch forgets the reload digest so the next full reload is applied
// even if the server content did not change.
func (c *collection[T]) touch() {
	c.digest = 0
}

func (c *collection[T]) replaceRaw(raws []json.RawMessage) (bool, error) {
	h := xxhash.New()
	items := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return false, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, item)
		_, _ = h.Write(raw)
		_, _ = h.Write([]byte{0})
	}
	return c.replace(items, h.Sum64()), nil
}
