package storage

import (
	"sort"
	"strings"
	"sync"
)

// Overlay buffers writes on top of a base database. Reads see the buffered
// state; nothing touches the base until Commit. Discard (or simply dropping
// the overlay) leaves the base untouched, which is how a transaction that
// fails half-way rolls back.
type Overlay struct {
	base Database

	mu      sync.Mutex
	writes  map[string][]byte
	deletes map[string]bool
	order   []string
}

func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]bool),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	if _, seen := o.writes[k]; !seen && !o.deletes[k] {
		o.order = append(o.order, k)
	} else if o.deletes[k] {
		delete(o.deletes, k)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	o.writes[k] = cp
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	k := string(key)
	if o.deletes[k] {
		o.mu.Unlock()
		return nil, ErrKeyNotFound
	}
	if v, ok := o.writes[k]; ok {
		cp := make([]byte, len(v))
		copy(cp, v)
		o.mu.Unlock()
		return cp, nil
	}
	o.mu.Unlock()
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.Lock()
	k := string(key)
	if o.deletes[k] {
		o.mu.Unlock()
		return false, nil
	}
	if _, ok := o.writes[k]; ok {
		o.mu.Unlock()
		return true, nil
	}
	o.mu.Unlock()
	return o.base.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	if _, seen := o.writes[k]; seen {
		delete(o.writes, k)
	} else if !o.deletes[k] {
		o.order = append(o.order, k)
	}
	o.deletes[k] = true
	return nil
}

// NewIterator merges the base range with the buffered writes, honouring
// buffered deletes. The merged view is snapshotted up front.
func (o *Overlay) NewIterator(prefix []byte) Iterator {
	merged := make(map[string][]byte)
	base := o.base.NewIterator(prefix)
	for base.Next() {
		merged[string(base.Key())] = append([]byte(nil), base.Value()...)
	}
	base.Release()

	o.mu.Lock()
	for k, v := range o.writes {
		if strings.HasPrefix(k, string(prefix)) {
			merged[k] = append([]byte(nil), v...)
		}
	}
	for k := range o.deletes {
		if strings.HasPrefix(k, string(prefix)) {
			delete(merged, k)
		}
	}
	o.mu.Unlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]kvPair, len(keys))
	for i, k := range keys {
		pairs[i] = kvPair{key: []byte(k), value: merged[k]}
	}
	return &sliceIterator{pairs: pairs}
}

// Commit flushes the buffered mutations to the base in first-touch order.
// The overlay must not be reused afterwards.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range o.order {
		if o.deletes[k] {
			if err := o.base.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if v, ok := o.writes[k]; ok {
			if err := o.base.Put([]byte(k), v); err != nil {
				return err
			}
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]bool)
	o.order = nil
	return nil
}

// Discard drops every buffered mutation.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]bool)
	o.order = nil
}

// Close satisfies Database. The base stays open; overlays are transient.
func (o *Overlay) Close() {}
