package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memDoc struct {
	collection string
	data       []byte
	version    int64
	updatedAt  time.Time
}

// Memory is an in-process Store with optimistic transactions: every document
// read inside a transaction is validated against its version at commit.
type Memory struct {
	mu   sync.Mutex
	docs map[string]memDoc
	opts Options
	now  func() time.Time
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		docs: map[string]memDoc{},
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	if _, _, err := splitPath(path); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(path)
}

func (m *Memory) Set(ctx context.Context, path string, v any, opts ...SetOption) error {
	collection, _, err := splitPath(path)
	if err != nil {
		return err
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(path, collection, data, applyOptions(opts).merge)
}

func (m *Memory) List(ctx context.Context, collection string) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Snapshot{}
	for path, d := range m.docs {
		if d.collection != collection {
			continue
		}
		out = append(out, Snapshot{Path: path, Data: d.data, Version: d.version, UpdatedAt: d.updatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Path < out[j].Path
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runWithRetry(ctx, m.opts, func(ctx context.Context) error {
		tx := &memTx{store: m, reads: map[string]int64{}, pending: map[string]memWrite{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.commit()
	})
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// snapshot expects m.mu held.
func (m *Memory) snapshot(path string) (Snapshot, error) {
	d, ok := m.docs[path]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return Snapshot{Path: path, Data: d.data, Version: d.version, UpdatedAt: d.updatedAt}, nil
}

// write expects m.mu held.
func (m *Memory) write(path, collection string, data []byte, merge bool) error {
	cur := m.docs[path]
	if merge {
		merged, err := mergeJSON(cur.data, data)
		if err != nil {
			return err
		}
		data = merged
	}
	m.docs[path] = memDoc{
		collection: collection,
		data:       data,
		version:    cur.version + 1,
		updatedAt:  m.now(),
	}
	return nil
}

type memWrite struct {
	collection string
	data       []byte
	merge      bool
	seq        int
}

type memTx struct {
	store   *Memory
	reads   map[string]int64
	pending map[string]memWrite
	seq     int
}

func (t *memTx) Get(ctx context.Context, path string) (Snapshot, error) {
	if _, _, err := splitPath(path); err != nil {
		return Snapshot{}, err
	}
	t.store.mu.Lock()
	d, ok := t.store.docs[path]
	t.store.mu.Unlock()

	if _, seen := t.reads[path]; !seen {
		t.reads[path] = d.version
	}
	base := d.data
	if ok && t.reads[path] != d.version {
		// another writer got in between two reads of this transaction
		return Snapshot{}, ErrConflict
	}

	w, written := t.pending[path]
	if !written {
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Snapshot{Path: path, Data: d.data, Version: d.version, UpdatedAt: d.updatedAt}, nil
	}
	data := w.data
	if w.merge {
		merged, err := mergeJSON(base, w.data)
		if err != nil {
			return Snapshot{}, err
		}
		data = merged
	}
	return Snapshot{Path: path, Data: data, Version: d.version}, nil
}

func (t *memTx) Set(ctx context.Context, path string, v any, opts ...SetOption) error {
	collection, _, err := splitPath(path)
	if err != nil {
		return err
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	merge := applyOptions(opts).merge
	if prev, ok := t.pending[path]; ok && merge {
		// fold successive merges so commit applies one write per path
		combined, err := mergeJSON(prev.data, data)
		if err != nil {
			return err
		}
		data = combined
		merge = prev.merge
	}
	t.seq++
	t.pending[path] = memWrite{collection: collection, data: data, merge: merge, seq: t.seq}
	return nil
}

func (t *memTx) commit() error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for path, version := range t.reads {
		if m.docs[path].version != version {
			return ErrConflict
		}
	}

	writes := make([]string, 0, len(t.pending))
	for path := range t.pending {
		writes = append(writes, path)
	}
	sort.Slice(writes, func(i, j int) bool { return t.pending[writes[i]].seq < t.pending[writes[j]].seq })

	for _, path := range writes {
		w := t.pending[path]
		if err := m.write(path, w.collection, w.data, w.merge); err != nil {
			return err
		}
	}
	return nil
}
