package repository

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/okian/vsrank/pkg/metrics"
	"github.com/twmb/murmur3"
)

// Treap-based, in-memory Index implementation.
//
// Ordering: key DESC, then id ASC. "less" means ranks earlier, so in-order
// traversal yields the leaderboard from best to worst. Priorities are a hash
// of the id, which keeps the tree balanced in expectation no matter how keys
// are distributed, and stay stable across updates of the same id.

type node struct {
	id    int64
	key   float64
	mu    float64
	sigma float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aKey, aID) should appear before (bKey, bID).
func less(aKey float64, aID int64, bKey float64, bID int64) bool {
	if aKey != bKey {
		return aKey > bKey
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, nn *node) *node {
	if n == nil {
		nn.size = 1
		return nn
	}
	if less(nn.key, nn.id, n.key, n.id) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id int64, key float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case key == n.key && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, key)
		}
	case less(key, id, n.key, n.id):
		n.left = deleteNode(n.left, id, key)
	default:
		n.right = deleteNode(n.right, id, key)
	}
	fix(n)
	return n
}

// rankOf returns the 1-based position of (key, id), or 0 if absent.
func rankOf(n *node, id int64, key float64) int {
	r := 0
	for n != nil {
		switch {
		case key == n.key && id == n.id:
			return r + nsize(n.left) + 1
		case less(key, id, n.key, n.id):
			n = n.left
		default:
			r += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.entry(len(*out)+1))
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

func (n *node) entry(rank int) Entry {
	return Entry{Rank: rank, ID: n.id, Key: n.key, Mu: n.mu, Sigma: n.sigma}
}

// TreapIndex is an Index safe for concurrent use.
type TreapIndex struct {
	mu   sync.RWMutex
	root *node
	byID map[int64]*node
	seed uint64
}

// NewTreapIndex constructs an empty index.
func NewTreapIndex(opts ...Option) *TreapIndex {
	t := &TreapIndex{
		byID: make(map[int64]*node),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TreapIndex) priority(id int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return murmur3.SeedSum64(t.seed, buf[:])
}

// Upsert implements Index.Upsert in O(log n) expected time.
func (t *TreapIndex) Upsert(_ context.Context, e Entry) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	t.mu.Lock()
	old, exists := t.byID[e.ID]
	if exists {
		t.root = deleteNode(t.root, old.id, old.key)
	}
	nn := &node{id: e.ID, key: e.Key, mu: e.Mu, sigma: e.Sigma, prio: t.priority(e.ID)}
	t.byID[e.ID] = nn
	t.root = insert(t.root, nn)
	t.mu.Unlock()

	if !exists {
		metrics.AddRepositoryRecords(1)
	}
}

// Remove implements Index.Remove.
func (t *TreapIndex) Remove(_ context.Context, id int64) bool {
	t.mu.Lock()
	old, ok := t.byID[id]
	if ok {
		t.root = deleteNode(t.root, old.id, old.key)
		delete(t.byID, id)
	}
	t.mu.Unlock()

	if ok {
		metrics.AddRepositoryRecords(-1)
	}
	return ok
}

// Get returns the entry and rank for id in O(log n).
func (t *TreapIndex) Get(_ context.Context, id int64) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return n.entry(rankOf(t.root, n.id, n.key)), nil
}

// TopN returns the top n entries.
func (t *TreapIndex) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(t.byID)))
	collectTopN(t.root, n, &out)
	return out, nil
}

// Contains reports whether id is indexed.
func (t *TreapIndex) Contains(id int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byID[id]
	return ok
}

// Count returns the number of indexed participants.
func (t *TreapIndex) Count(_ context.Context) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// Load discards the current contents and indexes entries. A later entry
// with a repeated ID wins.
func (t *TreapIndex) Load(_ context.Context, entries []Entry) {
	t.mu.Lock()
	before := len(t.byID)
	t.root = nil
	t.byID = make(map[int64]*node, len(entries))
	for _, e := range entries {
		if old, ok := t.byID[e.ID]; ok {
			t.root = deleteNode(t.root, old.id, old.key)
		}
		nn := &node{id: e.ID, key: e.Key, mu: e.Mu, sigma: e.Sigma, prio: t.priority(e.ID)}
		t.byID[e.ID] = nn
		t.root = insert(t.root, nn)
	}
	after := len(t.byID)
	t.mu.Unlock()

	metrics.AddRepositoryRecords(after - before)
}
