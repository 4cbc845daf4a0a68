package store

import (
	"context"
	"math/rand"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend for tests and local play.
type MemoryBackend struct {
	mu      sync.Mutex
	sets    map[string]map[string]struct{}
	hashes  map[string]map[string]string
	lists   map[string][]string
	strings map[string]string
	rng     *rand.Rand
	fail    error
}

// NewMemoryBackend returns an empty store. A nil rng is seeded from the clock.
func NewMemoryBackend(rng *rand.Rand) *MemoryBackend {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &MemoryBackend{
		sets:    make(map[string]map[string]struct{}),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		strings: make(map[string]string),
		rng:     rng,
	}
}

// SetFailure makes every subsequent call return err until cleared with nil.
func (m *MemoryBackend) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MemoryBackend) SPopN(ctx context.Context, key string, n int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}

	set := m.sets[key]
	members := sortedMembers(set)
	m.rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
	if int64(len(members)) > n {
		members = members[:n]
	}
	for _, member := range members {
		delete(set, member)
	}
	if len(set) == 0 {
		delete(m.sets, key)
	}
	return members, nil
}

func (m *MemoryBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return sortedMembers(m.sets[key]), nil
}

func (m *MemoryBackend) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	return m.sadd(key, members), nil
}

func (m *MemoryBackend) RenameNX(ctx context.Context, src, dst string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	if m.exists(dst) {
		return false, nil
	}

	moved := false
	if v, ok := m.sets[src]; ok {
		m.sets[dst] = v
		delete(m.sets, src)
		moved = true
	} else if v, ok := m.hashes[src]; ok {
		m.hashes[dst] = v
		delete(m.hashes, src)
		moved = true
	} else if v, ok := m.lists[src]; ok {
		m.lists[dst] = v
		delete(m.lists, src)
		moved = true
	} else if v, ok := m.strings[src]; ok {
		m.strings[dst] = v
		delete(m.strings, src)
		moved = true
	}
	return moved, nil
}

func (m *MemoryBackend) HGet(ctx context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", false, m.fail
	}
	v, ok := m.hashes[key][field]
	return v, ok, nil
}

func (m *MemoryBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryBackend) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	if _, ok := m.hashes[key][field]; ok {
		return false, nil
	}
	m.hset(key, map[string]string{field: value})
	return true, nil
}

func (m *MemoryBackend) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	n, _ := strconv.ParseInt(m.strings[key], 10, 64)
	n++
	m.strings[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *MemoryBackend) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	list := m.lists[key]
	lo, hi := normalizeRange(int64(len(list)), start, stop)
	if lo > hi {
		return []string{}, nil
	}
	return append([]string(nil), list[lo:hi+1]...), nil
}

func (m *MemoryBackend) LLen(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	return int64(len(m.lists[key])), nil
}

func (m *MemoryBackend) Scan(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	var keys []string
	match := func(k string) {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	for k := range m.sets {
		match(k)
	}
	for k := range m.hashes {
		match(k)
	}
	for k := range m.lists {
		match(k)
	}
	for k := range m.strings {
		match(k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Exec applies every op under one lock, so readers never see half a batch.
func (m *MemoryBackend) Exec(ctx context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if b == nil {
		return nil
	}

	for _, o := range b.ops {
		switch o.kind {
		case opSAdd:
			m.sadd(o.key, o.members)
		case opSRem:
			set := m.sets[o.key]
			for _, member := range o.members {
				delete(set, member)
			}
			if len(set) == 0 {
				delete(m.sets, o.key)
			}
		case opDel:
			m.del(o.key)
		case opHSet:
			m.hset(o.key, o.fields)
		case opHDel:
			h := m.hashes[o.key]
			for _, f := range o.members {
				delete(h, f)
			}
			if len(h) == 0 {
				delete(m.hashes, o.key)
			}
		case opHIncrBy:
			h := m.hashes[o.key]
			n, _ := strconv.ParseInt(h[o.members[0]], 10, 64)
			m.hset(o.key, map[string]string{o.members[0]: strconv.FormatInt(n+o.delta, 10)})
		case opRPushTrim:
			list := append(m.lists[o.key], o.members[0])
			if o.keep > 0 && int64(len(list)) > o.keep {
				list = list[int64(len(list))-o.keep:]
			}
			m.lists[o.key] = list
		}
	}
	return nil
}

func (m *MemoryBackend) sadd(key string, members []string) int64 {
	if len(members) == 0 {
		return 0
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	var added int64
	for _, member := range members {
		if _, ok := set[member]; !ok {
			set[member] = struct{}{}
			added++
		}
	}
	return added
}

func (m *MemoryBackend) hset(key string, fields map[string]string) {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
}

func (m *MemoryBackend) exists(key string) bool {
	if _, ok := m.sets[key]; ok {
		return true
	}
	if _, ok := m.hashes[key]; ok {
		return true
	}
	if _, ok := m.lists[key]; ok {
		return true
	}
	_, ok := m.strings[key]
	return ok
}

func (m *MemoryBackend) del(key string) {
	delete(m.sets, key)
	delete(m.hashes, key)
	delete(m.lists, key)
	delete(m.strings, key)
}

func sortedMembers(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}

func normalizeRange(n, start, stop int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
