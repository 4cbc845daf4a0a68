package store

import "context"

// Backend is the small slice of a Redis-like key-value store the card pools
// and account registry are built on. Implementations must apply a Batch
// atomically: either every op lands or none does.
type Backend interface {
	// SPopN removes and returns up to n random members. A short or empty
	// pool is not an error.
	SPopN(ctx context.Context, key string, n int64) ([]string, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	// SAdd reports how many members were new.
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	// RenameNX moves src to dst only when dst does not exist. It reports
	// false, without error, when src is missing or dst is already taken.
	RenameNX(ctx context.Context, src, dst string) (bool, error)
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	// Scan lists keys matching a glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)
	Exec(ctx context.Context, b *Batch) error
}

type opKind int

const (
	opSAdd opKind = iota
	opSRem
	opDel
	opHSet
	opHDel
	opHIncrBy
	opRPushTrim
)

type op struct {
	kind    opKind
	key     string
	members []string
	fields  map[string]string
	delta   int64
	keep    int64
}

// Batch is an ordered list of writes applied as one transaction.
type Batch struct {
	ops []op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) SAdd(key string, members ...string) *Batch {
	if len(members) > 0 {
		b.ops = append(b.ops, op{kind: opSAdd, key: key, members: members})
	}
	return b
}

func (b *Batch) SRem(key string, members ...string) *Batch {
	if len(members) > 0 {
		b.ops = append(b.ops, op{kind: opSRem, key: key, members: members})
	}
	return b
}

func (b *Batch) Del(keys ...string) *Batch {
	for _, k := range keys {
		b.ops = append(b.ops, op{kind: opDel, key: k})
	}
	return b
}

func (b *Batch) HSet(key string, fields map[string]string) *Batch {
	if len(fields) > 0 {
		b.ops = append(b.ops, op{kind: opHSet, key: key, fields: fields})
	}
	return b
}

func (b *Batch) HDel(key string, fields ...string) *Batch {
	if len(fields) > 0 {
		b.ops = append(b.ops, op{kind: opHDel, key: key, members: fields})
	}
	return b
}

func (b *Batch) HIncrBy(key, field string, delta int64) *Batch {
	b.ops = append(b.ops, op{kind: opHIncrBy, key: key, members: []string{field}, delta: delta})
	return b
}

// RPushTrim appends value and keeps only the newest keep entries. A keep
// of zero leaves the list unbounded.
func (b *Batch) RPushTrim(key, value string, keep int64) *Batch {
	b.ops = append(b.ops, op{kind: opRPushTrim, key: key, members: []string{value}, keep: keep})
	return b
}

// Len is the number of queued writes.
func (b *Batch) Len() int {
	return len(b.ops)
}
