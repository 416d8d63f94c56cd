package storage

import (
	"context"
	"sync"
)

// Snapshotter is implemented by in-memory stores that take part in transactions.
// Snapshot captures the current contents and returns a function restoring them.
type Snapshotter interface {
	Snapshot() (restore func())
}

type txKey struct{}

// InMemoryTxRunner gives in-memory stores transaction semantics: transactions are
// serialized behind one mutex, and a failed transaction restores every participant
// to the state it had when the transaction began.
type InMemoryTxRunner struct {
	mu           sync.Mutex
	participants []Snapshotter
}

// NewInMemoryTxRunner builds a runner over the given participants.
func NewInMemoryTxRunner(participants ...Snapshotter) *InMemoryTxRunner {
	return &InMemoryTxRunner{participants: participants}
}

// Register adds participants after construction.
func (r *InMemoryTxRunner) Register(participants ...Snapshotter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = append(r.participants, participants...)
}

// RunInTx runs fn while holding the transaction lock. Calls made from inside fn
// join the outer transaction.
func (r *InMemoryTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	restores := make([]func(), 0, len(r.participants))
	for _, p := range r.participants {
		restores = append(restores, p.Snapshot())
	}
	defer func() {
		if p := recover(); p != nil {
			rollback(restores)
			panic(p)
		}
		if err != nil {
			rollback(restores)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, struct{}{}))
}

// InTx reports whether ctx belongs to an in-memory transaction.
func InTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

func rollback(restores []func()) {
	for i := len(restores) - 1; i >= 0; i-- {
		restores[i]()
	}
}

// CloneMap copies a map so snapshots do not alias live store state.
func CloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
