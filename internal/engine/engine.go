// Package engine runs the calibration state machine: it authorizes callers,
// commits inspections, repairs and charge refreshes, collects fees, and keeps
// the staking subsystem informed. Every mutation goes through store.DB.InTx,
// and the events it produces are written in the same transaction.
package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/collab"
	"github.com/lazypower/calibrator/internal/store"
)

// Engine orchestrates calibration records against their collaborators.
type Engine struct {
	DB         *store.DB
	Registries collab.Registries
	Staking    collab.Staking

	emitter  Emitter
	payments func(*store.Repo) collab.Payments
	nowFn    func() int64
	ids      *snowflake.Node

	// mu serializes mutating operations. Reads do not take it.
	mu sync.Mutex
	// callouts counts collaborator calls in flight. A callback cannot be
	// told apart from its context alone, so any mutation entered while one
	// is running is rejected rather than left waiting on mu.
	callouts atomic.Int32
}

// New creates an Engine over db resolving item ownership through registries.
func New(db *store.DB, registries collab.Registries) *Engine {
	// Node 0 is always within snowflake's range.
	ids, _ := snowflake.NewNode(0)
	return &Engine{
		DB:         db,
		Registries: registries,
		emitter:    NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
		ids: ids,
	}
}

// SetStaking configures the staking collaborator. Nil disables staking
// delegation and sync.
func (e *Engine) SetStaking(s collab.Staking) {
	e.Staking = s
}

// SetEmitter configures where committed events are forwarded.
func (e *Engine) SetEmitter(emitter Emitter) {
	if emitter == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		return
	}
	e.nowFn = now
}

// SetNodeID sets the snowflake node that stamps event ids.
func (e *Engine) SetNodeID(id int64) error {
	node, err := snowflake.NewNode(id)
	if err != nil {
		return err
	}
	e.ids = node
	return nil
}

// SetPayments overrides the fee token. By default fees move through the
// store's balance ledger on the operation's own transaction.
func (e *Engine) SetPayments(fn func(*store.Repo) collab.Payments) {
	e.payments = fn
}

func (e *Engine) now() int64 {
	return e.nowFn()
}

type guardKey struct{}

// enter rejects calls made from inside one of this engine's collaborator
// callbacks, then takes the mutation lock. The returned context carries the
// marker and must be the one handed to collaborators.
func (e *Engine) enter(ctx context.Context) (context.Context, func(), error) {
	if owner, _ := ctx.Value(guardKey{}).(*Engine); owner == e {
		return ctx, func() {}, ErrReentrant
	}
	if e.callouts.Load() > 0 {
		return ctx, func() {}, ErrReentrant
	}
	e.mu.Lock()
	return context.WithValue(ctx, guardKey{}, e), e.mu.Unlock, nil
}

// collaborating marks a collaborator call in flight until the returned
// func runs.
func (e *Engine) collaborating() func() {
	e.callouts.Add(1)
	return func() { e.callouts.Add(-1) }
}

func (e *Engine) event(kind string, groupID, itemID uint64, actor calibration.Address, attrs map[string]any) store.Event {
	return store.Event{
		ID:        e.ids.Generate().Int64(),
		Kind:      kind,
		GroupID:   groupID,
		ItemID:    itemID,
		Actor:     actor,
		Attrs:     attrs,
		CreatedAt: e.now(),
	}
}

// journal collects the events of one transaction.
type journal struct {
	events []store.Event
}

func (j *journal) add(evt store.Event) {
	j.events = append(j.events, evt)
}

func (j *journal) write(tx *store.Repo) error {
	for _, evt := range j.events {
		if err := tx.AppendEvent(evt); err != nil {
			return err
		}
	}
	return nil
}

// commit runs fn in a transaction, persists the journal with it, and forwards
// the events once the transaction is durable.
func (e *Engine) commit(ctx context.Context, fn func(tx *store.Repo, j *journal) error) error {
	var j journal
	err := e.DB.InTx(ctx, func(tx *store.Repo) error {
		if err := fn(tx, &j); err != nil {
			return err
		}
		return j.write(tx)
	})
	if err != nil {
		return err
	}
	e.publish(j.events...)
	return nil
}

func (e *Engine) publish(events ...store.Event) {
	for _, evt := range events {
		e.emitter.Emit(evt)
	}
}

// record writes and publishes an event outside any transaction. Used for
// after-the-fact notes such as staking sync results.
func (e *Engine) record(evt store.Event) {
	if err := e.DB.AppendEvent(evt); err != nil {
		log.Printf("events: append %s: %v", evt.Kind, err)
	}
	e.publish(evt)
}
