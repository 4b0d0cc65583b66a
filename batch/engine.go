// Package batch implements the streaming batch engine: it accepts a possibly
// unbounded stream of heterogeneous items destined for multiple tables,
// groups them into store-sized batches, dispatches the batch RPCs, routes
// unprocessed items into per-table retry queues governed by randomized
// exponential backoff, and yields successfully processed items as a lazy
// stream.
package batch

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"dynamapper/item"
	"dynamapper/schema"
)

// MaxReadBatchSize is the store's limit on keys per batch-get RPC.
const MaxReadBatchSize = 100

// MaxWriteBatchSize is the store's limit on requests per batch-write RPC.
const MaxWriteBatchSize = 25

// element is one marshalled unit of work: a key (reads and deletes) or a full
// item (puts), tagged with its table and correlation identifier.
type element struct {
	table string
	id    string
	kind  WriteKind
	attrs map[string]types.AttributeValue
}

// itemConfig preserves the schema and original instance for an identifier so
// the item can be reconstructed when its response or retry entry arrives.
type itemConfig struct {
	schema schema.Schema
	item   item.Item
}

// tableState is the per-table record of the engine. Exactly one of the ready
// queue (shared across tables) and the table's unprocessed queue holds each
// not-yet-completed element at any instant.
type tableState struct {
	name          string
	keyProperties []string

	consistentRead bool
	projection     *string
	exprNames      map[string]string

	backoffFactor int
	configs       map[string]*itemConfig

	throttled   bool
	unprocessed []*element
}

// dispatcher is implemented by the read and write batchers; the shared engine
// drives queueing, throttling and termination through it.
type dispatcher interface {
	enqueue(msg inputMsg) error
	dispatch(ctx context.Context, batch []*element) error
}

type inputMsg struct {
	read  *ReadElement
	write *WriteElement
	err   error
}

// engine is the single-threaded cooperative core shared by ReadBatcher and
// WriteBatcher. A consumer's Next call suspends on exactly one of: the input
// producer's next element, any in-flight throttling waiter, or the outbound
// RPC.
type engine struct {
	logger    *zap.Logger
	opID      string
	batchSize int
	randFloat func() float64

	d dispatcher

	tables map[string]*tableState
	ready  []*element
	out    []item.Item

	inputCh   chan inputMsg
	wakeCh    chan string
	closed    chan struct{}
	inputDone bool
	termErr   error
	finished  bool
}

func newEngine(batchSize int, logger *zap.Logger, opID string, randFloat func() float64) *engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if randFloat == nil {
		randFloat = rand.Float64
	}
	return &engine{
		logger:    logger,
		opID:      opID,
		batchSize: batchSize,
		randFloat: randFloat,
		tables:    make(map[string]*tableState),
		inputCh:   make(chan inputMsg),
		wakeCh:    make(chan string, 1),
		closed:    make(chan struct{}),
	}
}

// pump drains the producer into the input channel until exhaustion, error, or
// engine close.
func pump[E any](e *engine, producer Producer[E], wrap func(E) inputMsg) {
	go func() {
		defer close(e.inputCh)
		for {
			elem, ok, err := producer.Next(context.Background())
			if err != nil {
				select {
				case e.inputCh <- inputMsg{err: err}:
				case <-e.closed:
				}
				return
			}
			if !ok {
				return
			}
			select {
			case e.inputCh <- wrap(elem):
			case <-e.closed:
				return
			}
		}
	}()
}

// next advances the engine until an output item is available, the operation
// terminates, or the context is cancelled.
func (e *engine) next(ctx context.Context) (item.Item, bool, error) {
	for {
		if len(e.out) > 0 {
			it := e.out[0]
			e.out = e.out[1:]
			return it, true, nil
		}
		if e.termErr != nil {
			e.close()
			return nil, false, e.termErr
		}
		if e.inputDone && len(e.ready) == 0 && !e.anyThrottled() {
			e.close()
			return nil, false, nil
		}

		if len(e.ready) >= e.batchSize {
			if err := e.dispatchReady(ctx); err != nil {
				e.termErr = err
			}
			continue
		}

		if e.inputDone {
			if len(e.ready) > 0 {
				if err := e.dispatchReady(ctx); err != nil {
					e.termErr = err
				}
				continue
			}
			// Only throttled work remains; await a waiter.
			select {
			case table := <-e.wakeCh:
				e.unthrottle(table)
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
			continue
		}

		select {
		case msg, ok := <-e.inputCh:
			if !ok {
				e.inputDone = true
				continue
			}
			if msg.err != nil {
				e.termErr = msg.err
				continue
			}
			if err := e.d.enqueue(msg); err != nil {
				e.termErr = err
			}
		case table := <-e.wakeCh:
			e.unthrottle(table)
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

func (e *engine) close() {
	if !e.finished {
		e.finished = true
		close(e.closed)
	}
}

func (e *engine) anyThrottled() bool {
	for _, state := range e.tables {
		if state.throttled {
			return true
		}
	}
	return false
}

// route places a prepared element on the table's unprocessed queue while the
// table is throttled, and on the shared ready queue otherwise.
func (e *engine) route(state *tableState, el *element) {
	if state.throttled {
		state.unprocessed = append(state.unprocessed, el)
		return
	}
	e.ready = append(e.ready, el)
}

// dispatchReady drains up to batchSize elements from the ready queue into a
// single RPC.
func (e *engine) dispatchReady(ctx context.Context) error {
	n := len(e.ready)
	if n > e.batchSize {
		n = e.batchSize
	}
	batch := e.ready[:n]
	e.ready = e.ready[n:]
	return e.d.dispatch(ctx, batch)
}

// throttle records a server unprocessed-items report for a table: the
// server-reported elements are prepended to the table's retry queue, any
// still-ready elements for the table follow, and a waiter is installed whose
// delay is floor(random() * 2^backoffFactor) milliseconds.
func (e *engine) throttle(state *tableState, serverUnprocessed []*element) {
	state.unprocessed = append(serverUnprocessed, state.unprocessed...)

	kept := e.ready[:0]
	for _, el := range e.ready {
		if el.table == state.name {
			state.unprocessed = append(state.unprocessed, el)
			continue
		}
		kept = append(kept, el)
	}
	e.ready = kept

	if state.throttled {
		return
	}

	delay := time.Duration(math.Floor(e.randFloat()*math.Pow(2, float64(state.backoffFactor)))) * time.Millisecond
	if delay == 0 {
		// A zero delay retries on the spot without a waiter.
		e.ready = append(e.ready, state.unprocessed...)
		state.unprocessed = nil
		return
	}
	state.throttled = true

	e.logger.Warn("table throttled, scheduling retry",
		zap.String("operation_id", e.opID),
		zap.String("table", state.name),
		zap.Int("unprocessed", len(state.unprocessed)),
		zap.Int("backoff_factor", state.backoffFactor),
		zap.Duration("delay", delay))

	table := state.name
	time.AfterFunc(delay, func() {
		select {
		case e.wakeCh <- table:
		case <-e.closed:
		}
	})
}

// unthrottle drains the table's retry queue back into the ready queue,
// preserving order.
func (e *engine) unthrottle(table string) {
	state, ok := e.tables[table]
	if !ok || !state.throttled {
		return
	}
	state.throttled = false
	e.ready = append(e.ready, state.unprocessed...)
	state.unprocessed = nil

	e.logger.Debug("table retry window open",
		zap.String("operation_id", e.opID),
		zap.String("table", table))
}

// decrementBackoff floors the factor at zero.
func (state *tableState) decrementBackoff() {
	if state.backoffFactor > 0 {
		state.backoffFactor--
	}
}
