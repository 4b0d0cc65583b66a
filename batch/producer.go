package batch

import (
	"context"

	"dynamapper/item"
)

// WriteKind distinguishes the two batch write operations.
type WriteKind string

const (
	PutWrite    WriteKind = "put"
	DeleteWrite WriteKind = "delete"
)

// ReadElement is one batch-get input: an item whose key attributes are set.
// On success the same instance is hydrated with the fetched attributes and
// yielded on the output stream.
type ReadElement struct {
	Item item.Item
}

// WriteElement is one batch-write input: a put of the full item or a delete
// by its key.
type WriteElement struct {
	Kind WriteKind
	Item item.Item
}

// Put wraps an item as a put write.
func Put(it item.Item) WriteElement { return WriteElement{Kind: PutWrite, Item: it} }

// Delete wraps an item as a delete write.
func Delete(it item.Item) WriteElement { return WriteElement{Kind: DeleteWrite, Item: it} }

// Producer is the pull cursor the batch engine consumes. Next returns the
// next element, or ok=false when the stream is exhausted. Implementations may
// block; the engine races the producer against in-flight retry timers.
type Producer[E any] interface {
	Next(ctx context.Context) (elem E, ok bool, err error)
}

// SliceProducer adapts a slice into a synchronous Producer.
type SliceProducer[E any] struct {
	elems []E
	pos   int
}

// NewSliceProducer creates a producer over the given elements.
func NewSliceProducer[E any](elems []E) *SliceProducer[E] {
	return &SliceProducer[E]{elems: elems}
}

func (p *SliceProducer[E]) Next(_ context.Context) (E, bool, error) {
	var zero E
	if p.pos >= len(p.elems) {
		return zero, false, nil
	}
	e := p.elems[p.pos]
	p.pos++
	return e, true, nil
}

// ChanProducer adapts a channel into an asynchronous Producer; the stream is
// exhausted when the channel is closed.
type ChanProducer[E any] struct {
	ch <-chan E
}

// NewChanProducer creates a producer draining the given channel.
func NewChanProducer[E any](ch <-chan E) *ChanProducer[E] {
	return &ChanProducer[E]{ch: ch}
}

func (p *ChanProducer[E]) Next(ctx context.Context) (E, bool, error) {
	var zero E
	select {
	case e, ok := <-p.ch:
		if !ok {
			return zero, false, nil
		}
		return e, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}
