package paginator

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dynamapper/expressions"
	"dynamapper/item"
	appErrors "dynamapper/pkg/errors"
)

// MaxScanSegments is the store's limit on TotalSegments.
const MaxScanSegments = 1000000

// SegmentState is one segment's position in a parallel scan. A segment that
// is Initialized with a nil LastEvaluatedKey is complete and is not scanned
// again on resumption; an uninitialized segment starts from the beginning.
type SegmentState struct {
	Initialized      bool
	LastEvaluatedKey map[string]any
}

// ScanState snapshots a parallel scan, one entry per segment. It can be
// handed to a new ParallelScanner to resume the operation.
type ScanState []SegmentState

// ParallelScanOptions configures a parallel scan.
type ParallelScanOptions struct {
	// Filter is applied server-side to each evaluated item.
	Filter expressions.ConditionExpression
	// Projection limits the attributes fetched.
	Projection     expressions.ProjectionExpression
	ConsistentRead bool
	// PageSize caps the items per RPC for each segment.
	PageSize int32
	// State resumes a previous parallel scan. Its length must equal the
	// segment count.
	State ScanState

	Logger          *zap.Logger
	TableNamePrefix string
	// CallOptions are applied to every outbound RPC.
	CallOptions []func(*dynamodb.Options)
}

type segMsg struct {
	seg  int
	it   item.Item
	key  map[string]any
	err  error
	done bool
}

// ParallelScanner runs one scan worker per segment and merges their results
// into a single stream. Each worker holds at most one unconsumed item, so a
// slow consumer applies backpressure to every segment.
type ParallelScanner struct {
	client   ScanAPI
	ctor     item.Constructor
	segments int
	opts     ParallelScanOptions
	logger   *zap.Logger
	opID     string

	mu    sync.Mutex
	state ScanState

	started bool
	active  int
	merged  chan segMsg
	cancel  context.CancelFunc
	runCtx  context.Context
	termErr error
}

// NewParallelScanner prepares a parallel scan over the constructor's item
// type split into the given number of segments.
func NewParallelScanner(client ScanAPI, ctor item.Constructor, segments int, opts *ParallelScanOptions) (*ParallelScanner, error) {
	if opts == nil {
		opts = &ParallelScanOptions{}
	}
	if segments < 1 || segments > MaxScanSegments {
		return nil, appErrors.NewInvalidValue("segment count out of range", segments)
	}
	if opts.State != nil && len(opts.State) != segments {
		return nil, appErrors.NewInvalidValue("scan state length does not match segment count", len(opts.State))
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	state := make(ScanState, segments)
	copy(state, opts.State)

	return &ParallelScanner{
		client:   client,
		ctor:     ctor,
		segments: segments,
		opts:     *opts,
		logger:   logger,
		opID:     uuid.NewString(),
		state:    state,
		merged:   make(chan segMsg),
	}, nil
}

// Next yields the next item from any segment. ok=false with a nil error marks
// the completion of every segment.
func (s *ParallelScanner) Next(ctx context.Context) (item.Item, bool, error) {
	if s.termErr != nil {
		return nil, false, s.termErr
	}
	if !s.started {
		s.start()
	}
	for {
		if s.active == 0 {
			return nil, false, nil
		}
		select {
		case msg := <-s.merged:
			if msg.err != nil {
				s.termErr = msg.err
				s.Close()
				return nil, false, msg.err
			}
			if msg.done {
				s.setSegmentState(msg.seg, SegmentState{Initialized: true})
				s.active--
				continue
			}
			s.setSegmentState(msg.seg, SegmentState{Initialized: true, LastEvaluatedKey: msg.key})
			return msg.it, true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Close stops all segment workers. The scan state remains readable.
func (s *ParallelScanner) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// State snapshots the per-segment progress for later resumption.
func (s *ParallelScanner) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(ScanState, len(s.state))
	copy(out, s.state)
	return out
}

func (s *ParallelScanner) start() {
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(context.Background())

	for seg := 0; seg < s.segments; seg++ {
		resume := s.state[seg]
		if resume.Initialized && resume.LastEvaluatedKey == nil {
			continue
		}
		s.active++
		go s.runSegment(seg, resume)
	}

	s.logger.Debug("parallel scan started",
		zap.String("operation_id", s.opID),
		zap.Int("segments", s.segments),
		zap.Int("active", s.active))
}

func (s *ParallelScanner) runSegment(seg int, resume SegmentState) {
	p, err := NewScanPaginator(s.client, s.ctor, s.segmentOptions(seg, resume))
	if err != nil {
		s.send(segMsg{seg: seg, err: err})
		return
	}
	for {
		it, ok, err := p.Next(s.runCtx)
		if err != nil {
			s.send(segMsg{seg: seg, err: err})
			return
		}
		if !ok {
			s.send(segMsg{seg: seg, done: true})
			return
		}
		if !s.send(segMsg{seg: seg, it: it, key: p.LastEvaluatedKey()}) {
			return
		}
	}
}

func (s *ParallelScanner) segmentOptions(seg int, resume SegmentState) *ScanOptions {
	return &ScanOptions{
		Filter:          s.opts.Filter,
		Projection:      s.opts.Projection,
		ConsistentRead:  s.opts.ConsistentRead,
		PageSize:        s.opts.PageSize,
		Segment:         aws.Int32(int32(seg)),
		TotalSegments:   aws.Int32(int32(s.segments)),
		StartKey:        resume.LastEvaluatedKey,
		Logger:          s.logger,
		TableNamePrefix: s.opts.TableNamePrefix,
		CallOptions:     s.opts.CallOptions,
	}
}

func (s *ParallelScanner) send(msg segMsg) bool {
	select {
	case s.merged <- msg:
		return true
	case <-s.runCtx.Done():
		return false
	}
}

func (s *ParallelScanner) setSegmentState(seg int, st SegmentState) {
	s.mu.Lock()
	s.state[seg] = st
	s.mu.Unlock()
}
