package operations

import (
	"context"
	"sync"

	"github.com/memlab/memwatch/internal/detection"
	"github.com/memlab/memwatch/internal/operations/operators"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const DefaultQueueSize = 16

var (
	ErrPipelineNotRunning = errors.New("pipeline not running")
	ErrQueueFull          = errors.New("operations queue full")
)

// Pipeline runs operators one at a time on a single worker, in the order they were
// enqueued. Enqueue never blocks; a full queue drops the operator.
type Pipeline struct {
	logger    *zap.Logger
	waitGroup sync.WaitGroup
	context   context.Context
	cancel    context.CancelFunc
	queue     chan operators.Operator
	handler   detection.EventHandler
	running   *atomic.Bool
}

// NewPipeline builds a stopped pipeline. handler receives events queued through Handle.
func NewPipeline(ctx context.Context, rootLogger *zap.Logger, handler detection.EventHandler, queueSize int) *Pipeline {
	logger := rootLogger.Named("operations-pipeline")
	ctx, cancel := context.WithCancel(ctx)

	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Pipeline{
		logger:  logger,
		context: ctx,
		cancel:  cancel,
		queue:   make(chan operators.Operator, queueSize),
		handler: handler,
		running: atomic.NewBool(false),
	}
}

func (p *Pipeline) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("pipeline already running")
	}
	if p.context.Err() != nil {
		p.running.Store(false)
		return errors.WithMessage(p.context.Err(), "start pipeline")
	}

	p.waitGroup.Add(1)
	go p.run()
	return nil
}

func (p *Pipeline) run() {
	defer p.waitGroup.Done()

	for {
		select {
		case <-p.context.Done():
			if pending := len(p.queue); pending > 0 {
				p.logger.Warn("Discarding pending operations", zap.Int("Pending", pending))
			}
			return

		case operator := <-p.queue:
			if err := p.operate(operator); err != nil && operator.StopOnFailure() {
				p.logger.Error("Stopping pipeline on failure", zap.String("Operator", operator.Name()))
				p.cancel()
			}
		}
	}
}

func (p *Pipeline) operate(operator operators.Operator) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("operator panicked: %v", r)
			p.logger.Error("Operator panicked", zap.String("Operator", operator.Name()), zap.Any("Panic", r))
		}
	}()

	if err = operator.Operate(p.context); err != nil {
		p.logger.Error("Operator failed", zap.String("Operator", operator.Name()), zap.Error(err))
	}
	return err
}

func (p *Pipeline) Enqueue(operator operators.Operator) error {
	if !p.running.Load() {
		return ErrPipelineNotRunning
	}

	select {
	case p.queue <- operator:
		return nil
	default:
		p.logger.Error("Dropped operator, queue is full", zap.String("Operator", operator.Name()),
			zap.Int("QueueSize", cap(p.queue)))
		return ErrQueueFull
	}
}

// Handle queues the event for dispatch on the pipeline's worker. The operator runs
// under the pipeline's context, so stopping a monitoring session does not cancel
// notifications already queued.
func (p *Pipeline) Handle(ctx context.Context, event *detection.AlertEvent, recipients []string) error {
	return p.Enqueue(operators.NewDispatchOperator(p.handler, event, recipients))
}

func (p *Pipeline) WaitUntilCompletion() {
	p.waitGroup.Wait()
	p.running.Store(false)
}

func (p *Pipeline) Running() bool {
	return p.running.Load()
}

func (p *Pipeline) Stop() error {
	p.cancel()
	return nil
}
