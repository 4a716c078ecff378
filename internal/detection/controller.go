package detection

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/memlab/memwatch/internal/logging"
	"github.com/memlab/memwatch/internal/metrics"
	"github.com/memlab/memwatch/internal/sampling"
	"github.com/memlab/memwatch/internal/state"
	"github.com/memlab/memwatch/internal/types"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v3"
)

type Sampler interface {
	Sample(ctx context.Context, processName string) sampling.Sample
}

// EventHandler receives every emitted event. Its errors are logged and never stop
// the loop.
type EventHandler interface {
	Handle(ctx context.Context, event *AlertEvent, recipients []string) error
}

type SessionHandle string

type session struct {
	handle    SessionHandle
	config    MonitorConfig
	context   context.Context
	cancel    context.CancelFunc
	running   *atomic.Bool
	startedAt time.Time
}

type ControllerOptions struct {
	Store     *state.Store
	Metrics   *metrics.Metrics
	NewTicker TickerFactory
}

// Controller runs at most one monitoring session at a time, on a single worker
// goroutine that exclusively owns the session's MonitorState.
type Controller struct {
	logger    *zap.Logger
	feed      *logging.Feed
	sampler   Sampler
	handler   EventHandler
	store     *state.Store
	metrics   *metrics.Metrics
	newTicker TickerFactory
	context   context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	lock      sync.Mutex
	current   *session
}

func NewController(rootLogger *zap.Logger, feed *logging.Feed, sampler Sampler, handler EventHandler,
	options ControllerOptions) *Controller {
	logger := rootLogger.Named("detection-controller")
	ctx, cancel := context.WithCancel(context.Background())

	if options.Store == nil {
		options.Store = state.NewStore()
	}
	if options.NewTicker == nil {
		options.NewTicker = NewTimeTicker
	}

	return &Controller{
		logger:    logger,
		feed:      feed,
		sampler:   sampler,
		handler:   handler,
		store:     options.Store,
		metrics:   options.Metrics,
		newTicker: options.NewTicker,
		context:   ctx,
		cancel:    cancel,
	}
}

// Start launches a session for config. Starting while a session runs is a no-op
// returning the running session's handle.
func (c *Controller) Start(config MonitorConfig) (SessionHandle, error) {
	if valid, err := config.Valid(); !valid {
		return "", errInvalidConfig(err)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.current != nil && c.current.running.Load() {
		c.logger.Info("Monitoring already running, ignoring start",
			zap.String("SessionId", string(c.current.handle)))
		c.feed.Recordf("Monitoring %s is already running.", c.current.config.ProcessName)
		return c.current.handle, nil
	}

	ctx, cancel := context.WithCancel(c.context)
	sess := &session{
		handle:    SessionHandle(uuid.New().String()),
		config:    config.Clone(),
		context:   ctx,
		cancel:    cancel,
		running:   atomic.NewBool(true),
		startedAt: time.Now().UTC(),
	}
	c.current = sess

	c.logger.Info("Start monitoring", zap.String("SessionId", string(sess.handle)),
		zap.String("Process", sess.config.ProcessName), zap.Float64("ThresholdPercent", sess.config.ThresholdPercent),
		zap.Duration("PollInterval", sess.config.PollInterval))
	c.feed.Recordf("Started Monitoring %s...", sess.config.ProcessName)
	c.metrics.SetRunning(true)
	c.publishLocked(sess, NewMonitorState(), nil, nil)

	c.waitGroup.Add(1)
	go c.run(sess)

	return sess.handle, nil
}

// Stop ends the session identified by handle. The worker observes it at the next
// wait, which is interrupted immediately.
func (c *Controller) Stop(handle SessionHandle) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.current == nil || c.current.handle != handle {
		return ErrUnknownSession
	}

	sess := c.current
	if !sess.running.CompareAndSwap(true, false) {
		c.logger.Debug("Session already stopped", zap.String("SessionId", string(handle)))
		return nil
	}

	c.logger.Info("Stop monitoring", zap.String("SessionId", string(handle)))
	sess.cancel()
	c.feed.Recordf("Stopped Monitoring %s.", sess.config.ProcessName)
	return nil
}

// Session returns the handle of the running session, if any.
func (c *Controller) Session() (SessionHandle, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.current == nil || !c.current.running.Load() {
		return "", false
	}
	return c.current.handle, true
}

func (c *Controller) Running() bool {
	_, running := c.Session()
	return running
}

func (c *Controller) Snapshot() state.Snapshot {
	return c.store.Load()
}

// WaitUntilCompletion blocks until every session's worker has returned.
func (c *Controller) WaitUntilCompletion() {
	c.waitGroup.Wait()
}

// Shutdown stops any running session and waits for its worker.
func (c *Controller) Shutdown() {
	c.logger.Debug("Shutdown detection controller")
	if handle, running := c.Session(); running {
		_ = c.Stop(handle)
	}
	c.cancel()
	c.WaitUntilCompletion()
}

func (c *Controller) run(sess *session) {
	funcLogger := c.logger.With(zap.String("SessionId", string(sess.handle)))
	monitorState := NewMonitorState()

	defer c.waitGroup.Done()
	defer func() {
		if r := recover(); r != nil {
			sess.running.Store(false)
			sess.cancel()
			funcLogger.Error("Monitoring loop panicked", zap.Any("Panic", r))
			c.feed.Recordf("Monitoring stopped unexpectedly: %v", r)
		}
		c.publish(sess, monitorState, nil, nil)
	}()

	funcLogger.Debug("Start monitoring loop")
	defer funcLogger.Debug("Done monitoring loop")

	ticker := c.newTicker(sess.config.PollInterval)
	defer ticker.Stop()

	for sess.running.Load() {
		monitorState = c.tick(sess, monitorState)

		select {
		case <-sess.context.Done():
			return
		case <-ticker.C():
		}
	}
}

func (c *Controller) tick(sess *session, monitorState MonitorState) MonitorState {
	config := sess.config

	sample := c.sampler.Sample(sess.context, config.ProcessName)
	newState, event := Evaluate(config, monitorState, sample)

	usagePercent := types.UsagePercent(sample.VirtualMb, config.TotalMemoryMb)
	if sample.Found {
		c.feed.Recordf("Memory: %.2f MB (%.2f%%) | Working Set: %.2f MB", sample.VirtualMb, usagePercent,
			sample.ResidentMb)
	} else {
		c.feed.Recordf("Process not found: %s", config.ProcessName)
	}
	c.metrics.ObserveSample(sample.Found, sample.VirtualMb, sample.ResidentMb, usagePercent)

	view := &state.SampleView{
		Found:        sample.Found,
		VirtualMb:    sample.VirtualMb,
		ResidentMb:   sample.ResidentMb,
		UsagePercent: usagePercent,
	}
	c.publish(sess, newState, view, event)

	if event == nil {
		return newState
	}

	c.logger.Info("Alert event", zap.String("Kind", event.Kind.Name()), zap.String("Process", event.Process),
		zap.Float64("UsagePercent", event.UsagePercent))
	c.metrics.ObserveAlert(event.Kind.Name())

	if err := c.handler.Handle(sess.context, event, config.Recipients); err != nil {
		c.logger.Error("Failed to handle alert event", zap.String("Kind", event.Kind.Name()), zap.Error(err))
	}

	return newState
}

// publish replaces the snapshot unless a newer session has taken over.
func (c *Controller) publish(sess *session, monitorState MonitorState, sample *state.SampleView, event *AlertEvent) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.current != sess {
		return
	}
	if !sess.running.Load() {
		c.metrics.SetRunning(false)
	}
	c.publishLocked(sess, monitorState, sample, event)
}

func (c *Controller) publishLocked(sess *session, monitorState MonitorState, sample *state.SampleView,
	event *AlertEvent) {
	previous := c.store.Load()

	snapshot := state.Snapshot{
		Running:          sess.running.Load(),
		SessionId:        string(sess.handle),
		Process:          sess.config.ProcessName,
		ThresholdPercent: sess.config.ThresholdPercent,
		Present:          monitorState.LastKnownPresent,
		LastSample:       sample,
		Watermark:        monitorState.LastAlertWatermark,
		StartedAt:        null.TimeFrom(sess.startedAt),
	}

	if previous.SessionId == snapshot.SessionId {
		snapshot.LastTickAt = previous.LastTickAt
		snapshot.LastEvent = previous.LastEvent
		if sample == nil {
			snapshot.LastSample = previous.LastSample
		}
	}
	if sample != nil {
		snapshot.LastTickAt = null.TimeFrom(time.Now().UTC())
	}
	if event != nil {
		snapshot.LastEvent = event.Kind.Name()
	}

	c.store.Publish(snapshot)
}
