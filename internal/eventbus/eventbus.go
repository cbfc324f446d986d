// Package eventbus fans execution events out to live subscribers and keeps
// a bounded in-memory replay history per process/route id. It keeps a
// per-key-guarded map of buffered subscriber channels, with one background
// goroutine for heartbeats and retention sweeps, and stays entirely
// in-process: nothing here talks to a broker or a database.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/pkg/apperrors"
	"github.com/corewire/routeforge/pkg/logger"
	"github.com/corewire/routeforge/pkg/metrics"
)

// HeartbeatMessage tags a synthetic ExecutionEvent the bus emits on a
// subscription's behalf, rather than one the executor produced.
const HeartbeatMessage = "heartbeat"

const subscriptionBufferSlack = 8

// Config controls the bus's history retention and back-pressure limits.
type Config struct {
	HeartbeatInterval     time.Duration
	HistoryMax            int
	MaxEmittersPerProcess int
	RetentionInterval     time.Duration
}

// DefaultConfig mirrors the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:     25 * time.Second,
		HistoryMax:            200,
		MaxEmittersPerProcess: 16,
		RetentionInterval:     10 * time.Minute,
	}
}

// Subscription is a live, buffered feed of events for one process/route id.
type Subscription struct {
	ID        string
	ProcessID string
	Events    <-chan routemodel.ExecutionEvent

	ch chan routemodel.ExecutionEvent
}

type processState struct {
	mu           sync.Mutex
	history      []routemodel.ExecutionEvent
	subs         map[string]*Subscription
	startTimes   map[string]time.Time
	lastActivity time.Time
}

// Bus is the process-wide event fan-out registry.
type Bus struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu        sync.RWMutex
	processes map[string]*processState
	nextSubID uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithClock overrides the bus's time source; tests use this to make
// retention sweeps deterministic.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New builds a Bus. Call Start to begin its heartbeat/retention loop.
func New(cfg Config, log *logger.Logger, opts ...Option) *Bus {
	if log == nil {
		log = logger.NewDefault("eventbus")
	}
	b := &Bus{
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		processes: make(map[string]*processState),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the bus's background heartbeat and retention sweep loop.
func (b *Bus) Start() {
	go b.loop()
}

// Close stops the background loop and releases every live subscription.
func (b *Bus) Close() {
	close(b.stopCh)
	<-b.doneCh

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ps := range b.processes {
		ps.mu.Lock()
		for _, sub := range ps.subs {
			close(sub.ch)
		}
		ps.mu.Unlock()
	}
	b.processes = make(map[string]*processState)
}

func (b *Bus) loop() {
	defer close(b.doneCh)
	interval := b.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 25 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.heartbeatAndSweep()
		}
	}
}

func (b *Bus) heartbeatAndSweep() {
	b.mu.RLock()
	keys := make([]string, 0, len(b.processes))
	for k := range b.processes {
		keys = append(keys, k)
	}
	b.mu.RUnlock()

	now := b.now()
	for _, key := range keys {
		b.heartbeatProcess(key)
		b.maybeRetire(key, now)
	}
}

func (b *Bus) heartbeatProcess(key string) {
	ps := b.existingState(key)
	if ps == nil {
		return
	}
	ps.mu.Lock()
	subs := make([]*Subscription, 0, len(ps.subs))
	for _, s := range ps.subs {
		subs = append(subs, s)
	}
	ps.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	event := routemodel.ExecutionEvent{
		RouteID:   key,
		Status:    routemodel.EventStarted,
		Message:   HeartbeatMessage,
		Timestamp: b.now(),
	}
	for _, sub := range subs {
		b.deliver(key, sub, event)
	}
}

func (b *Bus) maybeRetire(key string, now time.Time) {
	b.mu.Lock()
	ps, ok := b.processes[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	ps.mu.Lock()
	idle := len(ps.subs) == 0 && now.Sub(ps.lastActivity) >= b.cfg.RetentionInterval
	ps.mu.Unlock()
	if idle {
		delete(b.processes, key)
	}
	b.mu.Unlock()
}

func (b *Bus) stateFor(key string) *processState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps, ok := b.processes[key]
	if !ok {
		ps = &processState{
			subs:         make(map[string]*Subscription),
			startTimes:   make(map[string]time.Time),
			lastActivity: b.now(),
		}
		b.processes[key] = ps
	}
	return ps
}

func (b *Bus) existingState(key string) *processState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.processes[key]
}

func processKey(event routemodel.ExecutionEvent) string {
	if event.ProcessInstanceID != "" {
		return event.ProcessInstanceID
	}
	return event.RouteID
}

// Publish enriches event with a computed duration when it closes out a
// tracked activity, appends it to its process/route id's bounded history
// ring, and fans it out to every live subscription for that key.
func (b *Bus) Publish(event routemodel.ExecutionEvent) {
	key := processKey(event)
	ps := b.stateFor(key)

	historyMax := b.cfg.HistoryMax
	if historyMax <= 0 {
		historyMax = 200
	}

	ps.mu.Lock()
	stampDuration(ps, &event)
	ps.history = append(ps.history, event)
	if len(ps.history) > historyMax {
		ps.history = ps.history[len(ps.history)-historyMax:]
	}
	ps.lastActivity = b.now()
	subs := make([]*Subscription, 0, len(ps.subs))
	for _, s := range ps.subs {
		subs = append(subs, s)
	}
	ps.mu.Unlock()

	for _, sub := range subs {
		b.deliver(key, sub, event)
	}
}

func stampDuration(ps *processState, event *routemodel.ExecutionEvent) {
	if event.ActivityID == "" {
		return
	}
	switch event.Status {
	case routemodel.EventStarted:
		ps.startTimes[event.ActivityID] = event.Timestamp
	case routemodel.EventCompleted, routemodel.EventFailed:
		if event.DurationMs != 0 {
			return
		}
		if start, ok := ps.startTimes[event.ActivityID]; ok {
			event.DurationMs = event.Timestamp.Sub(start).Milliseconds()
			delete(ps.startTimes, event.ActivityID)
		}
	}
}

// deliver writes event to sub's buffer, dropping the subscription on
// back-pressure (a full buffer means the subscriber's reader has stalled).
func (b *Bus) deliver(key string, sub *Subscription, event routemodel.ExecutionEvent) {
	select {
	case sub.ch <- event:
	default:
		b.removeSubscription(key, sub.ID)
		metrics.RecordEventDropped("backpressure")
	}
}

// Subscribe attaches a new live subscription for processID, replaying its
// retained history before returning. Exceeding the per-process emitter cap
// fails fast without occupying a slot.
func (b *Bus) Subscribe(processID string) (*Subscription, error) {
	ps := b.stateFor(processID)

	ps.mu.Lock()
	emitterCap := b.cfg.MaxEmittersPerProcess
	if emitterCap <= 0 {
		emitterCap = 16
	}
	if len(ps.subs) >= emitterCap {
		ps.mu.Unlock()
		metrics.RecordEventDropped("emitter_cap")
		return nil, apperrors.New(apperrors.CodeInternal, "event bus emitter cap reached for process "+processID, 429)
	}

	historyMax := b.cfg.HistoryMax
	if historyMax <= 0 {
		historyMax = 200
	}
	bufSize := historyMax + subscriptionBufferSlack

	b.mu.Lock()
	b.nextSubID++
	id := subscriptionID(b.nextSubID)
	b.mu.Unlock()

	ch := make(chan routemodel.ExecutionEvent, bufSize)
	sub := &Subscription{ID: id, ProcessID: processID, Events: ch, ch: ch}

	for _, e := range ps.history {
		ch <- e
	}
	ch <- routemodel.ExecutionEvent{
		RouteID:   processID,
		Status:    routemodel.EventStarted,
		Message:   HeartbeatMessage,
		Timestamp: b.now(),
	}

	ps.subs[id] = sub
	ps.mu.Unlock()

	b.log.WithField("process_id", processID).WithField("subscription_id", id).Info("event bus subscription attached")
	metrics.SetEventBusSubscriptions(b.totalSubscriptions())
	return sub, nil
}

// Unsubscribe detaches sub, releasing its buffered channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.removeSubscription(sub.ProcessID, sub.ID)
}

func (b *Bus) removeSubscription(processID, subID string) {
	ps := b.existingState(processID)
	if ps == nil {
		return
	}
	ps.mu.Lock()
	sub, ok := ps.subs[subID]
	if ok {
		delete(ps.subs, subID)
		close(sub.ch)
	}
	ps.lastActivity = b.now()
	ps.mu.Unlock()

	if ok {
		metrics.SetEventBusSubscriptions(b.totalSubscriptions())
	}
}

func (b *Bus) totalSubscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, ps := range b.processes {
		ps.mu.Lock()
		total += len(ps.subs)
		ps.mu.Unlock()
	}
	return total
}

func subscriptionID(n uint64) string {
	return fmt.Sprintf("sub-%d", n)
}
