package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/routeforge/internal/routemodel"
)

func newTestBus(cfg Config) *Bus {
	return New(cfg, nil)
}

func TestSubscribeReplaysHistoryThenLiveEvents(t *testing.T) {
	bus := newTestBus(DefaultConfig())

	bus.Publish(routemodel.ExecutionEvent{RouteID: "r1", Status: routemodel.EventStarted, Message: "first"})
	bus.Publish(routemodel.ExecutionEvent{RouteID: "r1", Status: routemodel.EventCompleted, Message: "second"})

	sub, err := bus.Subscribe("r1")
	require.NoError(t, err)

	first := <-sub.Events
	assert.Equal(t, "first", first.Message)
	second := <-sub.Events
	assert.Equal(t, "second", second.Message)
	heartbeat := <-sub.Events
	assert.Equal(t, HeartbeatMessage, heartbeat.Message)

	bus.Publish(routemodel.ExecutionEvent{RouteID: "r1", Status: routemodel.EventStarted, Message: "live"})
	live := <-sub.Events
	assert.Equal(t, "live", live.Message)
}

func TestHistoryIsBoundedToMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryMax = 3
	bus := newTestBus(cfg)

	for i := 0; i < 10; i++ {
		bus.Publish(routemodel.ExecutionEvent{RouteID: "r1", Message: "msg"})
	}

	sub, err := bus.Subscribe("r1")
	require.NoError(t, err)

	count := 0
	for {
		select {
		case e := <-sub.Events:
			if e.Message == HeartbeatMessage {
				assert.Equal(t, 3, count)
				return
			}
			count++
		default:
			t.Fatalf("expected heartbeat after replayed history, channel emptied early at count=%d", count)
		}
	}
}

func TestEmitterCapRejectsWithoutOccupyingSlot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEmittersPerProcess = 1
	bus := newTestBus(cfg)

	sub1, err := bus.Subscribe("r1")
	require.NoError(t, err)

	_, err = bus.Subscribe("r1")
	require.Error(t, err)

	bus.Unsubscribe(sub1)
	sub2, err := bus.Subscribe("r1")
	require.NoError(t, err)
	assert.NotNil(t, sub2)
}

func TestDurationStampedOnActivityCompletion(t *testing.T) {
	bus := newTestBus(DefaultConfig())

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bus.Publish(routemodel.ExecutionEvent{
		RouteID: "r1", ActivityID: "act-1", Status: routemodel.EventStarted, Timestamp: start,
	})
	bus.Publish(routemodel.ExecutionEvent{
		RouteID: "r1", ActivityID: "act-1", Status: routemodel.EventCompleted, Timestamp: start.Add(250 * time.Millisecond),
	})

	sub, err := bus.Subscribe("r1")
	require.NoError(t, err)

	started := <-sub.Events
	assert.Equal(t, routemodel.EventStarted, started.Status)
	completed := <-sub.Events
	assert.Equal(t, int64(250), completed.DurationMs)
}

func TestRetentionSweepDropsIdleHistoryWithNoLiveSubs(t *testing.T) {
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	cfg := DefaultConfig()
	cfg.RetentionInterval = time.Minute
	bus := New(cfg, nil, WithClock(clock))

	bus.Publish(routemodel.ExecutionEvent{RouteID: "r1", Message: "first"})

	current = current.Add(2 * time.Minute)
	bus.heartbeatAndSweep()

	sub, err := bus.Subscribe("r1")
	require.NoError(t, err)
	heartbeat := <-sub.Events
	assert.Equal(t, HeartbeatMessage, heartbeat.Message, "history should have been swept, leaving only the fresh startup heartbeat")
}

func TestPublishDeliversToMultipleLiveSubscribers(t *testing.T) {
	bus := newTestBus(DefaultConfig())

	subA, err := bus.Subscribe("r1")
	require.NoError(t, err)
	subB, err := bus.Subscribe("r1")
	require.NoError(t, err)

	<-subA.Events // startup heartbeat
	<-subB.Events

	bus.Publish(routemodel.ExecutionEvent{RouteID: "r1", Message: "broadcast"})

	a := <-subA.Events
	b := <-subB.Events
	assert.Equal(t, "broadcast", a.Message)
	assert.Equal(t, "broadcast", b.Message)
}
