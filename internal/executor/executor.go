// Package executor walks a compiled route tree, invoking each node's
// handler against a shared exchange and emitting execution events as it
// goes.
package executor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/corewire/routeforge/internal/compiler"
	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/pkg/apperrors"
	"github.com/corewire/routeforge/pkg/logger"
	"github.com/corewire/routeforge/pkg/metrics"
)

// EventPublisher is the subset of the event bus the executor depends on.
type EventPublisher interface {
	Publish(event routemodel.ExecutionEvent)
}

// SagaCoordinator is the subset of the saga coordinator the executor
// delegates debit/credit/compensate/sagaTransfer nodes to.
type SagaCoordinator interface {
	Debit(ctx context.Context, accountNumber string, amount int64, transactionID string) error
	Credit(ctx context.Context, accountNumber string, amount int64, transactionID string) error
	Compensate(ctx context.Context, accountNumber string, amount int64, transactionID string) error
	ExecuteTransfer(ctx context.Context, source, dest string, amount int64, description string) (string, error)
}

// RouteInvoker resolves a "direct:<name>" URI to another deployed route in
// the same tenant and runs it against the given exchange.
type RouteInvoker interface {
	InvokeDirect(ctx context.Context, tenantID, name string, ex *routemodel.Exchange) (*routemodel.Exchange, error)
}

// BeanFunc backs a "bean:<name>" endpoint.
type BeanFunc func(ctx context.Context, ex *routemodel.Exchange) (*routemodel.Exchange, error)

const defaultEndpointTimeout = 30 * time.Second

// Executor runs a compiled route tree against an exchange.
type Executor struct {
	log       *logger.Logger
	publisher EventPublisher
	saga      SagaCoordinator
	invoker   RouteInvoker
	beans     map[string]BeanFunc
	client    *http.Client

	throttleMu sync.Mutex
	throttles  map[string]*rate.Limiter

	seqMu sync.Mutex
	seq   uint64
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithSagaCoordinator wires debit/credit/compensate/sagaTransfer nodes to a
// saga coordinator implementation.
func WithSagaCoordinator(s SagaCoordinator) Option {
	return func(e *Executor) { e.saga = s }
}

// WithRouteInvoker wires "direct:" endpoints to another deployed route.
func WithRouteInvoker(inv RouteInvoker) Option {
	return func(e *Executor) { e.invoker = inv }
}

// WithBean registers a "bean:<name>" endpoint handler.
func WithBean(name string, fn BeanFunc) Option {
	return func(e *Executor) { e.beans[name] = fn }
}

// WithHTTPClient overrides the default HTTP client used for http(s) endpoints.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) { e.client = client }
}

// New builds an Executor. publisher may be nil, in which case events are
// dropped rather than fanned out.
func New(log *logger.Logger, publisher EventPublisher, opts ...Option) *Executor {
	if log == nil {
		log = logger.NewDefault("executor")
	}
	e := &Executor{
		log:       log,
		publisher: publisher,
		beans:     make(map[string]BeanFunc),
		client:    &http.Client{Timeout: defaultEndpointTimeout},
		throttles: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// nodeMessageKey is the context key a node handler uses to surface its own
// human-readable completion message (e.g. the log node's resolved text) to
// execNode's COMPLETED event, without changing every handler's signature.
type nodeMessageKey struct{}

func withNodeMessageSink(ctx context.Context) (context.Context, *string) {
	sink := new(string)
	return context.WithValue(ctx, nodeMessageKey{}, sink), sink
}

// recordNodeMessage lets a node handler (e.g. execLog) set the message that
// will be carried on its own COMPLETED event.
func recordNodeMessage(ctx context.Context, message string) {
	if sink, ok := ctx.Value(nodeMessageKey{}).(*string); ok {
		*sink = message
	}
}

func (e *Executor) nextSequence() uint64 {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	e.seq++
	return e.seq
}

// Invoke runs a compiled route against a freshly constructed exchange
// carrying body as its initial JSON-shaped payload.
func (e *Executor) Invoke(ctx context.Context, route *compiler.CompiledRoute, body interface{}, headers map[string]string) (*routemodel.Exchange, error) {
	ex := routemodel.NewExchange(route.RouteID)
	ex.Body = body
	for k, v := range headers {
		ex.Headers[k] = v
	}

	taskID := fmt.Sprintf("%s-%d", route.RouteID, e.nextSequence())

	// route.Root is itself a node in the tree, so execNode emits its
	// STARTED/COMPLETED/FAILED pair like any other node. The root's
	// COMPLETED fires before its successors run, so once the whole tree has
	// finished Invoke emits one more route-level COMPLETED or FAILED event
	// (with an empty NodeType).
	start := time.Now()
	result, err := e.execNode(ctx, route.RouteID, taskID, route.Root, ex)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		e.emit(route.RouteID, taskID, "", routemodel.EventFailed, "route execution failed", nil, err.Error(), durationMs)
		return result, err
	}
	e.emit(route.RouteID, taskID, "", routemodel.EventCompleted, "route execution completed", resultMessage(result), "", durationMs)
	return result, nil
}

func (e *Executor) emit(routeID, taskID, nodeType string, status routemodel.EventStatus, message string, result interface{}, errMsg string, durationMs int64) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(routemodel.ExecutionEvent{
		TaskID:     taskID,
		Type:       routemodel.EventTypeCamelNode,
		NodeType:   nodeType,
		RouteID:    routeID,
		Status:     status,
		Message:    message,
		Result:     result,
		Error:      errMsg,
		DurationMs: durationMs,
		Timestamp:  time.Now(),
		Sequence:   e.nextSequence(),
	})
}

// execNode runs one tree node and, where applicable, its successors/regions,
// returning the exchange as it stood when the chain terminated. Per spec, it
// emits STARTED before the node's own behavior runs and COMPLETED/FAILED
// (carrying the measured duration) after it returns.
func (e *Executor) execNode(ctx context.Context, routeID, taskID string, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	if ctx.Err() != nil {
		return ex, apperrors.TimeoutError("route invocation cancelled")
	}

	e.emit(routeID, taskID, t.NodeType, routemodel.EventStarted, "node execution started", nil, "", 0)

	msgCtx, sink := withNodeMessageSink(ctx)
	start := time.Now()
	next, err := e.dispatch(msgCtx, routeID, taskID, t, ex)
	duration := time.Since(start)
	durationMs := duration.Milliseconds()

	if err != nil {
		metrics.RecordNodeExecution(t.NodeType, "failure", duration)
		e.emit(routeID, taskID, t.NodeType, routemodel.EventFailed, "node execution failed", nil, err.Error(), durationMs)
		return next, apperrors.ExecutionError(routeID, t.NodeID, t.NodeType, err)
	}
	metrics.RecordNodeExecution(t.NodeType, "success", duration)
	completionMessage := "node execution completed"
	if *sink != "" {
		completionMessage = *sink
	}
	e.emit(routeID, taskID, t.NodeType, routemodel.EventCompleted, completionMessage, resultMessage(next), "", durationMs)
	return e.runSequence(ctx, routeID, taskID, t.Successors, next)
}

// resultMessage surfaces the exchange's body as the COMPLETED event's result
// payload, per spec §4.3's "COMPLETED (with result, duration)".
func resultMessage(ex *routemodel.Exchange) interface{} {
	if ex == nil {
		return nil
	}
	return ex.Body
}

// runSequence threads ex through each tree in order, the representation of
// "all outgoing edges become sequential successors" for inline nodes and for
// multi-edge regions (otherwise, try) alike.
func (e *Executor) runSequence(ctx context.Context, routeID, taskID string, trees []*compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	current := ex
	for _, t := range trees {
		var err error
		current, err = e.execNode(ctx, routeID, taskID, t, current)
		if err != nil {
			return current, err
		}
	}
	return current, nil
}
