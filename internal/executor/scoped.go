package executor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/corewire/routeforge/internal/compiler"
	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/internal/templater"
	"github.com/corewire/routeforge/pkg/apperrors"
)

// execSplit runs the split region once per element of the body, treating
// the element as that iteration's body; the original body is restored once
// every element has flowed through the region (and whatever follows it).
func (e *Executor) execSplit(ctx context.Context, routeID, taskID string, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	elements, err := splitElements(t.Node, ex)
	if err != nil {
		return ex, err
	}
	original := ex.Body
	for _, element := range elements {
		branch := ex.Clone()
		branch.Body = element
		if _, err := e.runSequence(ctx, routeID, taskID, t.Children, branch); err != nil {
			return ex, err
		}
	}
	ex.Body = original
	return ex, nil
}

func splitElements(n routemodel.Node, ex *routemodel.Exchange) ([]interface{}, error) {
	source := ex.Body
	if n.Expression != "" {
		v, ok := templater.Extract(n.Expression, ex, n.ExpressionLanguage)
		if ok {
			source = v
		}
	}
	switch v := source.(type) {
	case []interface{}:
		return v, nil
	case nil:
		return nil, nil
	default:
		return []interface{}{v}, nil
	}
}

// execLoop runs the loop region either a fixed number of times (when its
// expression resolves to an integer) or repeatedly while its expression
// evaluates truthy, re-checked before every iteration.
func (e *Executor) execLoop(ctx context.Context, routeID, taskID string, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	const maxIterations = 10000 // backstop against a misconfigured always-true loop expression

	if count, ok := loopCount(t.Node, ex); ok {
		current := ex
		for i := 0; i < count; i++ {
			var err error
			current, err = e.runSequence(ctx, routeID, taskID, t.Children, current)
			if err != nil {
				return current, err
			}
		}
		return current, nil
	}

	current := ex
	for i := 0; i < maxIterations; i++ {
		truthy, err := templater.EvalGuard(t.Node.Expression, current, t.Node.ExpressionLanguage)
		if err != nil {
			return current, err
		}
		if !truthy {
			return current, nil
		}
		current, err = e.runSequence(ctx, routeID, taskID, t.Children, current)
		if err != nil {
			return current, err
		}
	}
	e.log.WithField("node_id", t.NodeID).Warn("loop hit iteration backstop without its guard becoming falsy")
	return current, nil
}

func loopCount(n routemodel.Node, ex *routemodel.Exchange) (int, bool) {
	count, err := resolveInt(n.Expression, ex, n.ExpressionLanguage, -1)
	if err == nil && count >= 0 {
		return count, true
	}
	return 0, false
}

// execMulticast fans the region out onto one goroutine per child, waits for
// all of them, and (per the parallel fan-out decision) returns the body of
// whichever branch completes last.
func (e *Executor) execMulticast(ctx context.Context, routeID, taskID string, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	if len(t.Children) == 0 {
		return ex, nil
	}

	type branchResult struct {
		ex         *routemodel.Exchange
		err        error
		finishedAt time.Time
	}

	results := make([]branchResult, len(t.Children))
	var wg sync.WaitGroup
	for i, child := range t.Children {
		wg.Add(1)
		go func(idx int, child *compiler.Tree) {
			defer wg.Done()
			branch := ex.Clone()
			if raw, err := json.Marshal(ex.Body); err == nil {
				var body interface{}
				if err := json.Unmarshal(raw, &body); err == nil {
					branch.Body = body
				}
			}
			out, err := e.runSequence(ctx, routeID, taskID, []*compiler.Tree{child}, branch)
			results[idx] = branchResult{ex: out, err: err, finishedAt: time.Now()}
		}(i, child)
	}
	wg.Wait()

	var last branchResult
	for _, r := range results {
		if r.err != nil {
			return ex, r.err
		}
		if r.finishedAt.After(last.finishedAt) {
			last = r
		}
	}
	if last.ex != nil {
		ex.Body = last.ex.Body
	}
	return ex, nil
}

// execChoice evaluates each when-branch's condition in declaration order,
// running the first match; if none match it runs the otherwise region.
func (e *Executor) execChoice(ctx context.Context, routeID, taskID string, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	for _, branch := range t.WhenBranches {
		matched, err := templater.EvalGuard(branch.Condition, ex, t.Node.ExpressionLanguage)
		if err != nil {
			return ex, err
		}
		if matched {
			return e.runSequence(ctx, routeID, taskID, []*compiler.Tree{branch.Root}, ex)
		}
	}
	if len(t.Otherwise) > 0 {
		return e.runSequence(ctx, routeID, taskID, t.Otherwise, ex)
	}
	return ex, nil
}

// execTryCatch runs the try region; on a failure it classifies the error and
// hands it to the first catch handler whose declared exception type matches,
// falling back to a handler declared with no exception type (the "Exception"
// catch-all). An uncaught error propagates to the caller.
func (e *Executor) execTryCatch(ctx context.Context, routeID, taskID string, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	out, err := e.runSequence(ctx, routeID, taskID, t.Try, ex)
	if err == nil {
		return out, nil
	}

	exceptionType := classifyException(err)
	var fallback *compiler.CatchHandler
	for i := range t.Catches {
		handler := &t.Catches[i]
		if handler.ExceptionType == exceptionType {
			return e.runSequence(ctx, routeID, taskID, handler.Roots, ex)
		}
		if handler.ExceptionType == "Exception" {
			fallback = handler
		}
	}
	if fallback != nil {
		return e.runSequence(ctx, routeID, taskID, fallback.Roots, ex)
	}
	return out, err
}

// classifyException maps an engine error onto a small, closed taxonomy of
// exception type names that route authors can target from a catch edge. The
// executor always wraps a node's failure in an ExecutionError, so this walks
// past that wrapper to classify the underlying cause.
func classifyException(err error) string {
	for current := err; current != nil; {
		engineErr := apperrors.GetEngineError(current)
		if engineErr == nil {
			return "Exception"
		}
		switch engineErr.Code {
		case apperrors.CodeTimeout:
			return "TimeoutError"
		case apperrors.CodeTransport:
			return "TransportError"
		case apperrors.CodeInsufficientBalance:
			return "InsufficientBalance"
		case apperrors.CodeAccountNotActive:
			return "AccountNotActive"
		case apperrors.CodeAccountNotFound:
			return "AccountNotFound"
		case apperrors.CodeCompensationFailed:
			return "CompensationFailed"
		case apperrors.CodeExecutionError:
			current = engineErr.Err
			continue
		default:
			return "Exception"
		}
	}
	return "Exception"
}

// execThrottle rate-limits how often the region completes across every
// concurrent invocation of this node, sharing one limiter keyed by node id.
func (e *Executor) execThrottle(ctx context.Context, routeID, taskID string, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	ratePerSecond, err := resolveInt(t.Node.Expression, ex, t.Node.ExpressionLanguage, 1)
	if err != nil {
		return ex, err
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}

	limiter := e.throttleLimiter(t.NodeID, ratePerSecond)
	if err := limiter.Wait(ctx); err != nil {
		return ex, apperrors.TimeoutError("throttle")
	}
	return e.runSequence(ctx, routeID, taskID, t.Children, ex)
}

func (e *Executor) throttleLimiter(nodeID string, ratePerSecond int) *rate.Limiter {
	e.throttleMu.Lock()
	defer e.throttleMu.Unlock()
	limiter, ok := e.throttles[nodeID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond)
		e.throttles[nodeID] = limiter
	}
	return limiter
}
