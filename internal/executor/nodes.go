package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/corewire/routeforge/internal/compiler"
	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/internal/templater"
	"github.com/corewire/routeforge/pkg/apperrors"
)

// dispatch runs a single node's own behavior (never its successors; that is
// runSequence's job) and returns the exchange as the node leaves it.
func (e *Executor) dispatch(ctx context.Context, routeID, taskID string, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	switch t.NodeType {
	case routemodel.NodeFrom:
		return ex, nil

	case routemodel.NodeTo:
		return e.invokeEndpoint(ctx, t.Node.URI, ex)

	case routemodel.NodeLog:
		return e.execLog(ctx, t, ex)

	case routemodel.NodeSetBody, routemodel.NodeTransform:
		return e.execAssignBody(t, ex)

	case routemodel.NodeConvertBodyTo:
		return e.execConvertBodyTo(t, ex)

	case routemodel.NodeFilter:
		return e.execFilter(ctx, routeID, taskID, t, ex)

	case routemodel.NodeSplit:
		return e.execSplit(ctx, routeID, taskID, t, ex)

	case routemodel.NodeLoop:
		return e.execLoop(ctx, routeID, taskID, t, ex)

	case routemodel.NodeAggregate:
		return ex, nil

	case routemodel.NodeMulticast:
		return e.execMulticast(ctx, routeID, taskID, t, ex)

	case routemodel.NodeChoice:
		return e.execChoice(ctx, routeID, taskID, t, ex)

	case routemodel.NodeTryCatch:
		return e.execTryCatch(ctx, routeID, taskID, t, ex)

	case routemodel.NodeDelay:
		return e.execDelay(ctx, t, ex)

	case routemodel.NodeThrottle:
		return e.execThrottle(ctx, routeID, taskID, t, ex)

	case routemodel.NodeWireTap:
		return e.execWireTap(t, ex)

	case routemodel.NodeEnrich:
		return e.invokeEndpoint(ctx, t.Node.URI, ex)

	case routemodel.NodeDebit, routemodel.NodeCredit, routemodel.NodeCompensate, routemodel.NodeSagaTransfer:
		return e.execSagaNode(ctx, t, ex)

	default:
		return ex, apperrors.Internal("unknown node type "+t.NodeType, nil)
	}
}

func (e *Executor) execLog(ctx context.Context, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	message, err := templater.Resolve(t.Node.Message, ex, t.Node.ExpressionLanguage)
	if err != nil {
		return ex, err
	}
	e.log.WithField("node_id", t.NodeID).Info(message)
	recordNodeMessage(ctx, message)
	return ex, nil
}

func (e *Executor) execAssignBody(t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	if t.Node.ExpressionLanguage == routemodel.ExpressionConstant {
		ex.Body = t.Node.Expression
		return ex, nil
	}
	resolved, err := templater.Resolve(t.Node.Expression, ex, t.Node.ExpressionLanguage)
	if err != nil {
		return ex, err
	}
	ex.Body = resolved
	return ex, nil
}

func (e *Executor) execConvertBodyTo(t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	target := t.Node.Expression
	if target == "" {
		target = "string"
	}
	converted, err := convertBody(ex.Body, target)
	if err != nil {
		return ex, err
	}
	ex.Body = converted
	return ex, nil
}

func convertBody(body interface{}, target string) (interface{}, error) {
	switch strings.ToLower(target) {
	case "string":
		return toStringBody(body), nil
	case "int", "int64":
		switch v := body.(type) {
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, apperrors.Internal("convertBodyTo: cannot convert to int", err)
			}
			return n, nil
		default:
			return nil, apperrors.Internal("convertBodyTo: cannot convert to int", nil)
		}
	case "float", "float64":
		switch v := body.(type) {
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, apperrors.Internal("convertBodyTo: cannot convert to float", err)
			}
			return f, nil
		default:
			return nil, apperrors.Internal("convertBodyTo: cannot convert to float", nil)
		}
	case "bool":
		switch v := body.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, apperrors.Internal("convertBodyTo: cannot convert to bool", err)
			}
			return b, nil
		default:
			return nil, apperrors.Internal("convertBodyTo: cannot convert to bool", nil)
		}
	case "json":
		return body, nil
	default:
		return nil, apperrors.ValidationError("convertBodyTo.expression", "unsupported target type "+target)
	}
}

func toStringBody(body interface{}) string {
	switch v := body.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func (e *Executor) execFilter(ctx context.Context, routeID, taskID string, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	pass, err := templater.EvalGuard(t.Node.Expression, ex, t.Node.ExpressionLanguage)
	if err != nil {
		return ex, err
	}
	if !pass {
		return ex, nil
	}
	return e.runSequence(ctx, routeID, taskID, t.Children, ex)
}

func (e *Executor) execDelay(ctx context.Context, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	ms, err := resolveInt(t.Node.Expression, ex, t.Node.ExpressionLanguage, 0)
	if err != nil {
		return ex, err
	}
	if ms <= 0 {
		return ex, nil
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return ex, nil
	case <-ctx.Done():
		return ex, apperrors.TimeoutError("delay")
	}
}

func (e *Executor) execWireTap(t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	if t.Node.URI == "" {
		return ex, nil
	}
	tapped := ex.Clone()
	go func() {
		bg := context.Background()
		if _, err := e.invokeEndpoint(bg, t.Node.URI, tapped); err != nil {
			e.log.WithField("node_id", t.NodeID).WithField("uri", t.Node.URI).WithError(err).Warn("wireTap delivery failed")
		}
	}()
	return ex, nil
}

func resolveInt(expr string, ex *routemodel.Exchange, lang routemodel.ExpressionLanguage, fallback int) (int, error) {
	if expr == "" {
		return fallback, nil
	}
	if v, ok := templater.Extract(expr, ex, lang); ok {
		switch n := v.(type) {
		case float64:
			return int(n), nil
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(n))
			if err == nil {
				return parsed, nil
			}
		}
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(expr))
	if err != nil {
		return fallback, nil
	}
	return parsed, nil
}
