package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/corewire/routeforge/internal/compiler"
	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/internal/templater"
	"github.com/corewire/routeforge/pkg/apperrors"
)

// paramSpec names where a saga node parameter may be found, tried in the
// order: node property (templated), body dotted path, body alias path,
// header, then a caller-supplied default.
type paramSpec struct {
	propertyKey       string
	bodyAliasPath     string
	fallbackHeaderKey string
}

func (e *Executor) execSagaNode(ctx context.Context, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	if e.saga == nil {
		return ex, apperrors.Internal("no saga coordinator configured", nil)
	}

	switch t.NodeType {
	case routemodel.NodeDebit:
		return e.execDebit(ctx, t, ex)
	case routemodel.NodeCredit:
		return e.execCredit(ctx, t, ex)
	case routemodel.NodeCompensate:
		return e.execCompensate(ctx, t, ex)
	case routemodel.NodeSagaTransfer:
		return e.execSagaTransfer(ctx, t, ex)
	default:
		return ex, apperrors.Internal("not a saga node: "+t.NodeType, nil)
	}
}

func (e *Executor) execDebit(ctx context.Context, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	account, err := extractString(t.Node, ex, paramSpec{"accountNumber", "accountNumber", "X-Account-Number"}, "")
	if err != nil || account == "" {
		return ex, apperrors.ValidationError("debit.accountNumber", "missing account number")
	}
	amount, err := extractAmount(t.Node, ex)
	if err != nil {
		return ex, err
	}
	txnID, _ := extractString(t.Node, ex, paramSpec{"transactionId", "transactionId", "X-Transaction-Id"}, "")
	if txnID == "" {
		txnID = uuid.NewString()
	}
	if err := e.saga.Debit(ctx, account, amount, txnID); err != nil {
		return ex, err
	}
	ex.Properties["transactionId"] = txnID
	return ex, nil
}

func (e *Executor) execCredit(ctx context.Context, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	account, err := extractString(t.Node, ex, paramSpec{"accountNumber", "accountNumber", "X-Account-Number"}, "")
	if err != nil || account == "" {
		return ex, apperrors.ValidationError("credit.accountNumber", "missing account number")
	}
	amount, err := extractAmount(t.Node, ex)
	if err != nil {
		return ex, err
	}
	txnID, _ := extractString(t.Node, ex, paramSpec{"transactionId", "transactionId", "X-Transaction-Id"}, "")
	if err := e.saga.Credit(ctx, account, amount, txnID); err != nil {
		return ex, err
	}
	return ex, nil
}

func (e *Executor) execCompensate(ctx context.Context, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	account, err := extractString(t.Node, ex, paramSpec{"accountNumber", "sourceAccount", "X-Account-Number"}, "")
	if err != nil || account == "" {
		return ex, apperrors.ValidationError("compensate.accountNumber", "missing account number")
	}
	amount, err := extractAmount(t.Node, ex)
	if err != nil {
		return ex, err
	}
	txnID, _ := extractString(t.Node, ex, paramSpec{"transactionId", "transactionId", "X-Transaction-Id"}, "")
	if err := e.saga.Compensate(ctx, account, amount, txnID); err != nil {
		return ex, err
	}
	return ex, nil
}

func (e *Executor) execSagaTransfer(ctx context.Context, t *compiler.Tree, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	source, err := extractString(t.Node, ex, paramSpec{"source", "sourceAccount", "X-Source-Account"}, "")
	if err != nil || source == "" {
		return ex, apperrors.ValidationError("sagaTransfer.source", "missing source account")
	}
	dest, err := extractString(t.Node, ex, paramSpec{"dest", "destAccount", "X-Dest-Account"}, "")
	if err != nil || dest == "" {
		return ex, apperrors.ValidationError("sagaTransfer.dest", "missing dest account")
	}
	amount, err := extractAmount(t.Node, ex)
	if err != nil {
		return ex, err
	}
	description, _ := extractString(t.Node, ex, paramSpec{"description", "description", "X-Description"}, "")

	txnID, err := e.saga.ExecuteTransfer(ctx, source, dest, amount, description)
	if err != nil {
		return ex, err
	}
	ex.Properties["transactionId"] = txnID
	return ex, nil
}

func extractAmount(n routemodel.Node, ex *routemodel.Exchange) (int64, error) {
	raw, err := extractString(n, ex, paramSpec{"amount", "amount", "X-Amount"}, "")
	if err != nil || raw == "" {
		return 0, apperrors.ValidationError("amount", "missing amount")
	}
	amount, parseErr := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if parseErr != nil {
		f, floatErr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if floatErr != nil {
			return 0, apperrors.ValidationError("amount", fmt.Sprintf("invalid amount %q", raw))
		}
		amount = int64(f)
	}
	if amount <= 0 {
		return 0, apperrors.ValidationError("amount", "amount must be positive")
	}
	return amount, nil
}

// extractString applies the property->body-path->body-alias->header->default
// cascade described for saga node parameter extraction.
func extractString(n routemodel.Node, ex *routemodel.Exchange, spec paramSpec, fallback string) (string, error) {
	if raw, ok := n.Properties[spec.propertyKey]; ok {
		if s, ok := raw.(string); ok && strings.Contains(s, "${") {
			resolved, err := templater.Resolve(s, ex, n.ExpressionLanguage)
			if err != nil {
				return "", err
			}
			if resolved != "" {
				return resolved, nil
			}
		} else if s := valueToString(raw); s != "" {
			return s, nil
		}
	}

	if v, ok := templater.ExtractFromBody(spec.propertyKey, ex, n.ExpressionLanguage); ok {
		if s := valueToString(v); s != "" {
			return s, nil
		}
	}

	if spec.bodyAliasPath != "" && spec.bodyAliasPath != spec.propertyKey {
		if v, ok := templater.ExtractFromBody(spec.bodyAliasPath, ex, n.ExpressionLanguage); ok {
			if s := valueToString(v); s != "" {
				return s, nil
			}
		}
	}

	if spec.fallbackHeaderKey != "" {
		if h, ok := ex.Headers[spec.fallbackHeaderKey]; ok && h != "" {
			return h, nil
		}
	}

	return fallback, nil
}

func valueToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
