package templater

import (
	"strings"

	"github.com/corewire/routeforge/internal/routemodel"
)

// EvalGuard evaluates a choice edge's Condition string against an exchange.
// It recognizes exactly one comparison form — "${path}=='literal'" and its
// "!=" counterpart — plus bare templated truthiness when no comparison
// operator is present. This is deliberately not a general expression
// language; see the Templater design notes.
func EvalGuard(condition string, ex *routemodel.Exchange, lang routemodel.ExpressionLanguage) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}

	if op, lhs, rhs, ok := splitComparison(condition); ok {
		left, err := Resolve(lhs, ex, lang)
		if err != nil {
			return false, err
		}
		right := strings.Trim(strings.TrimSpace(rhs), "'\"")
		switch op {
		case "==":
			return left == right, nil
		case "!=":
			return left != right, nil
		}
	}

	resolved, err := Resolve(condition, ex, lang)
	if err != nil {
		return false, err
	}
	return isTruthy(resolved), nil
}

func splitComparison(condition string) (op, lhs, rhs string, ok bool) {
	if idx := strings.Index(condition, "=="); idx != -1 {
		return "==", condition[:idx], condition[idx+2:], true
	}
	if idx := strings.Index(condition, "!="); idx != -1 {
		return "!=", condition[:idx], condition[idx+2:], true
	}
	return "", "", "", false
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "0":
		return false
	default:
		return true
	}
}
