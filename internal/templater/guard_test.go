package templater

import (
	"testing"

	"github.com/corewire/routeforge/internal/routemodel"
)

func TestEvalGuardEquality(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ex.Headers["priority"] = "high"

	ok, err := EvalGuard("${priority}=='high'", ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("EvalGuard: %v", err)
	}
	if !ok {
		t.Fatalf("expected guard to match")
	}

	ok, err = EvalGuard(`${priority}=="low"`, ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("EvalGuard: %v", err)
	}
	if ok {
		t.Fatalf("expected guard to not match")
	}
}

func TestEvalGuardInequality(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ex.Headers["priority"] = "high"

	ok, err := EvalGuard("${priority}!='low'", ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("EvalGuard: %v", err)
	}
	if !ok {
		t.Fatalf("expected != guard to match")
	}
}

func TestEvalGuardBareTruthiness(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ex.Headers["enabled"] = "true"

	ok, err := EvalGuard("${enabled}", ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("EvalGuard: %v", err)
	}
	if !ok {
		t.Fatalf("expected truthy guard to match")
	}

	ex.Headers["enabled"] = "false"
	ok, err = EvalGuard("${enabled}", ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("EvalGuard: %v", err)
	}
	if ok {
		t.Fatalf("expected falsy guard to not match")
	}
}

func TestEvalGuardEmptyConditionIsTrue(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ok, err := EvalGuard("", ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("EvalGuard: %v", err)
	}
	if !ok {
		t.Fatalf("expected empty condition to always match (otherwise/default branch)")
	}
}
