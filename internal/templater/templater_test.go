package templater

import (
	"testing"

	"github.com/corewire/routeforge/internal/routemodel"
)

func TestResolveHeaderTakesPrecedence(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ex.Headers["priority"] = "high"
	ex.Properties["priority"] = "low"

	got, err := Resolve("${priority}", ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "high" {
		t.Fatalf("got %q, want high", got)
	}
}

func TestResolveBodyDottedPath(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ex.Body = map[string]interface{}{
		"order": map[string]interface{}{
			"total": 42.5,
		},
	}

	got, err := Resolve("${order.total}", ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "42.5" {
		t.Fatalf("got %q, want 42.5", got)
	}
}

func TestResolvePropertyFallback(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ex.Properties["accountNumber"] = "ACC-1"

	got, err := Resolve("${accountNumber}", ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "ACC-1" {
		t.Fatalf("got %q, want ACC-1", got)
	}
}

func TestResolveMissingPathBecomesEmptyString(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	got, err := Resolve("hello ${missing} world", ex, routemodel.ExpressionSimple)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "hello  world" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveUnterminatedTokenErrors(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	if _, err := Resolve("${unterminated", ex, routemodel.ExpressionSimple); err == nil {
		t.Fatalf("expected error for unterminated token")
	}
}

func TestResolveJSONPath(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ex.Body = map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"sku": "A1"},
			map[string]interface{}{"sku": "B2"},
		},
	}

	got, err := Resolve("${items[0].sku}", ex, routemodel.ExpressionJSONPath)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "A1" {
		t.Fatalf("got %q, want A1", got)
	}
}

func TestExtractDistinguishesAbsentFromEmpty(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ex.Headers["empty"] = ""

	if _, found := Extract("${missing}", ex, routemodel.ExpressionSimple); found {
		t.Fatalf("expected missing path to report not found")
	}
	value, found := Extract("${empty}", ex, routemodel.ExpressionSimple)
	if !found {
		t.Fatalf("expected empty header to still be found")
	}
	if value != "" {
		t.Fatalf("got %v, want empty string", value)
	}
}

func TestExtractReturnsTypedBodyValue(t *testing.T) {
	ex := routemodel.NewExchange("r1")
	ex.Body = map[string]interface{}{"amount": 1500.0}

	value, found := Extract("${amount}", ex, routemodel.ExpressionSimple)
	if !found {
		t.Fatalf("expected amount to be found")
	}
	if value != 1500.0 {
		t.Fatalf("got %v, want 1500.0", value)
	}
}
