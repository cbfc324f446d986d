package routemodel

import "testing"

func TestRouteDefinitionKey(t *testing.T) {
	r := RouteDefinition{TenantID: "acme", ID: "order-intake"}
	if got, want := r.Key(), "acme::order-intake"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
	if got, want := Key("acme", "order-intake"), "acme::order-intake"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func TestIsScopedAndInline(t *testing.T) {
	scoped := []string{NodeChoice, NodeTryCatch, NodeSplit, NodeMulticast, NodeLoop, NodeFilter}
	for _, nt := range scoped {
		if !IsScoped(nt) {
			t.Errorf("expected %q to be scoped", nt)
		}
		if IsInline(nt) {
			t.Errorf("expected %q to not be inline", nt)
		}
	}

	inline := []string{NodeFrom, NodeTo, NodeLog, NodeSetBody, NodeTransform,
		NodeDelay, NodeAggregate, NodeEnrich, NodeThrottle,
		NodeWireTap, NodeConvertBodyTo, NodeDebit, NodeCredit, NodeSagaTransfer,
		NodeCompensate}
	for _, nt := range inline {
		if IsScoped(nt) {
			t.Errorf("expected %q to not be scoped", nt)
		}
		if !IsInline(nt) {
			t.Errorf("expected %q to be inline", nt)
		}
	}
}

func TestIsKnownNodeType(t *testing.T) {
	if !IsKnownNodeType(NodeSagaTransfer) {
		t.Errorf("expected sagaTransfer to be known")
	}
	if IsKnownNodeType("bogus") {
		t.Errorf("expected bogus node type to be unknown")
	}
}
