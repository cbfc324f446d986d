package apperrors

import (
	"errors"
	"net/http"
	"testing"
)

func TestEngineError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{
			name: "without underlying error",
			err:  New(CodeValidation, "test message", http.StatusBadRequest),
			want: "[ROUTE_1001] test message",
		},
		{
			name: "with underlying error",
			err:  Wrap(CodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_5001] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeInternal, "test", http.StatusInternalServerError, underlying)
	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestEngineError_WithDetails(t *testing.T) {
	err := New(CodeValidation, "test", http.StatusBadRequest)
	err.WithDetails("field", "nodes").WithDetails("reason", "empty")
	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "nodes" {
		t.Errorf("Details[field] = %v, want nodes", err.Details["field"])
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("nodes", "must contain exactly one from node")
	if err.Code != CodeValidation {
		t.Errorf("Code = %v, want %v", err.Code, CodeValidation)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestSchemaVersionUnsupported(t *testing.T) {
	err := SchemaVersionUnsupported(7, 3)
	if err.Code != CodeSchemaVersionUnsupport {
		t.Errorf("Code = %v, want %v", err.Code, CodeSchemaVersionUnsupport)
	}
	if err.Details["got"] != 7 || err.Details["supported"] != 3 {
		t.Errorf("unexpected details: %#v", err.Details)
	}
}

func TestGraphCycleAndUnreachable(t *testing.T) {
	cycle := GraphCycle("node-3")
	if cycle.Code != CodeGraphCycle || cycle.Details["nodeId"] != "node-3" {
		t.Errorf("unexpected cycle error: %#v", cycle)
	}
	unreachable := Unreachable([]string{"node-5", "node-6"})
	if unreachable.Code != CodeUnreachable {
		t.Errorf("Code = %v, want %v", unreachable.Code, CodeUnreachable)
	}
}

func TestRouteNotFoundAndAlreadyDeployed(t *testing.T) {
	notFound := RouteNotFound("acme", "order-intake")
	if notFound.Code != CodeRouteNotFound || notFound.HTTPStatus != http.StatusNotFound {
		t.Errorf("unexpected not-found error: %#v", notFound)
	}
	deployed := RouteAlreadyDeployed("acme", "order-intake")
	if deployed.Code != CodeRouteAlreadyDeployed || deployed.HTTPStatus != http.StatusConflict {
		t.Errorf("unexpected already-deployed error: %#v", deployed)
	}
}

func TestExecutionError(t *testing.T) {
	cause := errors.New("connection refused")
	err := ExecutionError("order-intake", "node-2", "to", cause)
	if err.Code != CodeExecutionError {
		t.Errorf("Code = %v, want %v", err.Code, CodeExecutionError)
	}
	if err.Details["nodeType"] != "to" {
		t.Errorf("Details[nodeType] = %v, want to", err.Details["nodeType"])
	}
	if !errors.Is(err, cause) && err.Unwrap() != cause {
		t.Errorf("expected cause to be unwrappable")
	}
}

func TestInsufficientBalanceAccountErrors(t *testing.T) {
	bal := InsufficientBalance("ACC-1", "100.00", "40.00")
	if bal.Code != CodeInsufficientBalance {
		t.Errorf("Code = %v, want %v", bal.Code, CodeInsufficientBalance)
	}
	notActive := AccountNotActive("ACC-1", "FROZEN")
	if notActive.Code != CodeAccountNotActive {
		t.Errorf("Code = %v, want %v", notActive.Code, CodeAccountNotActive)
	}
	notFound := AccountNotFound("ACC-404")
	if notFound.Code != CodeAccountNotFound || notFound.HTTPStatus != http.StatusNotFound {
		t.Errorf("unexpected not-found error: %#v", notFound)
	}
}

func TestCompensationFailed(t *testing.T) {
	original := errors.New("credit failed: destination account frozen")
	compErr := errors.New("debit reversal failed: connection lost")
	err := CompensationFailed(original, compErr)
	if err.Code != CodeCompensationFailed {
		t.Errorf("Code = %v, want %v", err.Code, CodeCompensationFailed)
	}
	if err.Details["originalError"] != original.Error() {
		t.Errorf("Details[originalError] = %v, want %v", err.Details["originalError"], original.Error())
	}
	if err.Unwrap() != compErr {
		t.Errorf("expected Unwrap to return the compensation error")
	}
}

func TestIsEngineErrorAndGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"engine error", New(CodeInternal, "test", http.StatusInternalServerError), true},
		{"standard error", errors.New("standard"), false},
		{"nil error", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEngineError(tt.err); got != tt.want {
				t.Errorf("IsEngineError() = %v, want %v", got, tt.want)
			}
		})
	}

	if GetHTTPStatus(errors.New("standard")) != http.StatusInternalServerError {
		t.Errorf("expected default 500 for non-engine errors")
	}
	if GetHTTPStatus(RouteNotFound("acme", "x")) != http.StatusNotFound {
		t.Errorf("expected 404 for RouteNotFound")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(errors.New("plain")) != "" {
		t.Errorf("expected empty code for non-engine error")
	}
	if CodeOf(RouteNotFound("acme", "x")) != CodeRouteNotFound {
		t.Errorf("expected CodeRouteNotFound")
	}
}
