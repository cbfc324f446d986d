package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/pkg/apperrors"
)

func simpleLogRoute() routemodel.RouteDefinition {
	return routemodel.RouteDefinition{
		TenantID: "default",
		ID:       "simple-log",
		Nodes: []routemodel.Node{
			{ID: "start", Type: routemodel.NodeFrom, URI: "direct:start"},
			{ID: "logger", Type: routemodel.NodeLog, Message: "hello ${body.name}"},
		},
		Edges: []routemodel.Edge{
			{ID: "e1", Source: "start", Target: "logger"},
		},
	}
}

func TestCompileSimpleLogRoute(t *testing.T) {
	c := New(nil, nil)
	compiled, err := c.Compile(simpleLogRoute())
	require.NoError(t, err)
	require.NotNil(t, compiled.Root)
	assert.Equal(t, "start", compiled.Root.NodeID)
	require.Len(t, compiled.Root.Successors, 1)
	assert.Equal(t, "logger", compiled.Root.Successors[0].NodeID)
	assert.Equal(t, "default::simple-log", compiled.Key())
}

func TestValidateRejectsMissingFrom(t *testing.T) {
	def := simpleLogRoute()
	def.Nodes[0].Type = routemodel.NodeLog

	c := New(nil, nil)
	err := c.Validate(def)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestValidateRejectsDuplicateNodeIDs(t *testing.T) {
	def := simpleLogRoute()
	def.Nodes = append(def.Nodes, routemodel.Node{ID: "logger", Type: routemodel.NodeLog})

	c := New(nil, nil)
	err := c.Validate(def)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	def := simpleLogRoute()
	def.Edges = append(def.Edges, routemodel.Edge{ID: "e2", Source: "logger", Target: "ghost"})

	c := New(nil, nil)
	err := c.Validate(def)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestValidateRejectsUnreachableNode(t *testing.T) {
	def := simpleLogRoute()
	def.Nodes = append(def.Nodes, routemodel.Node{ID: "orphan", Type: routemodel.NodeLog})

	c := New(nil, nil)
	err := c.Validate(def)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnreachable, apperrors.CodeOf(err))
}

func TestValidateRejectsCycle(t *testing.T) {
	def := simpleLogRoute()
	def.Nodes = append(def.Nodes, routemodel.Node{ID: "back", Type: routemodel.NodeLog})
	def.Edges = append(def.Edges,
		routemodel.Edge{ID: "e2", Source: "logger", Target: "back"},
		routemodel.Edge{ID: "e3", Source: "back", Target: "logger"},
	)

	c := New(nil, nil)
	err := c.Validate(def)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeGraphCycle, apperrors.CodeOf(err))
}

func TestValidateRejectsChoiceWithoutWhenOrOtherwise(t *testing.T) {
	def := routemodel.RouteDefinition{
		TenantID: "default",
		ID:       "choice-route",
		Nodes: []routemodel.Node{
			{ID: "start", Type: routemodel.NodeFrom, URI: "direct:start"},
			{ID: "branch", Type: routemodel.NodeChoice},
			{ID: "log1", Type: routemodel.NodeLog},
		},
		Edges: []routemodel.Edge{
			{ID: "e1", Source: "start", Target: "branch"},
			{ID: "e2", Source: "branch", Target: "log1"},
		},
	}

	c := New(nil, nil)
	err := c.Validate(def)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestValidateRejectsTryCatchWithoutTry(t *testing.T) {
	def := routemodel.RouteDefinition{
		TenantID: "default",
		ID:       "trycatch-route",
		Nodes: []routemodel.Node{
			{ID: "start", Type: routemodel.NodeFrom, URI: "direct:start"},
			{ID: "guard", Type: routemodel.NodeTryCatch},
			{ID: "handler", Type: routemodel.NodeLog},
		},
		Edges: []routemodel.Edge{
			{ID: "e1", Source: "start", Target: "guard"},
			{ID: "e2", Source: "guard", Target: "handler", SourceHandle: "catch"},
		},
	}

	c := New(nil, nil)
	err := c.Validate(def)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestValidateRejectsDisallowedScheme(t *testing.T) {
	def := simpleLogRoute()
	def.Nodes[0].URI = "ftp:start"

	c := New([]string{"direct", "http"}, nil)
	err := c.Validate(def)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestValidateRejectsDisallowedHTTPHost(t *testing.T) {
	def := simpleLogRoute()
	def.Nodes = append(def.Nodes, routemodel.Node{ID: "call", Type: routemodel.NodeTo, URI: "http://evil.example.com/hook"})
	def.Edges = append(def.Edges, routemodel.Edge{ID: "e2", Source: "logger", Target: "call"})

	c := New([]string{"direct", "http"}, []string{"trusted.example.com"})
	err := c.Validate(def)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestCompileChoiceBranchingRoute(t *testing.T) {
	def := routemodel.RouteDefinition{
		TenantID: "default",
		ID:       "priority-route",
		Nodes: []routemodel.Node{
			{ID: "start", Type: routemodel.NodeFrom, URI: "direct:start"},
			{ID: "branch", Type: routemodel.NodeChoice},
			{ID: "high", Type: routemodel.NodeLog, Message: "high priority"},
			{ID: "normal", Type: routemodel.NodeLog, Message: "normal priority"},
		},
		Edges: []routemodel.Edge{
			{ID: "e1", Source: "start", Target: "branch"},
			{ID: "e2", Source: "branch", Target: "high", SourceHandle: "when", Condition: "${header.priority}=='high'"},
			{ID: "e3", Source: "branch", Target: "normal", SourceHandle: "otherwise"},
		},
	}

	c := New(nil, nil)
	compiled, err := c.Compile(def)
	require.NoError(t, err)

	branchTree := compiled.Root.Successors[0]
	require.Len(t, branchTree.WhenBranches, 1)
	assert.Equal(t, "${header.priority}=='high'", branchTree.WhenBranches[0].Condition)
	assert.Equal(t, "high", branchTree.WhenBranches[0].Root.NodeID)
	require.Len(t, branchTree.Otherwise, 1)
	assert.Equal(t, "normal", branchTree.Otherwise[0].NodeID)
}

func TestCompileTryCatchGroupsByExceptionType(t *testing.T) {
	def := routemodel.RouteDefinition{
		TenantID: "default",
		ID:       "trycatch-route",
		Nodes: []routemodel.Node{
			{ID: "start", Type: routemodel.NodeFrom, URI: "direct:start"},
			{ID: "guard", Type: routemodel.NodeTryCatch},
			{ID: "risky", Type: routemodel.NodeTo, URI: "http://trusted.example.com/x"},
			{ID: "timeoutHandler", Type: routemodel.NodeLog},
			{ID: "otherHandler", Type: routemodel.NodeLog},
		},
		Edges: []routemodel.Edge{
			{ID: "e1", Source: "start", Target: "guard"},
			{ID: "e2", Source: "guard", Target: "risky", SourceHandle: "try"},
			{ID: "e3", Source: "guard", Target: "timeoutHandler", SourceHandle: "catch", ExceptionType: "TimeoutError"},
			{ID: "e4", Source: "guard", Target: "otherHandler", SourceHandle: "catch"},
		},
	}

	c := New([]string{"direct", "http"}, []string{"trusted.example.com"})
	compiled, err := c.Compile(def)
	require.NoError(t, err)

	guardTree := compiled.Root.Successors[0]
	require.Len(t, guardTree.Try, 1)
	assert.Equal(t, "risky", guardTree.Try[0].NodeID)
	require.Len(t, guardTree.Catches, 2)
	assert.Equal(t, "TimeoutError", guardTree.Catches[0].ExceptionType)
	assert.Equal(t, "Exception", guardTree.Catches[1].ExceptionType)
}

func TestCompileSplitRoutePreservesContinuation(t *testing.T) {
	def := routemodel.RouteDefinition{
		TenantID: "default",
		ID:       "split-route",
		Nodes: []routemodel.Node{
			{ID: "start", Type: routemodel.NodeFrom, URI: "direct:start"},
			{ID: "fanout", Type: routemodel.NodeSplit, Expression: "items", ExpressionLanguage: routemodel.ExpressionSimple},
			{ID: "perItem", Type: routemodel.NodeLog},
			{ID: "after", Type: routemodel.NodeLog},
		},
		Edges: []routemodel.Edge{
			{ID: "e1", Source: "start", Target: "fanout"},
			{ID: "e2", Source: "fanout", Target: "perItem"},
			{ID: "e3", Source: "perItem", Target: "after"},
		},
	}

	c := New(nil, nil)
	compiled, err := c.Compile(def)
	require.NoError(t, err)

	fanoutTree := compiled.Root.Successors[0]
	require.Len(t, fanoutTree.Children, 1)
	perItemTree := fanoutTree.Children[0]
	assert.Equal(t, "perItem", perItemTree.NodeID)
	require.Len(t, perItemTree.Successors, 1)
	assert.Equal(t, "after", perItemTree.Successors[0].NodeID)
}

func TestCompileFilterSeparatesBodyFromAfterContinuation(t *testing.T) {
	def := routemodel.RouteDefinition{
		TenantID: "default",
		ID:       "filter-route",
		Nodes: []routemodel.Node{
			{ID: "start", Type: routemodel.NodeFrom, URI: "direct:start"},
			{ID: "guard", Type: routemodel.NodeFilter, Expression: "allow", ExpressionLanguage: routemodel.ExpressionSimple},
			{ID: "whenAllowed", Type: routemodel.NodeLog},
			{ID: "always", Type: routemodel.NodeLog},
		},
		Edges: []routemodel.Edge{
			{ID: "e1", Source: "start", Target: "guard"},
			{ID: "e2", Source: "guard", Target: "whenAllowed"},
			{ID: "e3", Source: "guard", Target: "always", SourceHandle: "after"},
		},
	}

	c := New(nil, nil)
	compiled, err := c.Compile(def)
	require.NoError(t, err)

	guardTree := compiled.Root.Successors[0]
	require.Len(t, guardTree.Children, 1)
	assert.Equal(t, "whenAllowed", guardTree.Children[0].NodeID)
	require.Len(t, guardTree.Successors, 1)
	assert.Equal(t, "always", guardTree.Successors[0].NodeID)
}
