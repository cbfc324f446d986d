package compiler

import "github.com/corewire/routeforge/internal/routemodel"

// Tree is one node of a compiled executable route. Only the fields relevant
// to the node's type are populated; the executor switches on NodeType to
// decide which to read. This mirrors the graph→tree transform described for
// the route compiler: scoped node types populate one of the region fields,
// inline node types populate Successors.
type Tree struct {
	NodeID   string
	NodeType string
	Node     routemodel.Node

	// Successors holds the next steps for an inline node, in edge
	// declaration order. For NodeFilter specifically, Successors instead
	// holds the "after" edges: continuation that runs whether or not the
	// predicate passed, since a falsy filter skips Children entirely and so
	// cannot reach a downstream node via the body chain's own tail.
	Successors []*Tree

	// WhenBranches and Otherwise are populated for NodeChoice.
	WhenBranches []ChoiceBranch
	Otherwise    []*Tree

	// Try and Catches are populated for NodeTryCatch.
	Try     []*Tree
	Catches []CatchHandler

	// Children is populated for NodeSplit, NodeLoop, NodeMulticast (the
	// single region of all outgoing edges' subtrees), and for NodeFilter
	// (the subset of outgoing edges that are not marked "after").
	Children []*Tree
}

// ChoiceBranch is one `when` region of a compiled choice node.
type ChoiceBranch struct {
	Condition string
	Root      *Tree
}

// CatchHandler groups every `catch` edge sharing the same declared exception
// type into one handler.
type CatchHandler struct {
	ExceptionType string
	Roots         []*Tree
}

// CompiledRoute is the result of compiling a RouteDefinition: a tenant-scoped
// executable tree rooted at the definition's sole `from` node.
type CompiledRoute struct {
	TenantID string
	RouteID  string
	Root     *Tree
}

// Key returns the internal tenant-scoped catalog key for this compiled route.
func (c *CompiledRoute) Key() string {
	return routemodel.Key(c.TenantID, c.RouteID)
}
