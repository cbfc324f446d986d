// Package compiler translates a tenant-scoped route definition's flat
// node/edge graph into a nested, scoped executable tree.
package compiler

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/corewire/routeforge/pkg/apperrors"
	"github.com/corewire/routeforge/internal/routemodel"
)

const (
	handleWhen      = "when"
	handleOtherwise = "otherwise"
	handleTry       = "try"
	handleCatch     = "catch"

	// handleAfter marks a filter node's edge as unconditional continuation
	// rather than scoped body: it runs whether or not the predicate passes.
	// Edges with no handle (the common case) are the filtered body itself.
	handleAfter = "after"

	defaultExceptionType = "Exception"
)

// Compiler validates and compiles route definitions against a configured
// URI allowlist.
type Compiler struct {
	allowedSchemes map[string]bool
	allowedHosts   map[string]bool
}

// New builds a Compiler. Empty allowlists permit every scheme/host.
func New(allowedSchemes, allowedHTTPHosts []string) *Compiler {
	c := &Compiler{
		allowedSchemes: make(map[string]bool, len(allowedSchemes)),
		allowedHosts:   make(map[string]bool, len(allowedHTTPHosts)),
	}
	for _, s := range allowedSchemes {
		c.allowedSchemes[strings.ToLower(s)] = true
	}
	for _, h := range allowedHTTPHosts {
		c.allowedHosts[strings.ToLower(h)] = true
	}
	return c
}

type graph struct {
	nodes   map[string]routemodel.Node
	order   []string // declaration order, for deterministic traversal
	outEdges map[string][]routemodel.Edge
}

func buildGraph(def routemodel.RouteDefinition) *graph {
	g := &graph{
		nodes:    make(map[string]routemodel.Node, len(def.Nodes)),
		order:    make([]string, 0, len(def.Nodes)),
		outEdges: make(map[string][]routemodel.Edge),
	}
	for _, n := range def.Nodes {
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	for _, e := range def.Edges {
		g.outEdges[e.Source] = append(g.outEdges[e.Source], e)
	}
	return g
}

// Validate checks every invariant in §3 without building an executable tree.
func (c *Compiler) Validate(def routemodel.RouteDefinition) error {
	_, err := c.validate(def)
	return err
}

// Compile validates def and, on success, builds its executable tree.
func (c *Compiler) Compile(def routemodel.RouteDefinition) (*CompiledRoute, error) {
	g, err := c.validate(def)
	if err != nil {
		return nil, apperrors.CompileFailure(def.ID, err)
	}

	fromID := findFromNodeID(g)
	memo := make(map[string]*Tree, len(g.nodes))
	root := buildTree(g, fromID, memo)

	return &CompiledRoute{TenantID: def.TenantID, RouteID: def.ID, Root: root}, nil
}

func (c *Compiler) validate(def routemodel.RouteDefinition) (*graph, error) {
	if err := validateNodeIDs(def); err != nil {
		return nil, err
	}

	fromCount := 0
	for _, n := range def.Nodes {
		if !routemodel.IsKnownNodeType(n.Type) {
			return nil, apperrors.ValidationError("nodes["+n.ID+"].type", "unknown node type "+n.Type)
		}
		if n.Type == routemodel.NodeFrom {
			fromCount++
			if strings.TrimSpace(n.URI) == "" {
				return nil, apperrors.ValidationError("nodes["+n.ID+"].uri", "from node requires a non-empty uri")
			}
		}
	}
	if fromCount != 1 {
		return nil, apperrors.ValidationError("nodes", fmt.Sprintf("expected exactly one from node, found %d", fromCount))
	}

	g := buildGraph(def)

	if err := validateEdgeEndpoints(g, def.Edges); err != nil {
		return nil, err
	}

	fromID := findFromNodeID(g)

	if err := detectCycles(g, fromID); err != nil {
		return nil, err
	}

	if err := checkReachability(g, fromID); err != nil {
		return nil, err
	}

	if err := c.validateURIs(g); err != nil {
		return nil, err
	}

	if err := validateHandles(g); err != nil {
		return nil, err
	}

	return g, nil
}

func validateNodeIDs(def routemodel.RouteDefinition) error {
	seen := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return apperrors.ValidationError("nodes", "node id must not be empty")
		}
		if seen[n.ID] {
			return apperrors.ValidationError("nodes["+n.ID+"]", "duplicate node id")
		}
		seen[n.ID] = true
	}
	return nil
}

func validateEdgeEndpoints(g *graph, edges []routemodel.Edge) error {
	for _, e := range edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return apperrors.ValidationError("edges["+e.ID+"].source", "references unknown node "+e.Source)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return apperrors.ValidationError("edges["+e.ID+"].target", "references unknown node "+e.Target)
		}
	}
	return nil
}

func findFromNodeID(g *graph) string {
	for _, id := range g.order {
		if g.nodes[id].Type == routemodel.NodeFrom {
			return id
		}
	}
	return ""
}

const (
	colorUnvisited = 0
	colorVisiting  = 1
	colorVisited   = 2
)

func detectCycles(g *graph, fromID string) error {
	colors := make(map[string]int, len(g.nodes))
	var walk func(id string) error
	walk = func(id string) error {
		colors[id] = colorVisiting
		for _, e := range g.outEdges[id] {
			switch colors[e.Target] {
			case colorVisiting:
				return apperrors.GraphCycle(e.Target)
			case colorUnvisited:
				if err := walk(e.Target); err != nil {
					return err
				}
			}
		}
		colors[id] = colorVisited
		return nil
	}
	return walk(fromID)
}

func checkReachability(g *graph, fromID string) error {
	visited := make(map[string]bool, len(g.nodes))
	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, e := range g.outEdges[id] {
			walk(e.Target)
		}
	}
	walk(fromID)

	var unreachable []string
	for _, id := range g.order {
		if !visited[id] {
			unreachable = append(unreachable, id)
		}
	}
	if len(unreachable) > 0 {
		sort.Strings(unreachable)
		return apperrors.Unreachable(unreachable)
	}
	return nil
}

func (c *Compiler) validateURIs(g *graph) error {
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Type != routemodel.NodeFrom && n.Type != routemodel.NodeTo {
			continue
		}
		if strings.TrimSpace(n.URI) == "" {
			continue
		}
		if err := c.validateURI(n.ID, n.URI); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) validateURI(nodeID, raw string) error {
	scheme, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return apperrors.ValidationError("nodes["+nodeID+"].uri", "uri missing scheme: "+raw)
	}
	scheme = strings.ToLower(scheme)

	if len(c.allowedSchemes) > 0 && !c.allowedSchemes[scheme] {
		return apperrors.ValidationError("nodes["+nodeID+"].uri", "scheme not permitted: "+scheme)
	}

	if (scheme == "http" || scheme == "https") && len(c.allowedHosts) > 0 {
		parsed, err := url.Parse(raw)
		if err != nil {
			return apperrors.ValidationError("nodes["+nodeID+"].uri", "malformed http(s) uri: "+rest)
		}
		host := strings.ToLower(parsed.Hostname())
		if !c.allowedHosts[host] {
			return apperrors.ValidationError("nodes["+nodeID+"].uri", "host not permitted: "+host)
		}
	}
	return nil
}

func validateHandles(g *graph) error {
	for _, id := range g.order {
		n := g.nodes[id]
		switch n.Type {
		case routemodel.NodeChoice:
			ok := false
			for _, e := range g.outEdges[id] {
				if e.SourceHandle == handleWhen || e.SourceHandle == handleOtherwise {
					ok = true
					break
				}
			}
			if !ok {
				return apperrors.ValidationError("nodes["+id+"]", "choice requires at least one when or otherwise edge")
			}
		case routemodel.NodeTryCatch:
			ok := false
			for _, e := range g.outEdges[id] {
				if e.SourceHandle == handleTry {
					ok = true
					break
				}
			}
			if !ok {
				return apperrors.ValidationError("nodes["+id+"]", "tryCatch requires at least one try edge")
			}
		}
	}
	return nil
}

func buildTree(g *graph, nodeID string, memo map[string]*Tree) *Tree {
	if t, ok := memo[nodeID]; ok {
		return t
	}
	n := g.nodes[nodeID]
	t := &Tree{NodeID: nodeID, NodeType: n.Type, Node: n}
	memo[nodeID] = t

	edges := g.outEdges[nodeID]

	if routemodel.IsInline(n.Type) {
		for _, e := range edges {
			t.Successors = append(t.Successors, buildTree(g, e.Target, memo))
		}
		return t
	}

	switch n.Type {
	case routemodel.NodeChoice:
		t.WhenBranches, t.Otherwise = buildChoiceRegions(g, edges, n, memo)
	case routemodel.NodeTryCatch:
		t.Try, t.Catches = buildTryCatchRegions(g, edges, memo)
	case routemodel.NodeFilter:
		// A falsy filter skips its body entirely, so continuation after the
		// scope cannot be reached via the body chain's own tail the way it
		// is for split/loop/multicast (which always run their children).
		// An "after" edge is the only way to express that continuation;
		// every other edge out of a filter node is its conditional body.
		for _, e := range edges {
			if e.SourceHandle == handleAfter {
				t.Successors = append(t.Successors, buildTree(g, e.Target, memo))
			} else {
				t.Children = append(t.Children, buildTree(g, e.Target, memo))
			}
		}
	case routemodel.NodeSplit, routemodel.NodeLoop, routemodel.NodeMulticast:
		for _, e := range edges {
			t.Children = append(t.Children, buildTree(g, e.Target, memo))
		}
	}
	return t
}

func buildChoiceRegions(g *graph, edges []routemodel.Edge, n routemodel.Node, memo map[string]*Tree) ([]ChoiceBranch, []*Tree) {
	var branches []ChoiceBranch
	var otherwise []*Tree
	for _, e := range edges {
		switch e.SourceHandle {
		case handleWhen:
			condition := e.Condition
			if condition == "" {
				condition = n.Expression
			}
			branches = append(branches, ChoiceBranch{Condition: condition, Root: buildTree(g, e.Target, memo)})
		case handleOtherwise:
			otherwise = append(otherwise, buildTree(g, e.Target, memo))
		}
	}
	return branches, otherwise
}

func buildTryCatchRegions(g *graph, edges []routemodel.Edge, memo map[string]*Tree) ([]*Tree, []CatchHandler) {
	var try []*Tree
	groups := make(map[string]*CatchHandler)
	var order []string
	for _, e := range edges {
		switch e.SourceHandle {
		case handleTry:
			try = append(try, buildTree(g, e.Target, memo))
		case handleCatch:
			exType := e.ExceptionType
			if exType == "" {
				exType = defaultExceptionType
			}
			h, ok := groups[exType]
			if !ok {
				h = &CatchHandler{ExceptionType: exType}
				groups[exType] = h
				order = append(order, exType)
			}
			h.Roots = append(h.Roots, buildTree(g, e.Target, memo))
		}
	}
	catches := make([]CatchHandler, 0, len(order))
	for _, exType := range order {
		catches = append(catches, *groups[exType])
	}
	return try, catches
}
