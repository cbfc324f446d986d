package routemodel

// NodeType enumerates the recognized route graph vertex kinds.
const (
	NodeFrom          = "from"
	NodeTo            = "to"
	NodeLog           = "log"
	NodeSetBody       = "setBody"
	NodeTransform     = "transform"
	NodeFilter        = "filter"
	NodeChoice        = "choice"
	NodeDelay         = "delay"
	NodeSplit         = "split"
	NodeAggregate     = "aggregate"
	NodeMulticast     = "multicast"
	NodeEnrich        = "enrich"
	NodeTryCatch      = "tryCatch"
	NodeLoop          = "loop"
	NodeThrottle      = "throttle"
	NodeWireTap       = "wireTap"
	NodeConvertBodyTo = "convertBodyTo"
	NodeDebit         = "debit"
	NodeCredit        = "credit"
	NodeSagaTransfer  = "sagaTransfer"
	NodeCompensate    = "compensate"
)

// scopedNodeTypes holds every node type that establishes a nested region of
// child nodes (reached via a dedicated edge handle) rather than a single
// linear successor. The compiler consults this table to decide which nodes
// get region interpretation; the executor dispatches on the node type itself.
var scopedNodeTypes = map[string]bool{
	NodeChoice:    true,
	NodeTryCatch:  true,
	NodeSplit:     true,
	NodeMulticast: true,
	NodeLoop:      true,
	NodeFilter:    true,
}

// IsScoped reports whether a node type introduces nested child regions
// instead of a single flat successor chain.
func IsScoped(nodeType string) bool {
	return scopedNodeTypes[nodeType]
}

// IsInline reports whether a node type is a plain single-successor step.
func IsInline(nodeType string) bool {
	return !IsScoped(nodeType)
}

// knownNodeTypes is the full recognized vocabulary; used by the compiler to
// reject unknown node types during validation.
var knownNodeTypes = map[string]bool{
	NodeFrom: true, NodeTo: true, NodeLog: true, NodeSetBody: true,
	NodeTransform: true, NodeFilter: true, NodeChoice: true, NodeDelay: true,
	NodeSplit: true, NodeAggregate: true, NodeMulticast: true, NodeEnrich: true,
	NodeTryCatch: true, NodeLoop: true, NodeThrottle: true, NodeWireTap: true,
	NodeConvertBodyTo: true, NodeDebit: true, NodeCredit: true,
	NodeSagaTransfer: true, NodeCompensate: true,
}

// IsKnownNodeType reports whether nodeType is part of the recognized
// vocabulary.
func IsKnownNodeType(nodeType string) bool {
	return knownNodeTypes[nodeType]
}
