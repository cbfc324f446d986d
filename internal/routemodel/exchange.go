package routemodel

// Exchange carries a message through a compiled route's node chain. Body is
// kept as a JSON-shaped value (map/slice/scalar) so the templater can path
// into it without a route-specific schema.
type Exchange struct {
	Headers     map[string]string      `json:"headers"`
	Body        interface{}            `json:"body"`
	Properties  map[string]interface{} `json:"properties"`
	FromRouteID string                 `json:"fromRouteId"`
}

// NewExchange returns an Exchange with initialized header/property maps.
func NewExchange(fromRouteID string) *Exchange {
	return &Exchange{
		Headers:     make(map[string]string),
		Properties:  make(map[string]interface{}),
		FromRouteID: fromRouteID,
	}
}

// Clone returns a shallow-structural deep copy of the exchange suitable for
// handing an independent branch (e.g. multicast, wireTap) its own mutable
// view of headers/properties. Body is not deep-copied here; callers that
// need an isolated body (multicast) must copy it themselves since Body's
// concrete shape is opaque to this package.
func (e *Exchange) Clone() *Exchange {
	clone := &Exchange{
		Body:        e.Body,
		FromRouteID: e.FromRouteID,
		Headers:     make(map[string]string, len(e.Headers)),
		Properties:  make(map[string]interface{}, len(e.Properties)),
	}
	for k, v := range e.Headers {
		clone.Headers[k] = v
	}
	for k, v := range e.Properties {
		clone.Properties[k] = v
	}
	return clone
}
