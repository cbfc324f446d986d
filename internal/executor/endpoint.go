package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/pkg/apperrors"
)

// invokeEndpoint dispatches a "to"/"enrich" node's uri to the matching
// transport and replaces ex.Body with whatever the endpoint returns.
func (e *Executor) invokeEndpoint(ctx context.Context, uri string, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok {
		return ex, apperrors.ValidationError("uri", "missing scheme: "+uri)
	}

	switch strings.ToLower(scheme) {
	case "direct":
		return e.invokeDirect(ctx, rest, ex)
	case "log":
		e.log.WithField("category", rest).WithField("headers", ex.Headers).Info(fmt.Sprintf("%v", ex.Body))
		return ex, nil
	case "bean":
		return e.invokeBean(ctx, rest, ex)
	case "http", "https":
		return e.invokeHTTP(ctx, uri, ex)
	default:
		return ex, apperrors.TransportError(uri, fmt.Errorf("unsupported scheme %q", scheme))
	}
}

func (e *Executor) invokeDirect(ctx context.Context, name string, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	if e.invoker == nil {
		return ex, apperrors.TransportError("direct:"+name, fmt.Errorf("no route invoker configured"))
	}
	result, err := e.invoker.InvokeDirect(ctx, ex.FromRouteID, name, ex)
	if err != nil {
		return ex, apperrors.TransportError("direct:"+name, err)
	}
	ex.Body = result.Body
	return ex, nil
}

func (e *Executor) invokeBean(ctx context.Context, rest string, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	name := rest
	if idx := strings.Index(rest, "?"); idx != -1 {
		name = rest[:idx]
	}
	fn, ok := e.beans[name]
	if !ok {
		return ex, apperrors.TransportError("bean:"+rest, fmt.Errorf("no bean registered with name %q", name))
	}
	result, err := fn(ctx, ex)
	if err != nil {
		return ex, apperrors.TransportError("bean:"+rest, err)
	}
	ex.Body = result.Body
	return ex, nil
}

func (e *Executor) invokeHTTP(ctx context.Context, rawURL string, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return ex, apperrors.ValidationError("uri", "malformed http(s) uri: "+rawURL)
	}

	payload, err := json.Marshal(ex.Body)
	if err != nil {
		return ex, apperrors.Internal("failed to marshal exchange body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return ex, apperrors.TransportError(rawURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ex.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return ex, apperrors.TransportError(rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ex, apperrors.TransportError(rawURL, err)
	}
	if resp.StatusCode >= 300 {
		return ex, apperrors.TransportError(rawURL, fmt.Errorf("endpoint returned status %d", resp.StatusCode))
	}

	if len(body) == 0 {
		return ex, nil
	}
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		ex.Body = string(body)
		return ex, nil
	}
	ex.Body = decoded
	return ex, nil
}
