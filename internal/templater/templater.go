// Package templater resolves the "${path}" expression language used by
// route node messages, properties, and choice guards.
package templater

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/corewire/routeforge/internal/routemodel"
)

const (
	tokenOpen  = "${"
	tokenClose = "}"
)

// Resolve expands every "${path}" token in raw against the exchange's
// headers (first), then the JSON body (dotted path or full jsonpath,
// depending on lang), then properties. A path that resolves to nothing is
// replaced with the empty string — Resolve never errors on a missing path,
// only on a malformed token.
func Resolve(raw string, ex *routemodel.Exchange, lang routemodel.ExpressionLanguage) (string, error) {
	if !strings.Contains(raw, tokenOpen) {
		return raw, nil
	}

	var out strings.Builder
	rest := raw
	for {
		start := strings.Index(rest, tokenOpen)
		if start == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		rest = rest[start+len(tokenOpen):]

		end := strings.Index(rest, tokenClose)
		if end == -1 {
			return "", fmt.Errorf("templater: unterminated token in %q", raw)
		}
		path := strings.TrimSpace(rest[:end])
		rest = rest[end+len(tokenClose):]

		value, found := lookup(path, ex, lang)
		if found {
			out.WriteString(value)
		}
	}
	return out.String(), nil
}

// Extract resolves a single "${path}" expression (with no surrounding text)
// to its typed value, for callers that need the underlying type rather than
// a string (e.g. a sagaTransfer node's amount). It returns found=false when
// the path has no value anywhere in the cascade, distinguishing "absent"
// from "present but empty" the way Resolve cannot.
func Extract(expr string, ex *routemodel.Exchange, lang routemodel.ExpressionLanguage) (interface{}, bool) {
	path := strings.TrimSpace(expr)
	path = strings.TrimPrefix(path, tokenOpen)
	path = strings.TrimSuffix(path, tokenClose)
	path = strings.TrimSpace(path)

	if h, ok := ex.Headers[path]; ok {
		return h, true
	}
	if v, ok := bodyLookup(path, ex.Body, lang); ok {
		return v, true
	}
	if v, ok := ex.Properties[path]; ok {
		return v, true
	}
	return nil, false
}

// ExtractFromBody resolves path against only the exchange's body, skipping
// the header/property cascade Extract applies. Saga node parameter
// extraction uses this to keep its own header step distinct and later in
// its own precedence order.
func ExtractFromBody(path string, ex *routemodel.Exchange, lang routemodel.ExpressionLanguage) (interface{}, bool) {
	return bodyLookup(path, ex.Body, lang)
}

func lookup(path string, ex *routemodel.Exchange, lang routemodel.ExpressionLanguage) (string, bool) {
	if h, ok := ex.Headers[path]; ok {
		return h, true
	}
	if v, ok := bodyLookup(path, ex.Body, lang); ok {
		return toStringValue(v), true
	}
	if v, ok := ex.Properties[path]; ok {
		return toStringValue(v), true
	}
	return "", false
}

func bodyLookup(path string, body interface{}, lang routemodel.ExpressionLanguage) (interface{}, bool) {
	if body == nil {
		return nil, false
	}
	switch lang {
	case routemodel.ExpressionJSONPath:
		return jsonPathLookup(path, body)
	default:
		return dottedLookup(path, body)
	}
}

func dottedLookup(path string, body interface{}) (interface{}, bool) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func jsonPathLookup(path string, body interface{}) (interface{}, bool) {
	expr := path
	if !strings.HasPrefix(expr, "$") {
		expr = "$." + expr
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, false
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false
	}
	value, err := jsonpath.Get(expr, data)
	if err != nil {
		return nil, false
	}
	return value, true
}

func toStringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		// Unquote plain JSON string encodings so "true"/"3" render bare.
		s := string(b)
		if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
			var unquoted string
			if err := json.Unmarshal(b, &unquoted); err == nil {
				return unquoted
			}
		}
		return s
	}
}
