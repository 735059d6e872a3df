package gateway

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// JoinURL joins base and path with exactly one separator. Runs of slashes in
// path are collapsed and the query string is kept. An absolute http(s) path
// is returned as is.
func JoinURL(base, path string) string {
	if hasScheme(path) {
		return path
	}

	query := ""
	if idx := strings.IndexAny(path, "?#"); idx != -1 {
		path, query = path[:idx], path[idx:]
	}

	path = collapseSlashes(strings.Trim(path, "/"))
	base = strings.TrimRight(base, "/")

	if path == "" {
		if base == "" {
			return "/" + query
		}
		return base + query
	}

	return base + "/" + path + query
}

// ResolveBase picks the base address: an absolute base is used as is, a
// relative one (a same-origin proxy path such as /api) is joined onto origin.
func ResolveBase(origin, base string) string {
	base = strings.TrimSpace(base)
	if hasScheme(base) {
		return strings.TrimRight(base, "/")
	}
	return strings.TrimRight(JoinURL(strings.TrimSpace(origin), base), "/")
}

func hasScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func collapseSlashes(s string) string {
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}

var errBodyTooLarge = errors.New("response body is too large")

// readBody reads at most limit bytes of the decoded body; limit <= 0 disables the cap.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}

	if limit <= 0 {
		return io.ReadAll(reader)
	}

	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", errBodyTooLarge, limit)
	}
	return body, nil
}

func decodeJSON(body []byte) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}

	var data any
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return nil, err
	}

	return data, nil
}

func isJSON(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// serviceMessage extracts the server supplied message from an error body.
func serviceMessage(data any) string {
	body, ok := data.(map[string]any)
	if !ok {
		return ""
	}

	for _, key := range []string{"detail", "error", "message"} {
		if msg := flattenMessage(body[key]); msg != "" {
			return msg
		}
	}

	return ""
}

// flattenMessage handles plain strings and validation error lists of the form
// [{"loc": [...], "msg": "..."}].
func flattenMessage(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				if msg := flattenMessage(m["msg"]); msg != "" {
					parts = append(parts, msg)
				}
				continue
			}
			if msg := flattenMessage(item); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}
