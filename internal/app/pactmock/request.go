package pactmock

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	mediaTypeJSON = "application/json"
	mediaTypeText = "text/plain"
)

// ActualRequest is the canonical form of one inbound transport request:
// lower-cased method, path, query, canonicalized headers and a body that
// is either absent (nil), a parsed JSON value or a raw string. It is
// produced once per request by NormalizeRequest and never mutated after.
type ActualRequest struct {
	Method   string
	Path     string
	RawQuery string
	Query    url.Values
	Headers  http.Header

	// Body holds nil when the request carried no body, the decoded value
	// for JSON payloads, and the raw string otherwise.
	Body interface{}

	raw      []byte
	document map[string]interface{}
}

// NormalizeRequest maps a transport-level request onto the canonical shape
// consumed by the matching engine. The body is drained and restored so
// control handlers can still read it through the raw bytes.
func NormalizeRequest(req *http.Request) (*ActualRequest, error) {
	var data []byte
	if req.Body != nil {
		var err error
		data, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read request body")
		}
		if err := req.Body.Close(); err != nil {
			return nil, errors.Wrap(err, "unable to close request body")
		}
		req.Body = io.NopCloser(bytes.NewReader(data))
	}

	actual := &ActualRequest{
		Method:   strings.ToLower(req.Method),
		Path:     req.URL.Path,
		RawQuery: req.URL.RawQuery,
		Query:    req.URL.Query(),
		Headers:  canonicalHeaders(req.Header),
		Body:     parseBody(data, req.Header),
		raw:      data,
	}
	actual.document = buildDocument(actual)
	return actual, nil
}

// Document returns the request as a plain value tree rooted at method,
// path, query, headers and body. Matching rules address into this tree
// with jsonpath expressions, and diffs report against it.
func (r *ActualRequest) Document() map[string]interface{} {
	return r.document
}

func buildDocument(r *ActualRequest) map[string]interface{} {
	headers := make(map[string]interface{}, len(r.Headers))
	for name := range r.Headers {
		headers[name] = r.Headers.Get(name)
	}

	query := make(map[string]interface{}, len(r.Query))
	for name, values := range r.Query {
		if len(values) > 0 {
			nestQueryValue(query, name, values[0])
		}
	}

	return map[string]interface{}{
		"method":  r.Method,
		"path":    r.Path,
		"query":   query,
		"headers": headers,
		"body":    r.Body,
	}
}

func canonicalHeaders(header http.Header) http.Header {
	canonical := make(http.Header, len(header))
	for name, values := range header {
		for _, value := range values {
			canonical.Add(http.CanonicalHeaderKey(name), value)
		}
	}
	return canonical
}

func parseBody(data []byte, header http.Header) interface{} {
	if len(data) == 0 {
		return nil
	}

	if parseMediaTypeHeader(header) == mediaTypeJSON {
		var body interface{}
		if err := json.Unmarshal(data, &body); err == nil {
			return body
		}
		log.Warnf("request declares %s but body does not parse, treating as text", mediaTypeJSON)
	}
	return string(data)
}

func parseMediaTypeHeader(header http.Header) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return mediaTypeText
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		log.Warnf("unable to parse Content-Type header '%s', defaulting to %s", contentType, mediaTypeText)
		return mediaTypeText
	}
	return mediaType
}

// nestQueryValue files a query parameter under the document's query map.
// Bracketed names such as page[size] become nested maps so that jsonpath
// expressions can address the individual parts.
func nestQueryValue(values map[string]interface{}, name, val string) {
	open := strings.Index(name, "[")
	if open < 0 {
		values[name] = val
		return
	}

	key := name[:open]
	rest := name[open+1:]
	closing := strings.Index(rest, "]")
	if closing < 0 {
		values[name] = val
		return
	}

	subKey := rest[:closing]
	next := rest[closing+1:]

	nested, ok := values[key].(map[string]interface{})
	if !ok {
		nested = make(map[string]interface{})
		values[key] = nested
	}
	nestQueryValue(nested, subKey+next, val)
}
