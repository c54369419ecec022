package pactmock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ResponseSpec is the response half of an interaction: what the mock
// serves when the interaction's request pattern matches. Header and body
// values may carry flexible matcher expressions; rendering reifies them.
type ResponseSpec struct {
	Status  int
	Headers map[string]interface{}
	Body    interface{}

	hasBody bool
}

func parseResponseSpec(definition map[string]interface{}) (ResponseSpec, error) {
	response, ok := definition["response"].(map[string]interface{})
	if !ok {
		return ResponseSpec{}, errors.New("unable to parse interaction definition, no response defined")
	}

	spec := ResponseSpec{Status: http.StatusOK, Headers: map[string]interface{}{}}

	if status, ok := response["status"]; ok {
		code, ok := status.(float64)
		if !ok {
			return ResponseSpec{}, errors.New("unable to parse interaction definition, response status must be a number")
		}
		spec.Status = int(code)
	}

	if headers, ok := response["headers"].(map[string]interface{}); ok {
		for name, value := range headers {
			spec.Headers[name] = value
		}
	}

	spec.Body, spec.hasBody = response["body"]
	if spec.hasBody {
		if err := validateMatcherNodes(spec.Body); err != nil {
			return ResponseSpec{}, errors.Wrap(err, "unable to parse interaction definition, invalid response body matcher")
		}
	}

	return spec, nil
}

// TransportResponse is a rendered transport-level response: the tuple
// actually written back to the consumer.
type TransportResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// RenderResponse synthesizes the transport response for one matched
// request. Matcher expressions reify to their example values, string
// bodies render byte for byte, structured bodies serialize to compact
// JSON, and any modifiers overlay the result. No headers are invented:
// the response carries exactly what the definition names.
func RenderResponse(spec ResponseSpec, modifiers *responseModifiers) TransportResponse {
	response := TransportResponse{Status: spec.Status, Headers: http.Header{}}

	for name, value := range spec.Headers {
		response.Headers.Set(name, fmt.Sprintf("%v", Reify(value)))
	}

	if spec.hasBody {
		response.Body = renderBody(Reify(spec.Body))
	}

	if modifiers != nil {
		if code, ok := modifiers.statusCode(); ok {
			response.Status = code
		}
		response.Body = modifiers.applyBody(response.Body)
	}

	return response
}

func renderBody(body interface{}) []byte {
	switch value := body.(type) {
	case nil:
		return nil
	case string:
		if !utf8.ValidString(value) {
			log.Warn("response body is not valid UTF-8")
		}
		return []byte(value)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			log.WithError(err).Warn("unable to serialize response body")
			return nil
		}
		return data
	}
}
