package pactmock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type pathMatcher interface {
	match(val string) bool
}

type stringPathMatcher struct {
	val string
}

func (m *stringPathMatcher) match(val string) bool {
	return val == m.val
}

type regexPathMatcher struct {
	val *regexp.Regexp
}

func (m *regexPathMatcher) match(val string) bool {
	return m.val.MatchString(val)
}

// ExpectedRequest is the request half of an interaction: the pattern an
// actual request has to satisfy. Query, header and body values keep their
// raw document form, flexible matcher expressions included; the matching
// engine interprets them.
type ExpectedRequest struct {
	method      string
	path        string
	pathMatcher pathMatcher
	query       interface{}
	hasQuery    bool
	headers     map[string]interface{}
	body        interface{}
	hasBody     bool
	rules       ruleSet
	definition  map[string]interface{}
}

func (e *ExpectedRequest) Method() string {
	return e.method
}

func (e *ExpectedRequest) Path() string {
	return e.path
}

// Interaction pairs an expected request with the canned response served
// when a matching request arrives. Two registrations of the same
// definition stay distinct: identity, not structure, tells them apart.
// Instances are immutable after load except for the request counters and
// any response modifiers attached later.
type Interaction struct {
	ID            string
	Description   string
	ProviderState string

	request   *ExpectedRequest
	response  ResponseSpec
	modifiers *responseModifiers

	mu             sync.RWMutex
	requestCount   int
	lastRequest    map[string]interface{}
	requestHistory []map[string]interface{}
	recordHistory  bool
}

// InteractionSummary is the serializable view of an interaction exposed on
// the control plane.
type InteractionSummary struct {
	ID            string `json:"id"`
	Description   string `json:"description"`
	ProviderState string `json:"provider_state,omitempty"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	RequestCount  int    `json:"request_count"`
}

// LoadInteraction parses one interaction definition. The description is
// optional and defaults to "<METHOD> <path>"; request and response
// sections are required. Flexible matcher expressions and matching rules
// are validated here so faults surface at registration, not on the first
// request.
func LoadInteraction(data []byte) (*Interaction, error) {
	definition := make(map[string]interface{})
	if err := json.Unmarshal(data, &definition); err != nil {
		return nil, errors.Wrap(err, "unable to parse interaction definition")
	}

	request, ok := definition["request"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unable to parse interaction definition, no request defined")
	}

	expected, err := parseExpectedRequest(request)
	if err != nil {
		return nil, err
	}

	response, err := parseResponseSpec(definition)
	if err != nil {
		return nil, err
	}

	description, ok := definition["description"].(string)
	if !ok || description == "" {
		description = fmt.Sprintf("%s %s", strings.ToUpper(expected.method), expected.path)
	}
	providerState, _ := definition["provider_state"].(string)

	interaction := &Interaction{
		ID:            uuid.NewString(),
		Description:   description,
		ProviderState: providerState,
		request:       expected,
		response:      response,
		modifiers:     newResponseModifiers(),
	}
	return interaction, nil
}

// LoadInteractions parses a JSON array of interaction definitions,
// failing on the first malformed entry.
func LoadInteractions(data []byte) ([]*Interaction, error) {
	var specs []json.RawMessage
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, errors.Wrap(err, "unable to parse interactions, expected an array of definitions")
	}

	interactions := make([]*Interaction, 0, len(specs))
	for idx, spec := range specs {
		interaction, err := LoadInteraction(spec)
		if err != nil {
			return nil, errors.Wrapf(err, "interaction %d", idx)
		}
		interactions = append(interactions, interaction)
	}
	return interactions, nil
}

func parseExpectedRequest(request map[string]interface{}) (*ExpectedRequest, error) {
	method, ok := request["method"].(string)
	if !ok || method == "" {
		return nil, errors.New("unable to parse interaction definition, no request method defined")
	}

	rules := getMatchingRules(request)
	path, matcher, err := parsePath(request, rules)
	if err != nil {
		return nil, err
	}

	ruleSet, err := compileRuleSet(rules)
	if err != nil {
		return nil, err
	}

	expected := &ExpectedRequest{
		method:      strings.ToLower(method),
		path:        path,
		pathMatcher: matcher,
		rules:       ruleSet,
		definition:  request,
	}

	expected.query, expected.hasQuery = request["query"]
	if expected.hasQuery {
		if err := validateMatcherNodes(expected.query); err != nil {
			return nil, errors.Wrap(err, "unable to parse interaction definition, invalid query matcher")
		}
	}

	if headers, ok := request["headers"].(map[string]interface{}); ok {
		expected.headers = make(map[string]interface{}, len(headers))
		for name, value := range headers {
			expected.headers[http.CanonicalHeaderKey(name)] = value
		}
		if err := validateMatcherNodes(headers); err != nil {
			return nil, errors.Wrap(err, "unable to parse interaction definition, invalid header matcher")
		}
	}

	expected.body, expected.hasBody = request["body"]
	if expected.hasBody {
		if err := validateMatcherNodes(expected.body); err != nil {
			return nil, errors.Wrap(err, "unable to parse interaction definition, invalid body matcher")
		}
	}

	return expected, nil
}

// parsePath resolves the route matcher for an expected request. The path
// may be a literal string, a reified Pact::Term, or a literal paired with
// a path matching rule; regex forms anchor to the whole path.
func parsePath(request map[string]interface{}, rules map[string]interface{}) (string, pathMatcher, error) {
	if class, node, ok := matcherNode(request["path"]); ok {
		if class != classTerm {
			return "", nil, errors.Errorf("unable to parse interaction definition, unsupported path matcher %s", class)
		}
		pattern, err := termPattern(node)
		if err != nil {
			return "", nil, errors.Wrap(err, "unable to parse interaction definition, invalid path term")
		}
		matcher, err := compilePathRegex(pattern)
		if err != nil {
			return "", nil, err
		}
		path, _ := termGenerate(node).(string)
		return path, matcher, nil
	}

	path, ok := request["path"].(string)
	if !ok {
		return "", nil, errors.New("unable to parse interaction definition, no request path defined")
	}

	regexString, err := getPathRegex(rules)
	if err != nil {
		return "", nil, err
	}
	if regexString == "" {
		return path, &stringPathMatcher{val: path}, nil
	}

	matcher, err := compilePathRegex(regexString)
	if err != nil {
		return "", nil, err
	}
	return path, matcher, nil
}

func compilePathRegex(pattern string) (pathMatcher, error) {
	regex, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse interaction definition, cannot compile path regex")
	}
	return &regexPathMatcher{val: regex}, nil
}

func (i *Interaction) Request() *ExpectedRequest {
	return i.request
}

func (i *Interaction) Response() ResponseSpec {
	return i.response
}

// AddModifier attaches a response modifier; it applies from the next
// matched request on.
func (i *Interaction) AddModifier(modifier *ResponseModifier) {
	i.modifiers.add(modifier)
}

func (i *Interaction) recordRequest(request *ActualRequest) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.requestCount++
	i.lastRequest = request.Document()
	if i.recordHistory {
		i.requestHistory = append(i.requestHistory, request.Document())
	}
}

// HasRequests reports whether at least count matching requests arrived.
func (i *Interaction) HasRequests(count int) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.requestCount >= count
}

// LastRequest returns the document of the most recent matching request,
// nil when none arrived yet.
func (i *Interaction) LastRequest() map[string]interface{} {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastRequest
}

// History returns the documents of all matching requests in arrival
// order. Empty unless history recording was enabled at registration.
func (i *Interaction) History() []map[string]interface{} {
	i.mu.RLock()
	defer i.mu.RUnlock()
	history := make([]map[string]interface{}, len(i.requestHistory))
	copy(history, i.requestHistory)
	return history
}

func (i *Interaction) summary() InteractionSummary {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return InteractionSummary{
		ID:            i.ID,
		Description:   i.Description,
		ProviderState: i.ProviderState,
		Method:        strings.ToUpper(i.request.method),
		Path:          i.request.path,
		RequestCount:  i.requestCount,
	}
}
