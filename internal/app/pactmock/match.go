package pactmock

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	jsonClassKey       = "json_class"
	classSomethingLike = "Pact::SomethingLike"
	classTerm          = "Pact::Term"
)

// RequestMatcher decides whether an actual request satisfies an expected
// request pattern and renders structural diffs for diagnostics. The
// resolver takes it as a capability so the comparison semantics stay
// swappable and testable in isolation.
type RequestMatcher interface {
	// RouteMatches reports method and path compatibility only.
	RouteMatches(expected *ExpectedRequest, actual *ActualRequest) bool

	// FullyMatches reports whether every part of the pattern is satisfied:
	// method, path, query, headers, body and matching rules.
	FullyMatches(expected *ExpectedRequest, actual *ActualRequest) bool

	// Diff renders the structural differences between pattern and request.
	// Empty means a full match.
	Diff(expected *ExpectedRequest, actual *ActualRequest) DiffNode
}

// pactMatcher implements RequestMatcher with pact v2 semantics: exact
// values by default, loosened where the pattern carries a
// Pact::SomethingLike type placeholder, a Pact::Term regular expression
// or a matching rule addressing the value's location.
type pactMatcher struct{}

func NewPactMatcher() RequestMatcher {
	return &pactMatcher{}
}

func (m *pactMatcher) RouteMatches(expected *ExpectedRequest, actual *ActualRequest) bool {
	return expected.method == actual.Method && expected.pathMatcher.match(actual.Path)
}

func (m *pactMatcher) FullyMatches(expected *ExpectedRequest, actual *ActualRequest) bool {
	if !m.RouteMatches(expected, actual) {
		return false
	}
	return len(diffRequest(expected, actual)) == 0
}

func (m *pactMatcher) Diff(expected *ExpectedRequest, actual *ActualRequest) DiffNode {
	return diffRequest(expected, actual)
}

// matcherNode unwraps a reified pact matcher expression, returning its
// json_class name. Any map carrying a string json_class entry counts.
func matcherNode(value interface{}) (string, map[string]interface{}, bool) {
	node, ok := value.(map[string]interface{})
	if !ok {
		return "", nil, false
	}
	class, ok := node[jsonClassKey].(string)
	if !ok {
		return "", nil, false
	}
	return class, node, true
}

func likeContents(node map[string]interface{}) interface{} {
	return node["contents"]
}

func termGenerate(node map[string]interface{}) interface{} {
	data, ok := node["data"].(map[string]interface{})
	if !ok {
		return nil
	}
	return data["generate"]
}

func termPattern(node map[string]interface{}) (string, error) {
	data, ok := node["data"].(map[string]interface{})
	if !ok {
		return "", errors.New("term carries no data")
	}
	matcher, ok := data["matcher"].(map[string]interface{})
	if !ok {
		return "", errors.New("term carries no matcher")
	}
	pattern, ok := matcher["s"].(string)
	if !ok {
		return "", errors.New("term matcher carries no source")
	}
	return pattern, nil
}

func termRegex(node map[string]interface{}) (*regexp.Regexp, error) {
	pattern, err := termPattern(node)
	if err != nil {
		return nil, err
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "unable to compile term regex")
	}
	return compiled, nil
}

func termMatches(node map[string]interface{}, actual interface{}) bool {
	regex, err := termRegex(node)
	if err != nil {
		// Terms are validated at interaction load, so this only trips on
		// values that never went through LoadInteraction.
		log.WithError(err).Warn("unable to evaluate term")
		return false
	}
	value, ok := actual.(string)
	if !ok {
		return false
	}
	return regex.MatchString(value)
}

func describeTerm(node map[string]interface{}) string {
	pattern, err := termPattern(node)
	if err != nil {
		return "term"
	}
	return fmt.Sprintf("term /%s/", pattern)
}

// Reify resolves flexible matcher expressions in a value tree to their
// concrete example values: a SomethingLike contributes its contents, a
// Term its generate value. Everything else passes through unchanged.
func Reify(value interface{}) interface{} {
	if class, node, ok := matcherNode(value); ok {
		switch class {
		case classSomethingLike:
			return Reify(likeContents(node))
		case classTerm:
			return Reify(termGenerate(node))
		}
	}

	switch val := value.(type) {
	case map[string]interface{}:
		reified := make(map[string]interface{}, len(val))
		for key, entry := range val {
			reified[key] = Reify(entry)
		}
		return reified
	case []interface{}:
		reified := make([]interface{}, len(val))
		for idx, entry := range val {
			reified[idx] = Reify(entry)
		}
		return reified
	default:
		return value
	}
}

// validateMatcherNodes walks a pattern value and confirms every term in it
// compiles, so that bad regular expressions surface at registration time
// rather than on the first request.
func validateMatcherNodes(value interface{}) error {
	if class, node, ok := matcherNode(value); ok {
		switch class {
		case classSomethingLike:
			return validateMatcherNodes(likeContents(node))
		case classTerm:
			_, err := termRegex(node)
			return err
		}
	}

	switch val := value.(type) {
	case map[string]interface{}:
		for _, entry := range val {
			if err := validateMatcherNodes(entry); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, entry := range val {
			if err := validateMatcherNodes(entry); err != nil {
				return err
			}
		}
	}
	return nil
}
