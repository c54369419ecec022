package pactmock

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// DiffNode is a structural diff between an expected request pattern and an
// actual request: a JSON-serializable tree mirroring the request document,
// with Difference leaves where the two disagree. Empty means full match.
type DiffNode map[string]interface{}

// Difference is one mismatching leaf of a DiffNode.
type Difference struct {
	Expected interface{} `json:"expected"`
	Actual   interface{} `json:"actual"`
}

const (
	valueMissing    = "<key not found>"
	valueUnexpected = "<key not expected>"
)

// diffRequest compares every part of the pattern against the request and
// collects a section per mismatch: method, path, query, headers,
// matching_rules and body. Locations governed by a matching rule are
// judged by the rules pass and skipped by the structural walk.
func diffRequest(expected *ExpectedRequest, actual *ActualRequest) DiffNode {
	diff := DiffNode{}

	if expected.method != actual.Method {
		diff["method"] = Difference{Expected: expected.method, Actual: actual.Method}
	}
	if !expected.pathMatcher.match(actual.Path) {
		diff["path"] = Difference{Expected: expected.path, Actual: actual.Path}
	}
	if expected.hasQuery {
		if queryDiff := diffQuery(expected.query, actual); queryDiff != nil {
			diff["query"] = queryDiff
		}
	}
	if headerDiff := diffHeaders(expected.headers, actual.Headers); len(headerDiff) > 0 {
		diff["headers"] = headerDiff
	}
	if violations := expected.rules.evaluate(expected.definition, actual.Document()); len(violations) > 0 {
		diff["matching_rules"] = violations
	}
	if expected.hasBody {
		if bodyDiff, equal := diffValue(expected.body, actual.Body, expected.rules, "$.body"); !equal {
			diff["body"] = bodyDiff
		}
	}

	return diff
}

// diffQuery compares the expected query expression against the actual
// parameters. A string pattern compares as a parsed parameter multimap, a
// term applies to the raw query string, and a map compares parameter by
// parameter with the full key set required on both sides.
func diffQuery(expected interface{}, actual *ActualRequest) interface{} {
	if class, node, ok := matcherNode(expected); ok && class == classTerm {
		if termMatches(node, actual.RawQuery) {
			return nil
		}
		return Difference{Expected: describeTerm(node), Actual: actual.RawQuery}
	}

	switch query := expected.(type) {
	case string:
		expectedValues, err := url.ParseQuery(query)
		if err != nil {
			return Difference{Expected: query, Actual: actual.RawQuery}
		}
		if cmp.Equal(url.Values(expectedValues), actual.Query) {
			return nil
		}
		return Difference{Expected: query, Actual: actual.RawQuery}
	case map[string]interface{}:
		return diffQueryParams(query, actual.Query)
	default:
		return Difference{Expected: expected, Actual: actual.RawQuery}
	}
}

func diffQueryParams(expected map[string]interface{}, actual url.Values) DiffNode {
	diff := DiffNode{}

	for _, name := range sortedKeys(expected) {
		values, ok := actual[name]
		if !ok {
			diff[name] = Difference{Expected: Reify(expected[name]), Actual: valueMissing}
			continue
		}
		if !matchQueryParam(expected[name], values) {
			diff[name] = Difference{Expected: Reify(expected[name]), Actual: values}
		}
	}
	for name, values := range actual {
		if _, ok := expected[name]; !ok {
			diff[name] = Difference{Expected: valueUnexpected, Actual: values}
		}
	}

	if len(diff) == 0 {
		return nil
	}
	return diff
}

func matchQueryParam(expected interface{}, actual []string) bool {
	if list, ok := expected.([]interface{}); ok {
		if len(list) != len(actual) {
			return false
		}
		for idx, entry := range list {
			if !matchLeaf(entry, actual[idx]) {
				return false
			}
		}
		return true
	}
	return len(actual) == 1 && matchLeaf(expected, actual[0])
}

// diffHeaders checks that each expected header is present with a matching
// value. Multi-valued actual headers compare as a comma-joined string.
// Actual headers the pattern does not name are ignored.
func diffHeaders(expected map[string]interface{}, actual http.Header) DiffNode {
	diff := DiffNode{}

	for _, name := range sortedKeys(expected) {
		values := actual.Values(name)
		if len(values) == 0 {
			diff[name] = Difference{Expected: Reify(expected[name]), Actual: valueMissing}
			continue
		}
		joined := strings.Join(values, ", ")
		if !matchLeaf(expected[name], joined) {
			diff[name] = Difference{Expected: Reify(expected[name]), Actual: joined}
		}
	}

	return diff
}

// matchLeaf compares one pattern value against one actual string, honoring
// flexible matcher expressions.
func matchLeaf(expected interface{}, actual string) bool {
	if class, node, ok := matcherNode(expected); ok {
		switch class {
		case classSomethingLike:
			return jsonTypeOf(Reify(likeContents(node))) == jsonTypeOf(actual)
		case classTerm:
			return termMatches(node, actual)
		}
	}
	value, ok := expected.(string)
	return ok && value == actual
}

// diffValue walks the pattern and the actual value in lockstep, building
// the document path as it descends so locations claimed by matching rules
// can be skipped. It returns the subtree's diff and whether the two sides
// agree.
func diffValue(expected, actual interface{}, rules ruleSet, path string) (interface{}, bool) {
	if _, ruled := rules.at(path); ruled {
		return nil, true
	}

	if class, node, ok := matcherNode(expected); ok {
		switch class {
		case classSomethingLike:
			return diffType(likeContents(node), actual, rules, path)
		case classTerm:
			if termMatches(node, actual) {
				return nil, true
			}
			return Difference{Expected: describeTerm(node), Actual: actual}, false
		}
	}

	switch value := expected.(type) {
	case map[string]interface{}:
		actualMap, ok := actual.(map[string]interface{})
		if !ok {
			return Difference{Expected: value, Actual: actual}, false
		}
		return diffMap(value, actualMap, rules, path, diffValue)
	case []interface{}:
		actualSlice, ok := actual.([]interface{})
		if !ok || len(actualSlice) != len(value) {
			return Difference{Expected: value, Actual: actual}, false
		}
		return diffSlice(value, actualSlice, rules, path, diffValue)
	default:
		if cmp.Equal(expected, actual) {
			return nil, true
		}
		return Difference{Expected: expected, Actual: actual}, false
	}
}

// diffType is the walk applied under a SomethingLike: containers still
// have to agree on shape, but scalar leaves only have to agree on JSON
// type. Nested matcher expressions keep their own semantics.
func diffType(expected, actual interface{}, rules ruleSet, path string) (interface{}, bool) {
	if _, ruled := rules.at(path); ruled {
		return nil, true
	}

	if class, node, ok := matcherNode(expected); ok {
		switch class {
		case classSomethingLike:
			return diffType(likeContents(node), actual, rules, path)
		case classTerm:
			if termMatches(node, actual) {
				return nil, true
			}
			return Difference{Expected: describeTerm(node), Actual: actual}, false
		}
	}

	switch value := expected.(type) {
	case map[string]interface{}:
		actualMap, ok := actual.(map[string]interface{})
		if !ok {
			return Difference{Expected: value, Actual: actual}, false
		}
		return diffMap(value, actualMap, rules, path, diffType)
	case []interface{}:
		actualSlice, ok := actual.([]interface{})
		if !ok || len(actualSlice) != len(value) {
			return Difference{Expected: value, Actual: actual}, false
		}
		return diffSlice(value, actualSlice, rules, path, diffType)
	default:
		if expectedType, actualType := jsonTypeOf(expected), jsonTypeOf(actual); expectedType != actualType {
			return Difference{Expected: fmt.Sprintf("value of type %s", expectedType), Actual: actual}, false
		}
		return nil, true
	}
}

type diffFunc func(expected, actual interface{}, rules ruleSet, path string) (interface{}, bool)

// diffMap requires the exact key set on both sides and recurses per key.
// Keys whose document path carries a matching rule are left to the rules
// pass even when absent from the actual request.
func diffMap(expected, actual map[string]interface{}, rules ruleSet, path string, recurse diffFunc) (interface{}, bool) {
	diff := DiffNode{}

	for _, key := range sortedKeys(expected) {
		childPath := path + "." + key
		if _, ruled := rules.at(childPath); ruled {
			continue
		}
		actualValue, present := actual[key]
		if !present {
			diff[key] = Difference{Expected: Reify(expected[key]), Actual: valueMissing}
			continue
		}
		if sub, equal := recurse(expected[key], actualValue, rules, childPath); !equal {
			diff[key] = sub
		}
	}
	for key, actualValue := range actual {
		if _, present := expected[key]; !present {
			diff[key] = Difference{Expected: valueUnexpected, Actual: actualValue}
		}
	}

	if len(diff) == 0 {
		return nil, true
	}
	return diff, false
}

// diffSlice recurses element-wise over equal-length slices, keeping
// matched positions as nulls so indices stay readable in the rendered
// diff.
func diffSlice(expected, actual []interface{}, rules ruleSet, path string, recurse diffFunc) (interface{}, bool) {
	diff := make([]interface{}, len(expected))
	equal := true

	for idx := range expected {
		childPath := fmt.Sprintf("%s[%d]", path, idx)
		if sub, ok := recurse(expected[idx], actual[idx], rules, childPath); !ok {
			diff[idx] = sub
			equal = false
		}
	}

	if equal {
		return nil, true
	}
	return diff, false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
