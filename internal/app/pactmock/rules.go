package pactmock

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// matchingRule is one entry of an interaction's matchingRules section: a
// jsonpath-style location in the request document plus either a regular
// expression the value there has to satisfy, or a type constraint that the
// value's JSON type has to agree with the expected document's.
type matchingRule struct {
	path      string
	regex     *regexp.Regexp
	matchType bool
}

type ruleSet map[string]matchingRule

func (r ruleSet) at(path string) (matchingRule, bool) {
	rule, ok := r[path]
	return rule, ok
}

// evaluate checks every rule against the actual request document and
// returns one violation line per failed rule, sorted by rule path so that
// reports are stable.
func (r ruleSet) evaluate(expected, actual map[string]interface{}) []string {
	paths := make([]string, 0, len(r))
	for path := range r {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var violations []string
	for _, path := range paths {
		if violation := r[path].check(expected, actual); violation != "" {
			violations = append(violations, violation)
		}
	}
	return violations
}

func (rule matchingRule) check(expected, actual map[string]interface{}) string {
	actualValue, err := jsonpath.Get(rule.path, interface{}(actual))
	if err != nil {
		return fmt.Sprintf("no value found at %s", rule.path)
	}

	if rule.regex != nil {
		for _, value := range ruleValues(actualValue) {
			if !rule.regex.MatchString(fmt.Sprintf("%v", value)) {
				return fmt.Sprintf("value '%v' at %s does not match /%s/", value, rule.path, rule.regex.String())
			}
		}
		return ""
	}

	expectedValue, err := jsonpath.Get(rule.path, interface{}(expected))
	if err != nil {
		return fmt.Sprintf("no expected value found at %s", rule.path)
	}
	if expectedType, actualType := jsonTypeOf(expectedValue), jsonTypeOf(actualValue); expectedType != actualType {
		return fmt.Sprintf("value at %s is of type %s, expected %s", rule.path, actualType, expectedType)
	}
	return ""
}

// ruleValues widens a jsonpath result to a slice: wildcard expressions
// yield every selected value, plain expressions yield the one value they
// addressed, even when that value is itself an array.
func ruleValues(value interface{}) []interface{} {
	if values, ok := value.([]interface{}); ok {
		return values
	}
	return []interface{}{value}
}

func jsonTypeOf(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// getMatchingRules pulls the raw matchingRules section out of a request
// definition. Absent sections compile to an empty rule set.
func getMatchingRules(request map[string]interface{}) map[string]interface{} {
	rules, ok := request["matchingRules"].(map[string]interface{})
	if !ok {
		return nil
	}
	return rules
}

// getPathRegex extracts the regular expression constraining the request
// path, covering both the v2 form ("$.path") and the v3 form ("path" with
// a matchers list). Empty when the path is matched literally.
func getPathRegex(rules map[string]interface{}) (string, error) {
	if rule, ok := rules["$.path"].(map[string]interface{}); ok {
		regex, ok := rule["regex"].(string)
		if !ok {
			return "", errors.New("unable to parse path matching rule, no regex defined")
		}
		return regex, nil
	}

	section, ok := rules["path"].(map[string]interface{})
	if !ok {
		return "", nil
	}
	matchers, ok := section["matchers"].([]interface{})
	if !ok || len(matchers) == 0 {
		return "", errors.New("unable to parse path matching rule, no matchers defined")
	}
	for _, entry := range matchers {
		matcher, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if kind, _ := matcher["match"].(string); kind != "regex" {
			continue
		}
		regex, ok := matcher["regex"].(string)
		if !ok {
			return "", errors.New("unable to parse path matching rule, no regex defined")
		}
		return regex, nil
	}
	return "", errors.New("unable to parse path matching rule, no regex matcher defined")
}

// compileRuleSet turns a matchingRules section into the executable rule
// set, covering v2 entries keyed by full document path ("$.body.name")
// and v3 entries grouped per request part ("body", "query", "header").
// Path rules are compiled separately into the route matcher and skipped
// here. Rule kinds the engine does not support are dropped with a
// warning so that an exotic contract degrades to exact matching instead
// of failing registration.
func compileRuleSet(rules map[string]interface{}) (ruleSet, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	compiled := make(ruleSet, len(rules))
	for key, value := range rules {
		definition, ok := value.(map[string]interface{})
		if !ok {
			log.Warnf("ignoring malformed matching rule at '%s'", key)
			continue
		}

		switch {
		case key == "$.path" || key == "path":
			continue
		case strings.HasPrefix(key, "$."):
			rule, ok, err := compileRule(key, definition)
			if err != nil {
				return nil, err
			}
			if ok {
				compiled[key] = rule
			}
		case key == "body" || key == "query" || key == "header" || key == "headers":
			section := key
			if section == "header" {
				section = "headers"
			}
			for subPath, subValue := range definition {
				subDefinition, ok := subValue.(map[string]interface{})
				if !ok {
					log.Warnf("ignoring malformed matching rule at '%s.%s'", key, subPath)
					continue
				}
				path := documentPath(section, subPath)
				rule, ok, err := compileRule(path, flattenMatchers(subDefinition))
				if err != nil {
					return nil, err
				}
				if ok {
					compiled[path] = rule
				}
			}
		default:
			log.Warnf("ignoring matching rule for unsupported request part '%s'", key)
		}
	}

	if len(compiled) == 0 {
		return nil, nil
	}
	return compiled, nil
}

// documentPath roots a v3 per-part rule path in the request document.
// Body paths arrive as "$.name" and become "$.body.name"; query and
// header paths arrive as bare names.
func documentPath(section, subPath string) string {
	if strings.HasPrefix(subPath, "$.") {
		return "$." + section + subPath[1:]
	}
	return "$." + section + "." + subPath
}

// flattenMatchers reduces a v3 matchers list to the single rule
// definition this engine evaluates, taking the first entry.
func flattenMatchers(definition map[string]interface{}) map[string]interface{} {
	matchers, ok := definition["matchers"].([]interface{})
	if !ok || len(matchers) == 0 {
		return definition
	}
	if first, ok := matchers[0].(map[string]interface{}); ok {
		return first
	}
	return definition
}

func compileRule(path string, definition map[string]interface{}) (matchingRule, bool, error) {
	if regex, ok := definition["regex"].(string); ok {
		compiled, err := regexp.Compile(regex)
		if err != nil {
			return matchingRule{}, false, errors.Wrapf(err, "unable to compile matching rule regex at '%s'", path)
		}
		return matchingRule{path: path, regex: compiled}, true, nil
	}

	if match, ok := definition["match"].(string); ok {
		if match == "type" {
			return matchingRule{path: path, matchType: true}, true, nil
		}
		log.Warnf("ignoring unsupported matching rule kind '%s' at '%s'", match, path)
		return matchingRule{}, false, nil
	}

	log.Warnf("ignoring matching rule without regex or match kind at '%s'", path)
	return matchingRule{}, false, nil
}
