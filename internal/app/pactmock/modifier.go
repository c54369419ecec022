package pactmock

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

const (
	statusModifierPath = "$.status"
	bodyModifierPrefix = "$.body."
)

// ResponseModifier overrides part of an interaction's synthesized
// response: a body attribute addressed as $.body.<path>, or the status
// code addressed as $.status. With Attempt set the override applies only
// to the n-th matched request, otherwise to every one.
type ResponseModifier struct {
	Interaction string `json:"interaction"`
	Path        string `json:"path"`
	Value       string `json:"value"`
	Attempt     *int   `json:"attempt"`
}

func LoadModifier(data []byte) (*ResponseModifier, error) {
	modifier := &ResponseModifier{}
	if err := json.Unmarshal(data, modifier); err != nil {
		return nil, errors.Wrap(err, "unable to parse modifier definition")
	}
	if modifier.Interaction == "" {
		return nil, errors.New("unable to parse modifier definition, no interaction defined")
	}
	if modifier.Path != statusModifierPath && !strings.HasPrefix(modifier.Path, bodyModifierPrefix) {
		return nil, errors.Errorf("unable to parse modifier definition, unsupported path '%s'", modifier.Path)
	}
	return modifier, nil
}

func (m *ResponseModifier) key() string {
	return strings.Join([]string{m.Interaction, m.Path}, "_")
}

// jsonValue decodes the modifier's value so numbers, booleans and
// structured values land typed in the body; anything that is not valid
// JSON stays a string.
func (m *ResponseModifier) jsonValue() interface{} {
	var value interface{}
	if err := json.Unmarshal([]byte(m.Value), &value); err != nil {
		return m.Value
	}
	return value
}

// responseModifiers holds the modifiers attached to one interaction, one
// per response location, latest registration winning. Attempt counters
// advance on every render so n-th-request overrides line up with the
// interaction's matched requests.
type responseModifiers struct {
	mu        sync.Mutex
	modifiers map[string]*ResponseModifier
	attempts  map[string]int
}

func newResponseModifiers() *responseModifiers {
	return &responseModifiers{
		modifiers: map[string]*ResponseModifier{},
		attempts:  map[string]int{},
	}
}

func (r *responseModifiers) add(modifier *ResponseModifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modifiers[modifier.key()] = modifier
}

// applyBody rewrites body attributes for every applicable modifier, in
// stable key order. The body has to be JSON for an override to land;
// failures log and leave the body as it was.
func (r *responseModifiers) applyBody(body []byte) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.sortedKeys() {
		modifier := r.modifiers[key]
		if !strings.HasPrefix(modifier.Path, bodyModifierPrefix) {
			continue
		}
		r.attempts[key]++
		if modifier.Attempt != nil && *modifier.Attempt != r.attempts[key] {
			continue
		}
		modified, err := sjson.SetBytes(body, modifier.Path[len(bodyModifierPrefix):], modifier.jsonValue())
		if err != nil {
			log.WithError(err).Warnf("unable to apply modifier at '%s'", modifier.Path)
			continue
		}
		body = modified
	}
	return body
}

// statusCode resolves the status override, when one applies to this
// render.
func (r *responseModifiers) statusCode() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.sortedKeys() {
		modifier := r.modifiers[key]
		if modifier.Path != statusModifierPath {
			continue
		}
		r.attempts[key]++
		if modifier.Attempt != nil && *modifier.Attempt != r.attempts[key] {
			continue
		}
		code, err := strconv.Atoi(modifier.Value)
		if err != nil {
			log.WithError(err).Warnf("unable to apply status modifier value '%s'", modifier.Value)
			continue
		}
		return code, true
	}
	return 0, false
}

func (r *responseModifiers) sortedKeys() []string {
	keys := make([]string, 0, len(r.modifiers))
	for key := range r.modifiers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
