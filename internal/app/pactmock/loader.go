package pactmock

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadInteractionsFile reads interaction definitions from a YAML or JSON
// file holding either a bare array of definitions or an object with an
// "interactions" array. JSON documents parse as a YAML subset, so one
// decoder covers both; scalars are normalized through a JSON round trip
// so file-loaded definitions match the shape of ones registered over
// HTTP.
func LoadInteractionsFile(path string) ([]*Interaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read interactions file")
	}

	var document interface{}
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, errors.Wrap(err, "unable to parse interactions file")
	}

	specs, ok := document.([]interface{})
	if !ok {
		wrapper, isMap := document.(map[string]interface{})
		if isMap {
			specs, ok = wrapper["interactions"].([]interface{})
		}
		if !ok {
			return nil, errors.New("interactions file must hold an array of interaction definitions")
		}
	}

	interactions := make([]*Interaction, 0, len(specs))
	for idx, spec := range specs {
		raw, err := json.Marshal(spec)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to encode interaction %d", idx)
		}
		interaction, err := LoadInteraction(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "interaction %d", idx)
		}
		interactions = append(interactions, interaction)
	}
	return interactions, nil
}
