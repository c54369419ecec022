package pactmock

// Interaction is the wire form of one expected interaction.
type Interaction struct {
	Description   string   `json:"description,omitempty"`
	ProviderState string   `json:"provider_state,omitempty"`
	Request       Request  `json:"request"`
	Response      Response `json:"response"`
}

// Request is the expected-request pattern. Path is a literal string or a
// Term; query, header and body values may carry SomethingLike and Term
// expressions.
type Request struct {
	Method        string                 `json:"method"`
	Path          interface{}            `json:"path"`
	Query         interface{}            `json:"query,omitempty"`
	Headers       map[string]interface{} `json:"headers,omitempty"`
	Body          interface{}            `json:"body,omitempty"`
	MatchingRules map[string]interface{} `json:"matchingRules,omitempty"`
}

// Response is the canned response served on a match.
type Response struct {
	Status  int                    `json:"status,omitempty"`
	Headers map[string]interface{} `json:"headers,omitempty"`
	Body    interface{}            `json:"body,omitempty"`
}

// InteractionDetail is one entry of the server's interaction listing.
type InteractionDetail struct {
	ID            string `json:"id"`
	Description   string `json:"description"`
	ProviderState string `json:"provider_state,omitempty"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	RequestCount  int    `json:"request_count"`
}

// Identity names one mock server instance.
type Identity struct {
	ID       string `json:"id"`
	Consumer string `json:"consumer"`
	Provider string `json:"provider"`
}

// SomethingLike loosens matching at this location to JSON type equality,
// with content as the example value.
func SomethingLike(content interface{}) map[string]interface{} {
	return map[string]interface{}{
		"json_class": "Pact::SomethingLike",
		"contents":   content,
	}
}

// Term matches this location against a regular expression; generate is
// the example value the mock serves and reports.
func Term(generate, matcher string) map[string]interface{} {
	return map[string]interface{}{
		"json_class": "Pact::Term",
		"data": map[string]interface{}{
			"generate": generate,
			"matcher": map[string]interface{}{
				"json_class": "Regexp",
				"o":          0,
				"s":          matcher,
			},
		},
	}
}
