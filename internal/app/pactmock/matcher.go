package pactmock

// MatchOutcome classifies one actual request against the registry.
// Exactly one state holds: Match set means a single interaction fully
// matched, Ambiguous set means two or more did, and neither set means no
// full match, with Candidates carrying the route-compatible interactions
// in registration order for diagnostics.
type MatchOutcome struct {
	Match      *Interaction
	Ambiguous  []*Interaction
	Candidates []*Interaction
}

// Resolver is the decision engine for inbound requests: it evaluates the
// registry's current interactions through the injected matcher and
// classifies the request as a single full match, an ambiguous set of
// matches, or a miss.
type Resolver struct {
	interactions *Interactions
	matcher      RequestMatcher
}

func NewResolver(interactions *Interactions, matcher RequestMatcher) *Resolver {
	return &Resolver{interactions: interactions, matcher: matcher}
}

// Resolve classifies the request against a snapshot of the registry. Only
// a single full match mutates state: the interaction is marked matched
// and the request recorded against it before it is returned. Misses and
// ambiguous outcomes leave the registry untouched.
func (r *Resolver) Resolve(actual *ActualRequest) MatchOutcome {
	var candidates, matches []*Interaction
	for _, interaction := range r.interactions.All() {
		if r.matcher.RouteMatches(interaction.Request(), actual) {
			candidates = append(candidates, interaction)
		}
		if r.matcher.FullyMatches(interaction.Request(), actual) {
			matches = append(matches, interaction)
		}
	}

	switch len(matches) {
	case 0:
		return MatchOutcome{Candidates: candidates}
	case 1:
		r.interactions.MarkMatched(matches[0])
		matches[0].recordRequest(actual)
		return MatchOutcome{Match: matches[0]}
	default:
		return MatchOutcome{Ambiguous: matches}
	}
}
