package pactmock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
)

const (
	defaultWaitDelay    = 500 * time.Millisecond
	defaultWaitDuration = 15 * time.Second
)

// MismatchResponse is the diagnostic payload served when no registered
// interaction fully matches a request: one structural diff per
// route-compatible candidate.
type MismatchResponse struct {
	Message         string     `json:"message"`
	InteractionDiff []DiffNode `json:"interaction_diff"`
}

// AmbiguousRequestError reports that two or more registered interactions
// fully match one request. That is a fault in the interaction setup, so
// it is fatal for the request: it travels echo's error path instead of
// rendering as an ordinary mismatch, and the response it produces is a
// plain-text 500 naming every matching interaction.
type AmbiguousRequestError struct {
	Method  string
	Path    string
	Matches []*Interaction
}

func (e *AmbiguousRequestError) Error() string {
	descriptions := make([]string, 0, len(e.Matches))
	for _, interaction := range e.Matches {
		descriptions = append(descriptions, "'"+interaction.Description+"'")
	}
	return fmt.Sprintf("ambiguous request: %d interactions match %s %s: %s",
		len(e.Matches), strings.ToUpper(e.Method), e.Path, strings.Join(descriptions, ", "))
}

type api struct {
	config       *Config
	interactions *Interactions
	matcher      RequestMatcher
	resolver     *Resolver
	verifier     *Verifier
	notify       *notify
	dispatcher   *dispatcher
	instanceID   string
	delay        time.Duration
	duration     time.Duration
}

// SetupRoutes wires one mock server instance onto the given echo
// instance: a catch-all that normalizes every request and hands it to the
// dispatcher chain, plus the error handler that keeps ambiguity failures
// distinct from ordinary mismatches. Each call builds a fresh registry,
// so servers sharing a process stay independent.
func SetupRoutes(e *echo.Echo, config *Config) error {
	interactions := NewInteractions()
	interactions.RecordHistory(config.RecordHistory)
	matcher := NewPactMatcher()

	a := &api{
		config:       config,
		interactions: interactions,
		matcher:      matcher,
		resolver:     NewResolver(interactions, matcher),
		verifier:     NewVerifier(interactions),
		notify:       newNotify(),
		instanceID:   uuid.NewString(),
		delay:        config.WaitDelay,
		duration:     config.WaitDuration,
	}
	if a.delay == 0 {
		a.delay = defaultWaitDelay
	}
	if a.duration == 0 {
		a.duration = defaultWaitDuration
	}

	a.dispatcher = &dispatcher{routes: []route{
		{name: "index", matches: exactly("get", "/index.html"), respond: a.indexHandler},
		{name: "identify", matches: exactly("get", "/__identify__"), respond: a.identifyHandler},
		{name: "verify", matches: exactly("get", "/verify"), respond: a.verifyHandler},
		{name: "register", matches: exactly("post", "/interactions"), respond: a.registerHandler},
		{name: "clear", matches: exactly("delete", "/interactions"), respond: a.clearHandler},
		{name: "list", matches: exactly("get", "/interactions"), respond: a.listHandler},
		{name: "modifiers", matches: exactly("post", "/interactions/modifiers"), respond: a.modifiersHandler},
		{name: "wait", matches: exactly("get", "/interactions/wait"), respond: a.waitHandler},
		{name: "replay", matches: anyRequest, respond: a.replayHandler},
	}}

	if config.InteractionsFile != "" {
		preloaded, err := LoadInteractionsFile(config.InteractionsFile)
		if err != nil {
			return errors.Wrapf(err, "unable to preload interactions from '%s'", config.InteractionsFile)
		}
		for _, interaction := range preloaded {
			log.Infof("preloading interaction '%s'", interaction.Description)
			interactions.Register(interaction)
		}
	}

	e.HTTPErrorHandler = a.errorHandler(e)
	e.Any("/", a.handle)
	e.Any("/*", a.handle)
	return nil
}

func (a *api) handle(c echo.Context) error {
	req, err := NormalizeRequest(c.Request())
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read request. %s", err.Error()))
	}
	return a.dispatcher.dispatch(req).respond(c, req)
}

// errorHandler intercepts ambiguity faults; everything else keeps echo's
// default treatment.
func (a *api) errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var ambiguous *AmbiguousRequestError
		if errors.As(err, &ambiguous) {
			log.WithFields(log.Fields{
				"consumer": a.config.ConsumerName,
				"method":   strings.ToUpper(ambiguous.Method),
				"path":     ambiguous.Path,
			}).Error(ambiguous.Error())
			if !c.Response().Committed {
				if err := c.String(http.StatusInternalServerError, ambiguous.Error()); err != nil {
					log.Error(err)
				}
			}
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}

func (a *api) indexHandler(c echo.Context, _ *ActualRequest) error {
	return c.String(http.StatusOK, "Mock service running")
}

func (a *api) identifyHandler(c echo.Context, _ *ActualRequest) error {
	return c.JSON(http.StatusOK, map[string]string{
		"id":       a.instanceID,
		"consumer": a.config.ConsumerName,
		"provider": a.config.ProviderName,
	})
}

func (a *api) verifyHandler(c echo.Context, _ *ActualRequest) error {
	result := a.verifier.Verify()
	if !result.AllMatched {
		log.WithField("consumer", a.config.ConsumerName).Warn(result.WarningText())
		return c.String(http.StatusInternalServerError, result.WarningText())
	}
	log.Info("verification passed, all interactions matched")
	return c.String(http.StatusOK, result.WarningText())
}

func (a *api) registerHandler(c echo.Context, req *ActualRequest) error {
	interactions, err := LoadInteractions(req.raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load interactions. %s", err.Error()))
	}

	for _, interaction := range interactions {
		log.Infof("storing interaction '%s'", interaction.Description)
		a.interactions.Register(interaction)
	}
	return c.JSON(http.StatusOK, map[string]int{"registered": len(interactions)})
}

func (a *api) clearHandler(c echo.Context, _ *ActualRequest) error {
	log.Info("deleting interactions")
	a.interactions.Clear()
	return c.String(http.StatusOK, "Interactions deleted")
}

func (a *api) listHandler(c echo.Context, _ *ActualRequest) error {
	all := a.interactions.All()
	summaries := make([]InteractionSummary, 0, len(all))
	for _, interaction := range all {
		summaries = append(summaries, interaction.summary())
	}
	return c.JSON(http.StatusOK, map[string][]InteractionSummary{"interactions": summaries})
}

func (a *api) modifiersHandler(c echo.Context, req *ActualRequest) error {
	modifier, err := LoadModifier(req.raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load modifier. %s", err.Error()))
	}

	interaction, ok := a.interactions.Load(modifier.Interaction)
	if !ok {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to find interaction for modifier. %s", modifier.Interaction))
	}

	log.Infof("adding modifier to interaction '%s'", interaction.Description)
	interaction.AddModifier(modifier)
	return c.NoContent(http.StatusOK)
}

func (a *api) waitHandler(c echo.Context, _ *ActualRequest) error {
	waitForCount, err := strconv.Atoi(c.QueryParam("count"))
	if err != nil {
		waitForCount = 1
	}

	if waitFor := c.QueryParam("interaction"); waitFor != "" {
		interaction, ok := a.interactions.Load(waitFor)
		if !ok {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("cannot wait for interaction '%s', interaction not found", waitFor))
		}

		log.WithField("wait_for", waitFor).Info("waiting")
		retryFor(func(timeLeft time.Duration) bool {
			if interaction.HasRequests(waitForCount) {
				return true
			}
			if timeLeft > 0 {
				a.notify.Wait(timeLeft)
			}
			return false
		}, a.delay, a.duration)

		if !interaction.HasRequests(waitForCount) {
			return c.JSON(http.StatusRequestTimeout, httpresponse.Error("timeout waiting for interactions to be met"))
		}
		return c.NoContent(http.StatusOK)
	}

	log.Info("waiting for all interactions")
	retryFor(func(timeLeft time.Duration) bool {
		if a.interactions.AllMatched() {
			return true
		}
		if timeLeft > 0 {
			a.notify.Wait(timeLeft)
		}
		return false
	}, a.delay, a.duration)

	if !a.interactions.AllMatched() {
		for _, interaction := range a.interactions.Unmatched() {
			log.Infof("'%s' has no matching requests", interaction.Description)
		}
		return c.JSON(http.StatusRequestTimeout, httpresponse.Error("timeout waiting for interactions to be met"))
	}
	return c.NoContent(http.StatusOK)
}

func (a *api) replayHandler(c echo.Context, req *ActualRequest) error {
	outcome := a.resolver.Resolve(req)
	switch {
	case len(outcome.Ambiguous) > 0:
		return &AmbiguousRequestError{Method: req.Method, Path: req.Path, Matches: outcome.Ambiguous}
	case outcome.Match != nil:
		interaction := outcome.Match
		log.Infof("request matched interaction '%s'", interaction.Description)
		a.notify.Notify()
		return writeResponse(c, RenderResponse(interaction.response, interaction.modifiers))
	default:
		diffs := make([]DiffNode, 0, len(outcome.Candidates))
		for _, candidate := range outcome.Candidates {
			diffs = append(diffs, a.matcher.Diff(candidate.Request(), req))
		}
		mismatch := MismatchResponse{
			Message:         "No interaction found for " + req.Path,
			InteractionDiff: diffs,
		}
		logMismatch(a.config.ConsumerName, req, mismatch)
		return c.JSON(http.StatusInternalServerError, mismatch)
	}
}

func logMismatch(consumer string, req *ActualRequest, mismatch MismatchResponse) {
	entry := log.WithFields(log.Fields{
		"consumer": consumer,
		"method":   strings.ToUpper(req.Method),
		"path":     req.Path,
	})
	detail, err := json.Marshal(mismatch.InteractionDiff)
	if err != nil {
		entry.Infof("no interaction found, %d route-compatible candidates", len(mismatch.InteractionDiff))
		return
	}
	entry.Infof("no interaction found, %d route-compatible candidates: %s", len(mismatch.InteractionDiff), detail)
}

// writeResponse writes the synthesized response verbatim: exactly the
// headers the interaction names, nothing invented.
func writeResponse(c echo.Context, response TransportResponse) error {
	res := c.Response()
	for name, values := range response.Headers {
		for _, value := range values {
			res.Header().Add(name, value)
		}
	}
	res.WriteHeader(response.Status)
	_, err := res.Write(response.Body)
	return err
}
