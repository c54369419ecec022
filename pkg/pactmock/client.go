package pactmock

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client drives one mock server instance over its control endpoints.
type Client struct {
	client http.Client
	url    string
}

func New(url string) *Client {
	return &Client{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

// IsReady reports whether the mock server answers its liveness endpoint.
func (p *Client) IsReady() error {
	res, err := p.client.Get(p.endpoint("/index.html"))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.Errorf("mock server not ready, status %d", res.StatusCode)
	}
	return nil
}

// Identify returns the instance identity: a per-instance id plus the
// consumer and provider names the mock was configured with.
func (p *Client) Identify() (Identity, error) {
	var identity Identity

	res, err := p.client.Get(p.endpoint("/__identify__"))
	if err != nil {
		return identity, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return identity, errors.Errorf("unable to identify mock server, status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(&identity); err != nil {
		return identity, errors.Wrap(err, "unable to parse identity")
	}
	return identity, nil
}

// Register adds expected interactions to the mock server.
func (p *Client) Register(interactions ...Interaction) error {
	content, err := json.Marshal(interactions)
	if err != nil {
		return errors.Wrap(err, "unable to marshal interactions")
	}

	req, err := http.NewRequest(http.MethodPost, p.endpoint("/interactions"), bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return p.expectOK(req)
}

// Clear removes every registered interaction and resets matched state.
func (p *Client) Clear() error {
	req, err := http.NewRequest(http.MethodDelete, p.endpoint("/interactions"), nil)
	if err != nil {
		return err
	}
	return p.expectOK(req)
}

// Verify asks whether every registered interaction was exercised. A
// failed verification returns an error carrying the server's report.
func (p *Client) Verify() error {
	req, err := http.NewRequest(http.MethodGet, p.endpoint("/verify"), nil)
	if err != nil {
		return err
	}
	return p.expectOK(req)
}

// Interactions lists the registered interactions with their request
// counts.
func (p *Client) Interactions() ([]InteractionDetail, error) {
	res, err := p.client.Get(p.endpoint("/interactions"))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unable to list interactions, status %d", res.StatusCode)
	}

	var listing struct {
		Interactions []InteractionDetail `json:"interactions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&listing); err != nil {
		return nil, errors.Wrap(err, "unable to parse interactions")
	}
	return listing.Interactions, nil
}

// WaitForAll blocks until every registered interaction has received a
// matching request, or the server's wait budget runs out.
func (p *Client) WaitForAll() error {
	req, err := http.NewRequest(http.MethodGet, p.endpoint("/interactions/wait"), nil)
	if err != nil {
		return err
	}
	if err := p.expectOK(req); err != nil {
		return errors.Wrap(err, "timeout waiting for interactions")
	}
	return nil
}

// WaitForInteraction blocks until the named interaction has received
// count matching requests, or the server's wait budget runs out.
func (p *Client) WaitForInteraction(interaction string, count int) error {
	q := url.Values{}
	q.Add("interaction", interaction)
	q.Add("count", strconv.Itoa(count))

	req, err := http.NewRequest(http.MethodGet, p.endpoint("/interactions/wait")+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if err := p.expectOK(req); err != nil {
		return errors.Wrapf(err, "timeout waiting for interaction '%s'", interaction)
	}
	return nil
}

// ForInteraction begins a fluent setup against one registered
// interaction, addressed by description.
func (p *Client) ForInteraction(interaction string) *InteractionSetup {
	return &InteractionSetup{
		interaction: interaction,
		client:      p,
	}
}

// InteractionSetup attaches post-registration behavior to an interaction.
type InteractionSetup struct {
	interaction string
	client      *Client
}

// AddModifier overrides part of the interaction's response: path is
// $.status or $.body.<attribute>, and attempt (optional) restricts the
// override to the n-th matched request.
func (s *InteractionSetup) AddModifier(path, value string, attempt *int) error {
	body := map[string]interface{}{
		"interaction": s.interaction,
		"path":        path,
		"value":       value,
	}
	if attempt != nil {
		body["attempt"] = attempt
	}
	content, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "unable to marshal modifier")
	}

	req, err := http.NewRequest(http.MethodPost, s.client.endpoint("/interactions/modifiers"), bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return s.client.expectOK(req)
}

func (p *Client) endpoint(path string) string {
	return strings.TrimSuffix(p.url, "/") + path
}

// expectOK runs the request and turns any non-2xx answer into an error
// carrying the response body.
func (p *Client) expectOK(req *http.Request) error {
	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil || len(body) == 0 {
		return errors.Errorf("unexpected status %d", res.StatusCode)
	}
	return errors.New(string(body))
}
