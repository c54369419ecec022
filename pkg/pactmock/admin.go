package pactmock

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/form3tech-oss/pact-mock/internal/app/pactmock"
	"github.com/pkg/errors"
)

// ServerConfiguration drives the admin plane of a mock host process:
// creating mock server instances and tearing them all down.
type ServerConfiguration struct {
	client http.Client
	url    string
}

// Config is the wire form of a mock server configuration.
type Config pactmock.Config

func Configuration(url string) *ServerConfiguration {
	return &ServerConfiguration{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

// SetupServer creates a mock server listening on the given address and
// returns a client for it.
func (conf *ServerConfiguration) SetupServer(serverAddress string) (*Client, error) {
	serverURL, err := url.Parse(serverAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse server address")
	}

	return conf.SetupServerWithConfig(&Config{ServerAddress: *serverURL})
}

// SetupServerWithConfig creates a mock server from a full configuration
// and returns a client for it.
func (conf *ServerConfiguration) SetupServerWithConfig(config *Config) (*Client, error) {
	content, err := json.Marshal(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimSuffix(conf.url, "/")+"/servers", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := conf.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(res.Body)
		return nil, errors.New(string(responseBody))
	}
	return New(config.ServerAddress.String()), nil
}

// Reset shuts down every mock server the admin plane created.
func (conf *ServerConfiguration) Reset() error {
	req, err := http.NewRequest(http.MethodDelete, strings.TrimSuffix(conf.url, "/")+"/servers", nil)
	if err != nil {
		return err
	}

	res, err := conf.client.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.New("error resetting mock servers")
	}
	return nil
}
