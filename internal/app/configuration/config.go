package configuration

import (
	"context"

	"github.com/form3tech-oss/pact-mock/internal/app/pactmock"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// NewFromEnv builds a mock server configuration from the process
// environment.
func NewFromEnv() (pactmock.Config, error) {
	ctx := context.Background()

	var config pactmock.Config
	if err := envconfig.Process(ctx, &config); err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}

// ConfigureServer starts a mock server listening on the configured
// address.
func ConfigureServer(config pactmock.Config) error {
	return StartServer(&config.ServerAddress, &config)
}
