package pactmock

import (
	"net/url"
	"time"
)

// Config holds the runtime configuration of one mock server instance.
type Config struct {
	ServerAddress    url.URL       `env:"SERVER_ADDRESS"`    // Address to serve the mock on, e.g. http://localhost:8080
	ConsumerName     string        `env:"CONSUMER_NAME"`     // Consumer the mock stands in for, reported by /__identify__
	ProviderName     string        `env:"PROVIDER_NAME"`     // Provider the mock impersonates
	InteractionsFile string        `env:"INTERACTIONS_FILE"` // Optional YAML/JSON file of interactions loaded at startup
	RecordHistory    bool          `env:"RECORD_HISTORY"`    // Keep full request history per interaction
	WaitDelay        time.Duration `env:"WAIT_DELAY"`        // Poll delay for the wait endpoint
	WaitDuration     time.Duration `env:"WAIT_DURATION"`     // Poll budget for the wait endpoint
	TLSCertFile      string        `env:"TLS_CERT_FILE"`
	TLSKeyFile       string        `env:"TLS_KEY_FILE"`
	TLSCAFile        string        `env:"TLS_CA_FILE"` // Enables mTLS when set
}
