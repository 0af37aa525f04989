package configuration

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

// Config holds the settings shared by the CLI, the mock server and the
// verifier. Every field can be set from the environment or a .env file.
type Config struct {
	LogLevel string `env:"PACT_LOG_LEVEL,default=info"`
	LogDir   string `env:"PACT_LOG_DIR"`
	PactDir  string `env:"PACT_DIR,default=pacts"`

	MockServiceBinary string        `env:"PACT_MOCK_SERVICE_BINARY,default=pact-mock-service"`
	VerifierBinary    string        `env:"PACT_VERIFIER_BINARY,default=pact-provider-verifier"`
	BrokerBinary      string        `env:"PACT_BROKER_BINARY,default=pact-broker"`
	StartTimeout      time.Duration `env:"PACT_MOCK_SERVICE_START_TIMEOUT,default=10s"` // How long to wait for a mock service to accept requests

	BrokerURL      string `env:"PACT_BROKER_BASE_URL"`
	BrokerUsername string `env:"PACT_BROKER_USERNAME"`
	BrokerPassword string `env:"PACT_BROKER_PASSWORD"`
	BrokerToken    string `env:"PACT_BROKER_TOKEN"`

	CustomProviderHeaders []string `env:"CUSTOM_PROVIDER_HEADER,delimiter=;"` // e.g. Authorization: Basic cGFjdDpwYWN0;X-Tenant: a
	RerunCommand          string   `env:"PACT_INTERACTION_RERUN_COMMAND"`
}

// NewFromEnv loads the given .env files, when they exist, and then reads the
// configuration from the environment. Variables already set in the
// environment win over the files.
func NewFromEnv(ctx context.Context, dotenv ...string) (Config, error) {
	var config Config
	for _, file := range dotenv {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return config, errors.Wrapf(err, "load %s", file)
		}
		log.Debugf("loaded environment from %s", file)
	}

	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}

// ConfigureLogging applies the configured log level to the package logger.
func (c Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "parse PACT_LOG_LEVEL")
	}
	log.SetLevel(level)
	return nil
}
