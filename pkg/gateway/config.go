package gateway

import "time"

// Driver names for Config.Driver.
const (
	DriverSandbox = "sandbox"
	DriverHTTP    = "http"
)

// Config configures the processor client.
type Config struct {
	Driver        string        `env:"GATEWAY_DRIVER" envDefault:"sandbox"`
	URL           string        `env:"GATEWAY_URL"`
	APIKey        string        `env:"GATEWAY_API_KEY"`
	SigningSecret string        `env:"GATEWAY_SIGNING_SECRET"`
	Timeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	MaxRetries    int           `env:"GATEWAY_MAX_RETRIES" envDefault:"2"`

	BreakerFailures int           `env:"GATEWAY_BREAKER_FAILURES" envDefault:"5"`
	BreakerRecovery time.Duration `env:"GATEWAY_BREAKER_RECOVERY" envDefault:"30s"`
}
