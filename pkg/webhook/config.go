package webhook

import "time"

// Verifier names for Config.Verifier.
const (
	VerifierHMAC   = "hmac"
	VerifierPaddle = "paddle"
)

type Config struct {
	Verifier   string        `env:"WEBHOOK_VERIFIER" envDefault:"hmac"`
	Secret     string        `env:"WEBHOOK_SECRET"`
	MaxAge     time.Duration `env:"WEBHOOK_MAX_AGE" envDefault:"5m"`
	MaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"5"`
	// StaleAfter is how long a processing event may sit before another
	// worker reclaims it.
	StaleAfter   time.Duration `env:"WEBHOOK_STALE_AFTER" envDefault:"10m"`
	MaxBodyBytes int64         `env:"WEBHOOK_MAX_BODY_BYTES" envDefault:"1048576"`
}
