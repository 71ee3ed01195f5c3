package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by config structs that check their own values
// after parsing.
type Validator interface {
	Validate() error
}

var defaultEnvOnce sync.Once

// LoadEnv reads dotenv files into the process environment. Variables that
// are already set keep their values. Every named file must exist.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// Load parses the environment into v using `env` struct tags. A .env file in
// the working directory is read once per process when present. If *T
// implements Validator, Validate runs after parsing.
//
//	var cfg billing.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	defaultEnvOnce.Do(func() {
		if _, err := os.Stat(".env"); err == nil {
			_ = godotenv.Load()
		}
	})

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}
	return nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %T: %v", v, err))
	}
}
