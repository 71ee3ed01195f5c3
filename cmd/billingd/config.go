package main

import (
	"fmt"
	"slices"
)

// Storage and lock drivers.
const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverRedis    = "redis"
)

type appConfig struct {
	Env           string `env:"APP_ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"` // memory or postgres
	LockDriver    string `env:"LOCK_DRIVER" envDefault:"memory"`    // memory, redis or postgres
	PlansFile     string `env:"PLANS_SEED_FILE"`                    // seeded on serve when set
}

func (c *appConfig) Validate() error {
	if !slices.Contains([]string{driverMemory, driverPostgres}, c.StorageDriver) {
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if !slices.Contains([]string{driverMemory, driverRedis, driverPostgres}, c.LockDriver) {
		return fmt.Errorf("unknown LOCK_DRIVER %q", c.LockDriver)
	}
	return nil
}
