// Package config fills configuration structs from environment variables.
//
// Each billing package declares its own Config with `env` tags
// (billing.Config, webhook.Config, gateway.Config and so on). The binary
// loads them one by one with Load, which parses through
// github.com/caarlos0/env/v11 after reading an optional .env file with
// github.com/joho/godotenv. Extra dotenv files can be applied first with
// LoadEnv.
//
// Structs that implement Validator are checked after parsing, and any
// failure is joined with ErrInvalidConfig.
package config
