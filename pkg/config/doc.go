// Package config loads typed configuration from environment variables.
//
// Configuration structs declare their variables with caarlos0/env tags.
// Load parses a struct type once and caches it for the lifetime of the
// process, so packages can ask for their configuration wherever they need it:
//
//	type Config struct {
//		Backend string `env:"AUDIT_STORAGE" envDefault:"memory"`
//		Addr    string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	cfg := config.MustLoad[Config]()
//
// A .env file in the working directory is read on first use; LoadEnv reads
// other files explicitly and clears the cache.
package config
