// Package config loads the service configuration from environment
// variables, after reading an optional .env file.
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Field tags follow github.com/caarlos0/env. LoadFrom parses an explicit
// variable map and is what tests use.
package config
