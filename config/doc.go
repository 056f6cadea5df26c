// Package config provides the YAML runtime configuration for the flow
// runtime: scheduler sizing, channel defaults, logging and metrics settings.
//
// # Loading
//
// Configuration is decoded on top of the defaults, so a file only needs the
// fields it changes:
//
//	version: "1.0.0"
//	runtime:
//	  workers: 4
//	  channel_capacity: 128
//	  batch_size: 8
//	logging:
//	  level: debug
//	metrics:
//	  enabled: true
//	  listen: ":9100"
//
//	cfg, err := config.Load("flow.yaml")
//
// # Validation
//
// Every parsed or updated configuration passes two gates: the embedded JSON
// schema (structure, minimums) and the semantic rules the schema cannot
// express — the channel capacity must be a power of two and the log level
// must parse. Both failures classify as invalid-configuration errors.
//
// # Thread safety
//
// SafeConfig wraps a Config behind a read-write mutex. Get hands out deep
// copies so callers can never mutate shared state; Update validates before
// swapping, leaving the previous configuration in place on failure.
package config
