// Package config loads daemon configuration from TELEMETRY_* environment
// variables and validates it. The ingest API address must resolve to a
// loopback interface; anything else fails validation.
package config
