// Package config loads and validates Fieldtrace Core configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by FIELDTRACE_* environment variables. Secrets
// (JWT signing key, MQTT and InfluxDB credentials) should always come from
// the environment in production deployments.
package config
