// Package config loads the sysmind YAML configuration and watches it for
// changes. Secrets are never stored in the file: fields ending in _env name
// the environment variable that holds the value.
package config
