// Package config loads and validates gateway configuration from YAML files.
// Values of the form ${VAR} are expanded from the environment before parsing,
// so secrets can stay out of the file itself.
package config
