// Package config reads command configuration from the environment. The
// portal and playtest commands declare their settings as structs with
// WSZ6_-prefixed env tags and layer flag overrides on top.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from environment variables per its env tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
