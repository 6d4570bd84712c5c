package tokenauth

import "github.com/devmarvs/tokenauth/config"

// Config is the application configuration.
type Config = config.Config

// ConfigProfile describes layered config sources.
type ConfigProfile = config.Profile

// LoadConfigProfile loads config from base and secrets files, applies env
// overrides and validates the result.
func LoadConfigProfile(profile ConfigProfile) (Config, error) {
	return config.LoadProfile(profile)
}
