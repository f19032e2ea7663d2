package credentials

// Credentials represents the stored API keys in credentials.toml, one per
// profile. A profile is usually the name of a config preset.
type Credentials struct {
	Version  int                          `toml:"version"`
	Profiles map[string]ProfileCredential `toml:"profiles"`
}

// ProfileCredential holds the API key for a single profile.
type ProfileCredential struct {
	APIKey string `toml:"api_key"`
}
