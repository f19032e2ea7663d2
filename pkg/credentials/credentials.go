// Package credentials stores API keys outside config.toml, in a 0600
// credentials.toml next to it, and resolves the key a session should use.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/reel/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0

	// DefaultProfile is used when no profile is named.
	DefaultProfile = "default"

	// EnvAPIKey overrides every stored key.
	EnvAPIKey = "REEL_API_KEY"
)

// profileEnvVars maps profiles to the conventional environment variable of
// their provider, consulted after EnvAPIKey.
var profileEnvVars = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// Manager manages reading and writing credentials.toml in the .reel/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .reel/ directory; otherwise the standard dotdir resolution applies.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:  currentVersion,
				Profiles: make(map[string]ProfileCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Profiles == nil {
		creds.Profiles = make(map[string]ProfileCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for the given profile.
func (m *Manager) SetKey(profile, key string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Profiles[profileName(profile)] = ProfileCredential{APIKey: key}

	return m.Save(creds)
}

// GetKey returns the stored API key for the given profile.
// Returns an empty string if no key is stored.
func (m *Manager) GetKey(profile string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Profiles[profileName(profile)].APIKey, nil
}

// RemoveKey deletes the stored credential for a profile.
func (m *Manager) RemoveKey(profile string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Profiles, profileName(profile))

	return m.Save(creds)
}

// ListProfiles returns the names of profiles that have stored credentials.
func (m *Manager) ListProfiles() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	profiles := make([]string, 0, len(creds.Profiles))
	for name := range creds.Profiles {
		profiles = append(profiles, name)
	}

	sort.Strings(profiles)

	return profiles, nil
}

// ResolveKey returns the API key a session should use for profile:
// EnvAPIKey, then the profile's provider variable, then the stored key.
// An empty key is valid; local servers often need none.
func (m *Manager) ResolveKey(profile string) (string, error) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		return key, nil
	}

	if env := EnvVarForProfile(profile); env != "" {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}

	return m.GetKey(profile)
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// EnvVarForProfile returns the provider environment variable for a profile.
// Returns an empty string for profiles without one.
func EnvVarForProfile(profile string) string {
	return profileEnvVars[profileName(profile)]
}

func profileName(profile string) string {
	if profile == "" {
		return DefaultProfile
	}
	return profile
}
