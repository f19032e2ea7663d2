package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	stateFile = "state.json"
)

// State is what the chat command remembers between runs.
type State struct {
	// ConversationID is the conversation selected when the last session
	// ended.
	ConversationID string `json:"conversation_id"`

	// Reasoning records whether reasoning was toggled on with /reasoning.
	Reasoning bool `json:"reasoning,omitempty"`
}

// LoadState loads .reel/state.json. Returns nil, nil if no state exists.
// If overrideDir is non-empty, it is used instead of the default location.
func (m *Manager) LoadState(overrideDir string) (*State, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}

	return state, nil
}

// SaveState persists state to .reel/state.json.
func (m *Manager) SaveState(state *State, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, stateFile), data, 0o600); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}

	return nil
}

// ClearState removes the state file. Returns nil if it does not exist.
func (m *Manager) ClearState(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, stateFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing state: %w", err)
	}

	return nil
}
