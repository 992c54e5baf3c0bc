// Package settings provides the modtranslate credential store.
//
// Credentials live in the XDG data directory:
//
//	$XDG_DATA_HOME/modtranslate/auth.json  (default: ~/.local/share/modtranslate/)
//
// The file is a JSON object keyed by provider ID. Each entry holds an ordered
// list of API keys; the hosted provider uses the list as its credential pool,
// rotating through it in order. File permissions are 0600.
//
// Lookup order for hosted keys:
//  1. hosted.keys in modtranslate.yaml
//  2. MODTR_HOSTED_KEYS environment variable
//  3. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	dataDirName = "modtranslate"
	fileName    = "auth.json"
)

// Info is the entry stored per provider in auth.json.
type Info struct {
	// Type is always "api".
	Type string   `json:"type"`
	Keys []string `json:"keys,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"baseUrl,omitempty"`
}

// Store holds all provider credentials, keyed by provider ID.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// dataDir respects $XDG_DATA_HOME and falls back to ~/.local/share.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// Remove deletes all credentials of a provider.
func Remove(providerID string) error {
	store := Load()
	if _, ok := store[providerID]; !ok {
		return nil
	}
	delete(store, providerID)
	return Save(store)
}

// ---------------------------------------------------------------------------
// Key list helpers
// ---------------------------------------------------------------------------

// Keys returns the stored keys of a provider in pool order.
func Keys(providerID string) []string {
	info := Load()[providerID]
	if info == nil {
		return nil
	}
	return append([]string(nil), info.Keys...)
}

// AddKey appends key to the provider's pool. Adding a key that is already
// stored is a no-op. It reports whether the key was new.
func AddKey(providerID, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("key is empty")
	}
	store := Load()
	info := store[providerID]
	if info == nil {
		info = &Info{Type: "api"}
		store[providerID] = info
	}
	for _, k := range info.Keys {
		if k == key {
			return false, nil
		}
	}
	info.Keys = append(info.Keys, key)
	return true, Save(store)
}

// RemoveKey removes the key matching ref from the provider's pool. ref is
// either the full key or its 1-based position as listed by ListMasked.
func RemoveKey(providerID, ref string) (string, error) {
	store := Load()
	info := store[providerID]
	if info == nil || len(info.Keys) == 0 {
		return "", fmt.Errorf("no keys stored for %s", providerID)
	}

	idx := -1
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(info.Keys) {
		idx = n - 1
	} else {
		for i, k := range info.Keys {
			if k == ref {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("key %s not found for %s", MaskKey(ref), providerID)
	}

	removed := info.Keys[idx]
	info.Keys = append(info.Keys[:idx], info.Keys[idx+1:]...)
	if len(info.Keys) == 0 && info.BaseURL == "" {
		delete(store, providerID)
	}
	return removed, Save(store)
}

// SetBaseURL stores an endpoint override for a provider.
func SetBaseURL(providerID, baseURL string) error {
	store := Load()
	info := store[providerID]
	if info == nil {
		info = &Info{Type: "api"}
		store[providerID] = info
	}
	info.BaseURL = baseURL
	return Save(store)
}

// GetBaseURL retrieves the stored base URL for a provider.
// Returns empty string if not found.
func GetBaseURL(providerID string) string {
	info := Load()[providerID]
	if info == nil {
		return ""
	}
	return info.BaseURL
}

// ---------------------------------------------------------------------------
// Display helpers
// ---------------------------------------------------------------------------

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
