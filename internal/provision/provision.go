// Package provision imports users from a YAML file into the profile store.
package provision

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"bybit-autotrader/internal/store"
)

var ErrDuplicateID = errors.New("duplicate user id")

// User is one entry of the provisioning file.
type User struct {
	ID               string         `yaml:"id"`
	Username         string         `yaml:"username"`
	APIKey           string         `yaml:"api_key"`
	APISecret        string         `yaml:"api_secret"`
	SubscriptionDays int            `yaml:"subscription_days"`
	Settings         map[string]any `yaml:"settings"`
}

// File represents the top-level YAML structure.
type File struct {
	Users []User `yaml:"users"`
}

// Store is the persistence provisioning writes to.
type Store interface {
	Create(id, username string) (store.Profile, error)
	SetCredentials(id, key, secret string) error
	SetSubscription(id string, days int) error
	UpdateSetting(id, key string, value any) (store.Settings, error)
}

// Sealer encrypts credentials before they are stored.
type Sealer interface {
	Enabled() bool
	Seal(plaintext string) (string, error)
}

// Load reads and validates users from a YAML file.
func Load(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Users))
	for i := range file.Users {
		u := &file.Users[i]
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			return nil, fmt.Errorf("user #%d: %w", i+1, store.ErrEmptyID)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, u.ID)
		}
		seen[u.ID] = true
	}
	return file.Users, nil
}

// Apply creates or updates every user. Credentials are only written when both
// halves are present, and a subscription only when days is positive.
func Apply(st Store, sealer Sealer, users []User) (int, error) {
	for n, u := range users {
		if _, err := st.Create(u.ID, u.Username); err != nil {
			return n, fmt.Errorf("user %s: %w", u.ID, err)
		}
		key, secret := strings.TrimSpace(u.APIKey), strings.TrimSpace(u.APISecret)
		if key != "" && secret != "" {
			if sealer != nil && sealer.Enabled() {
				var err error
				if key, err = sealer.Seal(key); err != nil {
					return n, fmt.Errorf("user %s: seal api key: %w", u.ID, err)
				}
				if secret, err = sealer.Seal(secret); err != nil {
					return n, fmt.Errorf("user %s: seal api secret: %w", u.ID, err)
				}
			}
			if err := st.SetCredentials(u.ID, key, secret); err != nil {
				return n, fmt.Errorf("user %s: %w", u.ID, err)
			}
		}
		if u.SubscriptionDays > 0 {
			if err := st.SetSubscription(u.ID, u.SubscriptionDays); err != nil {
				return n, fmt.Errorf("user %s: %w", u.ID, err)
			}
		}
		keys := make([]string, 0, len(u.Settings))
		for k := range u.Settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := st.UpdateSetting(u.ID, k, u.Settings[k]); err != nil {
				return n, fmt.Errorf("user %s setting %s: %w", u.ID, k, err)
			}
		}
	}
	return len(users), nil
}
