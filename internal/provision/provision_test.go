package provision

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"bybit-autotrader/internal/store"
	"bybit-autotrader/pkg/crypto"
)

const usersYAML = `
users:
  - id: "100"
    username: alice
    api_key: " AKEY123456 "
    api_secret: ASECRET
    subscription_days: 30
    settings:
      TESTNET: false
      SYMBOLS: [BTCUSDT, ETHUSDT]
      ORDER_SIZE_USD: 25
  - id: "200"
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidates(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"missing id", "users:\n  - username: bob\n", store.ErrEmptyID},
		{"duplicate", "users:\n  - id: \"1\"\n  - id: \"1\"\n", ErrDuplicateID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.content)); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(writeFile(t, "users: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApply(t *testing.T) {
	users, err := Load(writeFile(t, usersYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	st := store.NewFileStore(filepath.Join(t.TempDir(), "users.json"), nil, zerolog.Nop())
	if err := st.Open(); err != nil {
		t.Fatal(err)
	}
	codec, err := crypto.NewCredentialCodec(base64.StdEncoding.EncodeToString(make([]byte, crypto.KeySize)))
	if err != nil {
		t.Fatal(err)
	}

	n, err := Apply(st, codec, users)
	if err != nil || n != 2 {
		t.Fatalf("Apply = %d, %v", n, err)
	}

	alice, err := st.Lookup("100")
	if err != nil {
		t.Fatal(err)
	}
	if alice.Username != "alice" || alice.Testnet() || !st.IsSubscribed("100") {
		t.Fatalf("alice = %+v", alice)
	}
	if got := alice.Settings.Strings(store.SettingSymbols); len(got) != 2 || got[1] != "ETHUSDT" {
		t.Fatalf("symbols = %v", got)
	}
	if alice.Settings.Float(store.SettingOrderSizeUSD, 0) != 25 {
		t.Fatalf("order size = %v", alice.Settings[store.SettingOrderSizeUSD])
	}
	key, err := codec.Reveal(alice.APIKey)
	if err != nil || key != "AKEY123456" || !crypto.IsSealed(alice.APIKey) {
		t.Fatalf("api key = %q (%v)", alice.APIKey, err)
	}

	bob, err := st.Lookup("200")
	if err != nil {
		t.Fatal(err)
	}
	if bob.Username != store.DefaultUsername("200") || bob.HasCredentials() || st.IsSubscribed("200") {
		t.Fatalf("bob = %+v", bob)
	}
}
