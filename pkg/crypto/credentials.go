package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoKeys         = errors.New("no credential keys configured")
	ErrVersionMissing = errors.New("key version not configured")
)

// CredentialCodec decodes stored credentials. Plaintext values pass through;
// ENC[vN]: values are opened with key version N. Keys are ordered v1..vN and
// new values are sealed with the last one.
type CredentialCodec struct {
	encryptors map[int]*Encryptor
	current    int
}

// NewCredentialCodec parses a comma-separated list of base64 keys. An empty
// list yields a codec that only passes plaintext through.
func NewCredentialCodec(keyList string) (*CredentialCodec, error) {
	c := &CredentialCodec{encryptors: make(map[int]*Encryptor)}
	for i, part := range strings.Split(keyList, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return nil, fmt.Errorf("decode key v%d: %w", i+1, err)
		}
		enc, err := NewEncryptor(key, i+1)
		if err != nil {
			return nil, fmt.Errorf("key v%d: %w", i+1, err)
		}
		c.encryptors[i+1] = enc
		c.current = i + 1
	}
	return c, nil
}

// Enabled reports whether any key is loaded.
func (c *CredentialCodec) Enabled() bool {
	return c != nil && c.current > 0
}

// Reveal returns the plaintext of a stored credential.
func (c *CredentialCodec) Reveal(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	if !c.Enabled() {
		return "", ErrNoKeys
	}
	version := ParseVersion(stored)
	if version == 0 {
		return "", ErrInvalidCiphertext
	}
	enc, ok := c.encryptors[version]
	if !ok {
		return "", fmt.Errorf("%w: v%d", ErrVersionMissing, version)
	}
	return enc.Decrypt(stored)
}

// Seal encrypts plain with the newest key. Already sealed values are
// re-encrypted with the newest key; empty values stay empty.
func (c *CredentialCodec) Seal(value string) (string, error) {
	if !c.Enabled() {
		return "", ErrNoKeys
	}
	if value == "" {
		return "", nil
	}
	plain, err := c.Reveal(value)
	if err != nil {
		return "", fmt.Errorf("open for re-encryption: %w", err)
	}
	return c.encryptors[c.current].Encrypt(plain)
}

// CurrentVersion returns the version new values are sealed with.
func (c *CredentialCodec) CurrentVersion() int {
	if c == nil {
		return 0
	}
	return c.current
}
