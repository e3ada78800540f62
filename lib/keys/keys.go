// Package keys performs the transient decryption of signing material. Callers hand in age-encrypted key material
// with every send request; the service holds only the X25519 identity needed to open it, never the keys at rest.
package keys

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"filippo.io/age"
)

// Minimum plausible length of decrypted key material (a 32-byte key in hex).
const minKeyLen = 64

// Errors returned when opening signing material.
var (
	ErrBadMaterial    = errors.New("signing material could not be decrypted")
	ErrImplausibleKey = errors.New("decrypted signing material is too short to be a key")
)

// ParseIdentity parses the configured age X25519 identity ("AGE-SECRET-KEY-1...").
func ParseIdentity(s string) (*age.X25519Identity, error) {
	return age.ParseX25519Identity(strings.TrimSpace(s))
}

// Encrypt seals key material for the given recipient. Used by clients and tests; the service itself only decrypts.
func Encrypt(recipient *age.X25519Recipient, material string) (string, error) {
	buf := &bytes.Buffer{}

	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return "", err
	}

	if _, err = io.WriteString(w, material); err != nil {
		return "", err
	}

	if err = w.Close(); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decrypt opens base64 encoded, age-encrypted signing material and returns the hex private key it carries. Keys
// that decrypt to fewer than 32 bytes of hex are rejected as implausible.
func Decrypt(identity *age.X25519Identity, material string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(material)
	if err != nil {
		return "", ErrBadMaterial
	}

	r, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return "", ErrBadMaterial
	}

	plain, err := io.ReadAll(r)
	if err != nil {
		return "", ErrBadMaterial
	}

	key := strings.TrimPrefix(strings.TrimSpace(string(plain)), "0x")
	if len(key) < minKeyLen {
		return "", ErrImplausibleKey
	}

	return key, nil
}
