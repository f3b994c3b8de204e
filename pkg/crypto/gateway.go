// Package crypto protects message bodies at rest.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// tokenPrefix marks strings produced by Encrypt. Anything without it is
// treated as legacy plaintext by Decrypt.
const tokenPrefix = "enc:v1:"

var hkdfInfo = []byte("wacrm message body v1")

// Gateway encrypts text before persistence and decrypts it on read.
type Gateway interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) string
}

type gateway struct {
	aead cipher.AEAD
}

// NewGateway derives an XChaCha20-Poly1305 key from secret.
func NewGateway(secret string) (Gateway, error) {
	if secret == "" {
		return nil, errors.New("encryption key is empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, errors.Wrap(err, "derive key")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "init cipher")
	}
	return &gateway{aead: aead}, nil
}

func (g *gateway) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, g.aead.NonceSize(), g.aead.NonceSize()+len(plaintext)+g.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "read nonce")
	}

	sealed := g.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt never fails: malformed, foreign or legacy tokens come back unchanged.
func (g *gateway) Decrypt(token string) string {
	if !strings.HasPrefix(token, tokenPrefix) {
		return token
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, tokenPrefix))
	if err != nil || len(raw) < g.aead.NonceSize()+g.aead.Overhead() {
		return token
	}

	nonce, sealed := raw[:g.aead.NonceSize()], raw[g.aead.NonceSize():]
	plain, err := g.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return token
	}
	return string(plain)
}
