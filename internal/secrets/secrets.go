// Package secrets implements the caerbannog secret wire format:
//
//	$caerbannog$<version>$<salt>$<nonce>$<tag>$<ciphertext>
//
// with every binary field base64-encoded. The key is derived from the
// password and salt with scrypt and the payload sealed with AES-256-GCM.
// Variable files beginning with the marker are decrypted transparently by
// the vars loader.
package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	header  = "caerbannog"
	version = "1"

	// Marker prefixes every encrypted payload.
	Marker = "$" + header + "$"

	saltSize  = 32
	keySize   = 32
	nonceSize = 16
	tagSize   = 16

	wrapColumn = 80
)

// ErrFormat reports secret text that does not match the wire format. The
// whole operation fails; no partial decryption is attempted.
var ErrFormat = errors.New("unknown secret format")

// Params holds the scrypt cost parameters. Production uses DefaultParams;
// tests lower N to keep key derivation fast. The wire format does not encode
// the parameters, so both sides must agree.
type Params struct {
	N int
	R int
	P int
}

// DefaultParams matches the published format: N=2^20, r=8, p=1.
var DefaultParams = Params{N: 1 << 20, R: 8, P: 1}

// IsSecret reports whether data begins with the secret marker.
func IsSecret(data []byte) bool {
	return bytes.HasPrefix(data, []byte(Marker))
}

// Encrypt seals plaintext under password with DefaultParams. Pretty mode
// breaks the line after the version and wraps the payload at 80 columns.
func Encrypt(plaintext []byte, password string, pretty bool) (string, error) {
	return EncryptWithParams(plaintext, password, pretty, DefaultParams)
}

// EncryptWithParams is Encrypt with explicit scrypt parameters.
func EncryptWithParams(plaintext []byte, password string, pretty bool, params Params) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	// The encoded salt string is the scrypt salt, so that the wire field can
	// be fed back verbatim on decryption.
	saltStr := encode(salt)
	key, err := deriveKey(saltStr, password, params)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed, err := seal(key, nonce, plaintext)
	if err != nil {
		return "", err
	}
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	payload := strings.Join([]string{saltStr, encode(nonce), encode(tag), encode(ciphertext)}, "$")
	if pretty {
		return Marker + version + "$\n" + wrap(payload, wrapColumn), nil
	}
	return Marker + version + "$" + payload, nil
}

// Decrypt opens a secret produced by Encrypt. All whitespace is stripped
// first, so both pretty and plain forms are accepted.
func Decrypt(secret, password string) ([]byte, error) {
	return NewKeyring(DefaultParams).Decrypt(secret, password)
}

// Keyring derives and caches scrypt keys. The cache key includes the salt:
// two secrets sharing a password but not a salt derive distinct keys.
type Keyring struct {
	params Params
	keys   map[keyID][]byte
}

type keyID struct {
	salt     string
	password string
}

// NewKeyring returns an empty Keyring using the given scrypt parameters.
func NewKeyring(params Params) *Keyring {
	return &Keyring{params: params, keys: make(map[keyID][]byte)}
}

// Decrypt opens a secret, reusing a cached key when the same salt and
// password have been seen before.
func (k *Keyring) Decrypt(secret, password string) ([]byte, error) {
	fields := strings.Split(stripSpace(secret), "$")
	if len(fields) != 7 {
		return nil, ErrFormat
	}
	if fields[0] != "" || fields[1] != header {
		return nil, ErrFormat
	}
	if fields[2] != version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrFormat, fields[2])
	}

	saltStr := fields[3]
	nonce, err := decode(fields[4])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	tag, err := decode(fields[5])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	ciphertext, err := decode(fields[6])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	key, err := k.key(saltStr, password)
	if err != nil {
		return nil, err
	}
	plaintext, err := open(key, nonce, append(ciphertext, tag...))
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	return plaintext, nil
}

func (k *Keyring) key(salt, password string) ([]byte, error) {
	id := keyID{salt: salt, password: password}
	if key, ok := k.keys[id]; ok {
		return key, nil
	}
	key, err := deriveKey(salt, password, k.params)
	if err != nil {
		return nil, err
	}
	k.keys[id] = key
	return key, nil
}

func deriveKey(salt, password string, params Params) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), []byte(salt), params.N, params.R, params.P, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func seal(key, nonce, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

func open(key, nonce, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, sealed, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteByte('\n')
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			return -1
		}
		return r
	}, s)
}

func encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
