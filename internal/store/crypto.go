package store

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

// ErrDecrypt is returned when a stored credential cannot be decrypted,
// typically because the key file changed underneath the database.
var ErrDecrypt = errors.New("credential decryption failed")

// Box encrypts and decrypts credential strings with a symmetric key.
type Box struct {
	key [keySize]byte
}

// LoadOrCreateKey loads the encryption key from path, generating and writing
// a fresh key if the file does not exist yet. Creation uses O_EXCL so that
// two processes racing to bootstrap cannot end up with different keys: the
// loser of the race reads the winner's file.
func LoadOrCreateKey(path string) (*Box, error) {
	if key, err := os.ReadFile(path); err == nil {
		return newBox(key)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// Another process won the creation race.
			existing, rerr := os.ReadFile(path)
			if rerr != nil {
				return nil, fmt.Errorf("failed to read key file after race: %w", rerr)
			}
			return newBox(existing)
		}
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}

	if _, err := f.Write(key); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close key file: %w", err)
	}

	return newBox(key)
}

func newBox(key []byte) (*Box, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key length: %d bytes, want %d", len(key), keySize)
	}
	b := &Box{}
	copy(b.key[:], key)
	return b, nil
}

// Encrypt seals a plaintext credential and returns it base64-encoded.
func (b *Box) Encrypt(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (b *Box) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(sealed) < 24 {
		return "", ErrDecrypt
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
