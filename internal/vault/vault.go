package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptySecret    = errors.New("vault secret is empty")
	ErrMalformedToken = errors.New("malformed vault token")
	ErrInvalidIV      = errors.New("invalid initialization vector")
	ErrDecryption     = errors.New("could not decrypt vault token")
)

const separator = ":"

// Vault encrypts small secrets (passwords, serialized cookie jars) for storage.
//
// Tokens have the form base64(iv) + ":" + base64(ciphertext), the ciphertext
// is AES-256-CBC with PKCS#7 padding and the key is SHA-256 of the secret.
type Vault struct {
	block cipher.Block
}

func New(secret string) (Vault, error) {
	if secret == "" {
		return Vault{}, ErrEmptySecret
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return Vault{}, err
	}
	return Vault{block: block}, nil
}

func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrDecryption)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
		}
	}
	return data[:len(data)-n], nil
}

func (v Vault) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	_, err := io.ReadFull(rand.Reader, iv)
	if err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	// pad appends, copy so the caller's slice is never written to.
	buffer := pad(append([]byte(nil), plaintext...))
	cipher.NewCBCEncrypter(v.block, iv).CryptBlocks(buffer, buffer)

	return base64.StdEncoding.EncodeToString(iv) +
		separator +
		base64.StdEncoding.EncodeToString(buffer), nil
}

func (v Vault) EncryptString(plaintext string) (string, error) {
	return v.Encrypt([]byte(plaintext))
}

func (v Vault) Decrypt(token string) ([]byte, error) {
	encodedIV, encodedCT, ok := strings.Cut(token, separator)
	if !ok {
		return nil, ErrMalformedToken
	}
	iv, err := base64.StdEncoding.DecodeString(encodedIV)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %w", ErrMalformedToken, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidIV, len(iv))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encodedCT)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %w", ErrMalformedToken, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrDecryption)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(v.block, iv).CryptBlocks(plaintext, ciphertext)
	return unpad(plaintext)
}

func (v Vault) DecryptString(token string) (string, error) {
	plaintext, err := v.Decrypt(token)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
