package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Service seals data with AES-256-GCM. Without a key it passes data through
// unchanged, which keeps development setups working.
type Service struct {
	aead cipher.AEAD
}

func New(key string) (*Service, error) {
	if key == "" {
		return &Service{}, nil
	}
	decoded, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be 32 bytes after decoding, got %d", len(decoded))
	}
	block, err := aes.NewCipher(decoded)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Service{aead: aead}, nil
}

func (s *Service) Configured() bool {
	return s != nil && s.aead != nil
}

func (s *Service) Encrypt(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return plain, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Service) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return ciphertext, nil
	}
	if len(ciphertext) < s.aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce := ciphertext[:s.aead.NonceSize()]
	return s.aead.Open(nil, nonce, ciphertext[s.aead.NonceSize():], nil)
}

// SealJSON marshals v and encrypts the result.
func (s *Service) SealJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return s.Encrypt(raw)
}

// OpenJSON decrypts data and unmarshals it into v.
func (s *Service) OpenJSON(data []byte, v any) error {
	plain, err := s.Decrypt(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(plain, v)
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 64 {
		decoded, err := hex.DecodeString(raw)
		if err == nil {
			return decoded, nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	return []byte(raw), nil
}
