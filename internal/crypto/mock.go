package crypto

import (
	"context"
	"strings"
)

const mockPrefix = "mock:"

// MockEncryptor stands in for KMS in dev mode. Ciphertexts are the plaintext
// with a "mock:" prefix.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return mockPrefix + plaintext, nil
}

func (m *MockEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	plain, ok := strings.CutPrefix(ciphertext, mockPrefix)
	if !ok {
		return "", ErrForeignCiphertext
	}
	return plain, nil
}
