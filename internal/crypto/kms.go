// Package crypto encrypts the refresh tokens kept for signed-in users.
package crypto

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// ErrForeignCiphertext is returned when a value was sealed by a different
// Encryptor, e.g. a token stored in dev mode read by the KMS encryptor.
var ErrForeignCiphertext = errors.New("ciphertext was not produced by this encryptor")

// Encryptor seals and opens short secrets.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// KMSClient is the subset of *kms.Client used by KMSService.
type KMSClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

const kmsPrefix = "kms:"

// encryptionContext binds ciphertexts to their use; Decrypt fails for blobs
// encrypted under a different context.
var encryptionContext = map[string]string{"purpose": "google-refresh-token"}

// KMSService implements Encryptor with a symmetric AWS KMS key. Ciphertexts
// are "kms:" followed by the base64 blob.
type KMSService struct {
	client KMSClient
	keyID  string
}

// NewKMSService returns an Encryptor for keyID, which may be a key ID, key ARN
// or alias ("alias/dijitalmektup-refresh-token").
func NewKMSService(client KMSClient, keyID string) *KMSService {
	return &KMSService{client: client, keyID: keyID}
}

func (s *KMSService) Encrypt(ctx context.Context, plaintext string) (string, error) {
	result, err := s.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(s.keyID),
		Plaintext:         []byte(plaintext),
		EncryptionContext: encryptionContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt data: %w", err)
	}
	return kmsPrefix + base64.StdEncoding.EncodeToString(result.CiphertextBlob), nil
}

func (s *KMSService) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	blob, ok := strings.CutPrefix(ciphertext, kmsPrefix)
	if !ok {
		return "", ErrForeignCiphertext
	}
	decoded, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	result, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    decoded,
		KeyId:             aws.String(s.keyID),
		EncryptionContext: encryptionContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to decrypt data: %w", err)
	}
	return string(result.Plaintext), nil
}
