package firebasestorage

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"github.com/jun/dijitalmektup/internal/adapter"
)

const downloadTokenKey = "firebaseStorageDownloadTokens"

// ObjectStore implements adapter.ObjectStore on a Firebase Storage bucket.
// Objects get a download token so that the returned URL works without
// credentials, like URLs produced by the Firebase client SDKs.
type ObjectStore struct {
	bucket     *storage.BucketHandle
	bucketName string
	newToken   func() string
}

// New opens bucketName through the Firebase app's storage client.
func New(ctx context.Context, app *firebase.App, bucketName string) (*ObjectStore, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase storage client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("firebase storage bucket %s: %w", bucketName, err)
	}
	return &ObjectStore{
		bucket:     bucket,
		bucketName: bucketName,
		newToken:   func() string { return uuid.New().String() },
	}, nil
}

func (s *ObjectStore) PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	token := s.newToken()

	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"
	w.Metadata = map[string]string{downloadTokenKey: token}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return DownloadURL(s.bucketName, key, token), nil
}

func (s *ObjectStore) DeleteObject(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return adapter.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DownloadURL builds the token-authenticated download URL of an object.
func DownloadURL(bucket, key, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(key), url.QueryEscape(token))
}
