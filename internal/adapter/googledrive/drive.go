package googledrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jun/dijitalmektup/internal/adapter"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	folderMIME = "application/vnd.google-apps.folder"
	// AssetFolderName is created in the user's Drive root on first upload.
	AssetFolderName = "Dijital Mektup"
)

// toDriveName flattens an object key into a single Drive file name.
func toDriveName(key string) string {
	return strings.ReplaceAll(key, "/", "__")
}

// fromDriveName restores the object key from a Drive file name.
func fromDriveName(name string) string {
	return strings.ReplaceAll(name, "__", "/")
}

// viewURL is the public image URL of a Drive file shared with anyone.
func viewURL(fileID string) string {
	return "https://drive.google.com/uc?export=view&id=" + fileID
}

// escapeQuery escapes a value for use inside a single-quoted Drive query string.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// DriveAdapter implements adapter.ObjectStore in a folder of the user's Google Drive.
type DriveAdapter struct {
	service       *drive.Service
	AssetFolderID string
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client with the user's credentials.
func NewDriveAdapter(ctx context.Context, client *http.Client, assetFolderID string) (*DriveAdapter, error) {
	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %v", err)
	}
	return &DriveAdapter{service: srv, AssetFolderID: assetFolderID}, nil
}

// EnsureAssetFolder ensures the asset folder exists in 'root' and returns its ID.
func (d *DriveAdapter) EnsureAssetFolder(ctx context.Context) (string, error) {
	if d.AssetFolderID != "" {
		return d.AssetFolderID, nil
	}

	// 1. Search for the folder in 'root'
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and 'root' in parents and trashed = false", escapeQuery(AssetFolderName), folderMIME)
	r, err := d.service.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for asset folder: %v", err)
	}
	if len(r.Files) > 0 {
		d.AssetFolderID = r.Files[0].Id
		return d.AssetFolderID, nil
	}

	// 2. Create if not exists
	res, err := d.service.Files.Create(&drive.File{
		Name:     AssetFolderName,
		MimeType: folderMIME,
		Parents:  []string{"root"},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create asset folder: %v", err)
	}
	d.AssetFolderID = res.Id
	return d.AssetFolderID, nil
}

// findFile returns the ID of the asset with the given key, or "" when absent.
func (d *DriveAdapter) findFile(ctx context.Context, key string) (string, error) {
	folderID, err := d.EnsureAssetFolder(ctx)
	if err != nil {
		return "", err
	}
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(toDriveName(key)), folderID)
	r, err := d.service.Files.List().Q(q).Fields(googleapi.Field("files(id)")).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for %s: %v", key, err)
	}
	if len(r.Files) == 0 {
		return "", nil
	}
	return r.Files[0].Id, nil
}

// PutObject creates or overwrites the file named after key and shares it
// read-only with anyone holding the link.
func (d *DriveAdapter) PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	existing, err := d.findFile(ctx, key)
	if err != nil {
		return "", err
	}

	var fileID string
	if existing != "" {
		res, err := d.service.Files.Update(existing, &drive.File{}).
			Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
			Fields("id").
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("unable to update %s: %v", key, err)
		}
		fileID = res.Id
	} else {
		res, err := d.service.Files.Create(&drive.File{
			Name:     toDriveName(key),
			MimeType: contentType,
			Parents:  []string{d.AssetFolderID},
		}).
			Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
			Fields("id").
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("unable to create %s: %v", key, err)
		}
		fileID = res.Id

		_, err = d.service.Permissions.Create(fileID, &drive.Permission{
			Type: "anyone",
			Role: "reader",
		}).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("unable to share %s: %v", key, err)
		}
	}
	return viewURL(fileID), nil
}

// DeleteObject deletes the file named after key.
func (d *DriveAdapter) DeleteObject(ctx context.Context, key string) error {
	fileID, err := d.findFile(ctx, key)
	if err != nil {
		return err
	}
	if fileID == "" {
		return adapter.ErrNotFound
	}
	if err := d.service.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return adapter.ErrNotFound
		}
		return fmt.Errorf("unable to delete %s: %v", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == 404
	}
	return false
}
