package googledrive

import (
	"context"
	"fmt"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/auth"
)

// Provider implements adapter.ObjectProvider for Google Drive.
type Provider struct {
	authService *auth.AuthService
}

// NewProvider creates a new Google Drive provider.
func NewProvider(authService *auth.AuthService) *Provider {
	return &Provider{authService: authService}
}

// GetObjectStore returns a DriveAdapter for the given user ID. The asset folder
// is created on first use and remembered on the user record.
func (p *Provider) GetObjectStore(ctx context.Context, userID string) (adapter.ObjectStore, error) {
	var assetFolderID string
	if record, err := p.authService.GetUser(ctx, userID); err == nil {
		assetFolderID = record.AssetFolderID
	}

	client, err := p.authService.GetClient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client: %w", err)
	}

	store, err := NewDriveAdapter(ctx, client, assetFolderID)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}

	if assetFolderID == "" {
		folderID, err := store.EnsureAssetFolder(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.authService.UpdateAssetFolderID(ctx, userID, folderID); err != nil {
			return nil, err
		}
	}
	return store, nil
}
