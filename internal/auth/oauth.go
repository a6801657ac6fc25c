package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/dijitalmektup/internal/crypto"
	"github.com/jun/dijitalmektup/internal/model"
	"golang.org/x/oauth2"
)

// ErrUserNotFound is returned when no record exists for the user.
var ErrUserNotFound = errors.New("user not found")

// AuthService handles OAuth2 authentication flows and user records.
type AuthService struct {
	oauthConfig  *oauth2.Config
	dynamoClient *dynamodb.Client
	tableName    string
	kmsService   crypto.Encryptor

	// In-memory fallback
	users map[string]model.UserRecord
	mu    sync.RWMutex
}

// Config returns the OAuth2 config.
func (s *AuthService) Config() *oauth2.Config {
	return s.oauthConfig
}

// NewAuthService creates a new AuthService.
// The oauthConfig should be constructed by the caller (e.g., from environment variables).
func NewAuthService(oauthConfig *oauth2.Config, dynamoClient *dynamodb.Client, tableName string, kmsService crypto.Encryptor) *AuthService {
	return &AuthService{
		oauthConfig:  oauthConfig,
		dynamoClient: dynamoClient,
		tableName:    tableName,
		kmsService:   kmsService,
		users:        make(map[string]model.UserRecord),
	}
}

// GenerateAuthURL returns the URL to redirect the user to for Google login.
func (s *AuthService) GenerateAuthURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges the authorization code for an access token.
func (s *AuthService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauthConfig.Exchange(ctx, code)
}

// SaveUser stores the profile and, when present, the encrypted refresh token.
// An empty refresh token keeps the previously stored one; the asset folder is
// always preserved.
func (s *AuthService) SaveUser(ctx context.Context, profile model.User, token *oauth2.Token) error {
	record := model.UserRecord{
		UserID:      profile.UID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		PhotoURL:    profile.PhotoURL,
		UpdatedAt:   time.Now(),
	}

	if existing, err := s.GetUser(ctx, profile.UID); err == nil {
		record.AssetFolderID = existing.AssetFolderID
		record.EncryptedRefreshToken = existing.EncryptedRefreshToken
	}

	if token != nil && token.RefreshToken != "" {
		encrypted, err := s.kmsService.Encrypt(ctx, token.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		record.EncryptedRefreshToken = encrypted
	}

	return s.putUser(ctx, record)
}

func (s *AuthService) putUser(ctx context.Context, record model.UserRecord) error {
	// In-memory fallback
	if s.dynamoClient == nil {
		s.mu.Lock()
		s.users[record.UserID] = record
		s.mu.Unlock()
		return nil
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal user record: %w", err)
	}

	_, err = s.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save user to DynamoDB: %w", err)
	}
	return nil
}

// GetUser retrieves the UserRecord or returns ErrUserNotFound.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*model.UserRecord, error) {
	var record model.UserRecord

	if s.dynamoClient == nil {
		s.mu.RLock()
		r, ok := s.users[userID]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrUserNotFound
		}
		record = r
	} else {
		out, err := s.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"user_id": &types.AttributeValueMemberS{Value: userID},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
		}
		if out.Item == nil {
			return nil, ErrUserNotFound
		}

		if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user record: %w", err)
		}
	}
	return &record, nil
}

// UpdateProfile changes the display name and photo of an existing user.
func (s *AuthService) UpdateProfile(ctx context.Context, userID, displayName, photoURL string) (*model.UserRecord, error) {
	record, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if displayName != "" {
		record.DisplayName = displayName
	}
	if photoURL != "" {
		record.PhotoURL = photoURL
	}
	record.UpdatedAt = time.Now()
	if err := s.putUser(ctx, *record); err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateAssetFolderID records the Drive folder that holds the user's letter images.
func (s *AuthService) UpdateAssetFolderID(ctx context.Context, userID, folderID string) error {
	if s.dynamoClient == nil {
		s.mu.Lock()
		if r, ok := s.users[userID]; ok {
			r.AssetFolderID = folderID
			s.users[userID] = r
		}
		s.mu.Unlock()
		return nil
	}

	_, err := s.dynamoClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression: aws.String("SET asset_folder_id = :fid, updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fid": &types.AttributeValueMemberS{Value: folderID},
			":now": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update asset folder id: %w", err)
	}
	return nil
}

// GetClient returns an authenticated http.Client for the user.
func (s *AuthService) GetClient(ctx context.Context, userID string) (*http.Client, error) {
	record, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record.EncryptedRefreshToken == "" {
		return nil, fmt.Errorf("no refresh token stored for user %s", userID)
	}

	refreshToken, err := s.kmsService.Decrypt(ctx, record.EncryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-1 * time.Hour), // Force refresh
	}

	tokenSource := s.oauthConfig.TokenSource(ctx, token)
	return oauth2.NewClient(ctx, tokenSource), nil
}
