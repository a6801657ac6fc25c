package model

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// DefaultFont is used when neither the page nor the letter carries a font.
	DefaultFont = "inherit"
	// DefaultColor is the ink color of a page without an explicit color.
	DefaultColor = "#222222"
	// DefaultTitle is applied when a letter is sent without a title.
	DefaultTitle = "Burki'den Yenge'ye 💌"
	// DemoUserPrefix marks users created through the demo login.
	DemoUserPrefix = "demo-user-"
)

// IsDemoUser reports whether the UID belongs to a demo session.
func IsDemoUser(uid string) bool {
	return strings.HasPrefix(uid, DemoUserPrefix)
}

// UserRecord represents the user's profile and OAuth2 token stored in DynamoDB.
type UserRecord struct {
	UserID                string    `json:"user_id" dynamodbav:"user_id"`
	DisplayName           string    `json:"display_name" dynamodbav:"display_name"`
	Email                 string    `json:"email" dynamodbav:"email"`
	PhotoURL              string    `json:"photo_url" dynamodbav:"photo_url"`
	EncryptedRefreshToken string    `json:"encrypted_refresh_token" dynamodbav:"encrypted_refresh_token"`
	AssetFolderID         string    `json:"asset_folder_id" dynamodbav:"asset_folder_id"` // Drive folder holding letter images
	UpdatedAt             time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// User is the signed-in identity as seen by the application.
type User struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// Profile converts a stored record into the public user shape.
func (r UserRecord) Profile() User {
	return User{UID: r.UserID, DisplayName: r.DisplayName, Email: r.Email, PhotoURL: r.PhotoURL}
}

// LockSession represents a short-lived lock held on a shared resource.
type LockSession struct {
	Resource  string `json:"resource_id" dynamodbav:"resource_id"`
	Holder    string `json:"holder_id" dynamodbav:"holder_id"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}

// CustomTheme is a user supplied paper background.
type CustomTheme struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	DateCreated string `json:"dateCreated"`
}

// PageSetting overrides the letter-wide font, paper and ink color for one page.
type PageSetting struct {
	Font  string `json:"font,omitempty"`
	Paper string `json:"paper,omitempty"`
	Color string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

// PageSettings is keyed by zero-based page index.
type PageSettings map[int]PageSetting

// Clone returns an independent copy.
func (s PageSettings) Clone() PageSettings {
	out := make(PageSettings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Point is a position on the page in CSS pixels.
type Point struct {
	X float64 `json:"x" firestore:"x"`
	Y float64 `json:"y" firestore:"y"`
}

// Drawing is a freehand layer placed on the letter.
type Drawing struct {
	URL    string  `json:"url" validate:"required"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width" validate:"gte=0"`
	Height float64 `json:"height" validate:"gte=0"`
}

// Sticker is an animated GIF or sticker placed on the letter.
type Sticker struct {
	ID       string  `json:"id"`
	URL      string  `json:"url" validate:"required,url"`
	Position Point   `json:"position"`
	Size     float64 `json:"size" validate:"gte=0"`
}

// Media is a single sticker search result.
type Media struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	PreviewURL string `json:"previewUrl"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Page is one sheet of a letter.
type Page struct {
	HTML  string `json:"html"`
	Font  string `json:"font"`
	Theme string `json:"theme"`
	Color string `json:"color"`

	legacy bool
}

// NewLegacyPage wraps a bare HTML string stored by older clients.
func NewLegacyPage(html string) Page {
	return Page{HTML: html, legacy: true}
}

// IsLegacy reports whether the page was decoded from a bare string.
func (p Page) IsLegacy() bool {
	return p.legacy
}

// UnmarshalJSON accepts both the structured page object and a bare HTML string.
func (p *Page) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = NewLegacyPage(s)
		return nil
	}

	type page Page
	var v page
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Page(v)
	return nil
}

// Letter is the persisted record.
type Letter struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Content      []Page    `json:"content"`
	Theme        string    `json:"theme"`
	Font         string    `json:"font,omitempty"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	Owner        string    `json:"owner,omitempty"`
	Stickers     []Sticker `json:"stickers,omitempty"`
	Drawings     []Drawing `json:"drawings,omitempty"`
	ImageOverlay string    `json:"imageOverlay,omitempty"`
	Timestamp    int64     `json:"timestamp"`

	// Legacy is set when any page was stored as a bare string.
	Legacy bool `json:"-"`
}

// IsDraft reports whether the letter has no recipient yet.
func (l *Letter) IsDraft() bool {
	return l.To == ""
}

// VisibleTo reports whether uid created, sent or received the letter.
func (l *Letter) VisibleTo(uid string) bool {
	if uid == "" {
		return false
	}
	return l.Owner == uid || l.From == uid || l.To == uid
}

// Normalize fills the font, theme and color a page leaves out from the
// letter-wide values and marks letters that still hold bare-string pages.
func (l *Letter) Normalize() {
	for i, p := range l.Content {
		if p.IsLegacy() {
			l.Legacy = true
		}
		if p.Font == "" {
			p.Font = l.Font
		}
		if p.Font == "" {
			p.Font = DefaultFont
		}
		if p.Theme == "" {
			p.Theme = l.Theme
		}
		if p.Color == "" {
			p.Color = DefaultColor
		}
		l.Content[i] = p
	}
}

// HTMLPages returns the raw page fragments in order.
func (l *Letter) HTMLPages() []string {
	out := make([]string, len(l.Content))
	for i, p := range l.Content {
		out[i] = p.HTML
	}
	return out
}

// LetterDraft is the input to letter creation.
type LetterDraft struct {
	// ID is an optional client-generated UUID used as the idempotency key.
	ID           string       `json:"id,omitempty" validate:"omitempty,uuid"`
	Title        string       `json:"title,omitempty" validate:"max=255"`
	Content      []string     `json:"content"`
	PageSettings PageSettings `json:"pageSettings,omitempty" validate:"dive"`
	Theme        string       `json:"theme"`
	Font         string       `json:"font,omitempty"`
	From         string       `json:"from,omitempty"`
	To           string       `json:"to,omitempty"`
	Owner        string       `json:"owner" validate:"required"`
	Stickers     []Sticker    `json:"stickers,omitempty" validate:"dive"`
	Drawings     []Drawing    `json:"drawings,omitempty" validate:"dive"`
	ImageOverlay string       `json:"imageOverlay,omitempty"`
	Timestamp    int64        `json:"timestamp,omitempty"`
}

// DraftSnapshot is the persisted composer state of one user.
type DraftSnapshot struct {
	Letters      []string     `json:"letters"`
	CurrentTheme string       `json:"currentTheme"`
	Font         string       `json:"font"`
	CurrentPage  int          `json:"currentPage"`
	PageSettings PageSettings `json:"pageSettings,omitempty"`
	Revision     string       `json:"revision"`
	UpdatedAt    int64        `json:"updatedAt"`
}
