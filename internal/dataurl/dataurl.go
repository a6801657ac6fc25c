// Package dataurl decodes RFC 2397 data URLs carrying letter images.
package dataurl

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const prefix = "data:"

// ErrInvalid is returned for strings that are not well-formed data URLs.
var ErrInvalid = errors.New("invalid data url")

// DataURL is a decoded data URL.
type DataURL struct {
	MediaType string
	Data      []byte
}

// Is reports whether s looks like a data URL.
func Is(s string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// IsImage reports whether s is a data URL with an image media type.
func IsImage(s string) bool {
	if !Is(s) {
		return false
	}
	meta, _, ok := strings.Cut(s[len(prefix):], ",")
	return ok && strings.HasPrefix(strings.ToLower(meta), "image/")
}

// Parse decodes s. The media type defaults to text/plain as in RFC 2397.
func Parse(s string) (*DataURL, error) {
	if !Is(s) {
		return nil, fmt.Errorf("%w: missing data: prefix", ErrInvalid)
	}
	meta, payload, ok := strings.Cut(s[len(prefix):], ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing comma", ErrInvalid)
	}

	params := strings.Split(meta, ";")
	mediaType := strings.TrimSpace(params[0])
	if mediaType == "" {
		mediaType = "text/plain"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	var data []byte
	if isBase64 {
		// Browsers occasionally emit unpadded or URL-safe payloads.
		cleaned := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		var err error
		data, err = decodeBase64(cleaned)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		data = []byte(unescaped)
	}

	return &DataURL{MediaType: strings.ToLower(mediaType), Data: data}, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("malformed base64 payload")
}

// Encode builds a base64 data URL.
func Encode(mediaType string, data []byte) string {
	return prefix + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Digest is the hex SHA-256 of the full data URL string; identical payloads
// share a digest.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
