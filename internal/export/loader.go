package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/jun/dijitalmektup/internal/dataurl"
	_ "golang.org/x/image/webp"
)

const maxBackgroundSize = 8 << 20

// BackgroundLoader fetches and decodes page backgrounds.
type BackgroundLoader interface {
	Load(ctx context.Context, url string) (image.Image, error)
}

// LoaderFunc adapts a function to BackgroundLoader.
type LoaderFunc func(ctx context.Context, url string) (image.Image, error)

func (f LoaderFunc) Load(ctx context.Context, url string) (image.Image, error) {
	return f(ctx, url)
}

// HTTPLoader decodes data URLs in place and downloads everything else.
// Root-relative paths such as /images/paper2.jpeg are resolved against
// baseURL. Decoded images are cached.
type HTTPLoader struct {
	client  *http.Client
	baseURL string

	mu    sync.Mutex
	cache map[string]image.Image
}

func NewHTTPLoader(client *http.Client, baseURL string) *HTTPLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLoader{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   make(map[string]image.Image),
	}
}

func (l *HTTPLoader) Load(ctx context.Context, url string) (image.Image, error) {
	if dataurl.Is(url) {
		d, err := dataurl.Parse(url)
		if err != nil {
			return nil, err
		}
		return decode(d.Data)
	}

	if strings.HasPrefix(url, "/") {
		if l.baseURL == "" {
			return nil, fmt.Errorf("cannot resolve %s without a base url", url)
		}
		url = l.baseURL + url
	}

	l.mu.Lock()
	img, ok := l.cache[url]
	l.mu.Unlock()
	if ok {
		return img, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBackgroundSize))
	if err != nil {
		return nil, err
	}
	img, err = decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", url, err)
	}

	l.mu.Lock()
	l.cache[url] = img
	l.mu.Unlock()
	return img, nil
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
