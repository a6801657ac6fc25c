// Package sticker searches animated GIFs and stickers for letters.
package sticker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/apperror"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
	"golang.org/x/time/rate"
)

// Kind selects the Giphy catalogue.
type Kind string

const (
	KindGIFs     Kind = "gifs"
	KindStickers Kind = "stickers"
)

const (
	DefaultBaseURL = "https://api.giphy.com/v1"
	PageSize       = 10
	cacheTTL       = 10 * time.Minute
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("sticker search is not configured")

// ParseKind accepts "gifs" and "stickers"; anything else is stickers.
func ParseKind(s string) Kind {
	if Kind(strings.ToLower(s)) == KindGIFs {
		return KindGIFs
	}
	return KindStickers
}

// Client queries the Giphy API. Results are cached in a KV store when one is
// given and outgoing requests are rate limited.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   adapter.KVStore
	limiter *rate.Limiter
	log     *logger.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithCache(kv adapter.KVStore) Option {
	return func(c *Client) { c.cache = kv }
}

// WithRate limits requests to r per second with the given burst.
func WithRate(r float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(kind Kind, q string, offset int) string {
	return fmt.Sprintf("stickers:%s:%s:%d", kind, strings.ToLower(q), offset)
}

// Search returns one page of results for q, or the trending items when q is
// blank.
func (c *Client) Search(ctx context.Context, kind Kind, q string, offset int) ([]model.Media, error) {
	if c == nil || c.apiKey == "" {
		return nil, ErrDisabled
	}
	if offset < 0 {
		offset = 0
	}
	q = strings.TrimSpace(q)
	key := cacheKey(kind, q, offset)
	log := c.log.WithFields(map[string]any{"kind": string(kind), "q": q, "offset": offset})

	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, key); err == nil {
			var cached []model.Media
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	media, err := c.fetch(ctx, kind, q, offset)
	if err != nil {
		log.Error(err, "sticker search failed")
		return nil, apperror.Persistence("search stickers", err)
	}

	if c.cache != nil {
		if raw, err := json.Marshal(media); err == nil {
			if err := c.cache.Set(ctx, key, raw, cacheTTL); err != nil {
				log.Warn("failed to cache sticker results")
			}
		}
	}
	return media, nil
}

type giphyImage struct {
	URL    string `json:"url"`
	Width  string `json:"width"`
	Height string `json:"height"`
}

type giphyResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Images struct {
			Original        giphyImage `json:"original"`
			FixedWidthSmall giphyImage `json:"fixed_width_small"`
		} `json:"images"`
	} `json:"data"`
	Meta struct {
		Status int    `json:"status"`
		Msg    string `json:"msg"`
	} `json:"meta"`
}

func (c *Client) fetch(ctx context.Context, kind Kind, q string, offset int) ([]model.Media, error) {
	endpoint := "trending"
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("limit", strconv.Itoa(PageSize))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("rating", "g")
	if q != "" {
		endpoint = "search"
		params.Set("q", q)
	}

	u := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, kind, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body giphyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding giphy response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("giphy returned %d: %s", resp.StatusCode, body.Meta.Msg)
	}

	media := make([]model.Media, 0, len(body.Data))
	for _, d := range body.Data {
		preview := d.Images.FixedWidthSmall.URL
		if preview == "" {
			preview = d.Images.Original.URL
		}
		w, _ := strconv.Atoi(d.Images.Original.Width)
		h, _ := strconv.Atoi(d.Images.Original.Height)
		media = append(media, model.Media{
			ID:         d.ID,
			Title:      d.Title,
			URL:        d.Images.Original.URL,
			PreviewURL: preview,
			Width:      w,
			Height:     h,
		})
	}
	return media, nil
}
