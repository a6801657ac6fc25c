package secret

import (
	"context"
	"fmt"
	"sync"

	"github.com/jun/dijitalmektup/internal/config"
)

// Values holds the secrets the backend needs at startup.
type Values struct {
	GoogleClientSecret string
	JWTSecret          string
	// APIGatewaySecret is compared with the X-Origin-Verify header when set.
	APIGatewaySecret string
	// GiphyAPIKey enables sticker search when set.
	GiphyAPIKey string
}

// Load resolves all secrets named by cfg, in one round trip when r supports
// batches. The JWT secret is required; the others may be missing, which
// disables the feature that needs them.
func Load(ctx context.Context, r Resolver, cfg config.SecretsConfig) (Values, error) {
	get := func(name string) (string, error) { return r.GetSecret(ctx, name) }

	if b, ok := r.(BatchResolver); ok {
		found, err := b.GetSecrets(ctx, []string{
			cfg.JWTSecretParam,
			cfg.GoogleClientSecretParam,
			cfg.APIGatewaySecretParam,
			cfg.GiphyAPIKeyParam,
		})
		if err != nil {
			return Values{}, fmt.Errorf("resolving secrets: %w", err)
		}
		get = func(name string) (string, error) {
			if v, ok := found[name]; ok {
				return v, nil
			}
			return "", fmt.Errorf("secret %q not found", name)
		}
	}

	var v Values
	var err error
	if v.JWTSecret, err = get(cfg.JWTSecretParam); err != nil {
		return Values{}, fmt.Errorf("jwt secret: %w", err)
	}
	v.GoogleClientSecret, _ = get(cfg.GoogleClientSecretParam)
	v.APIGatewaySecret, _ = get(cfg.APIGatewaySecretParam)
	v.GiphyAPIKey, _ = get(cfg.GiphyAPIKeyParam)
	return v, nil
}

// CachingResolver memoizes successful lookups of another Resolver. Warm Lambda
// invocations reuse it instead of calling SSM again.
type CachingResolver struct {
	next  Resolver
	cache map[string]string
	mu    sync.Mutex
}

func NewCachingResolver(next Resolver) *CachingResolver {
	return &CachingResolver{next: next, cache: make(map[string]string)}
}

func (c *CachingResolver) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if v, ok := c.cache[name]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.next.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[name] = v
	c.mu.Unlock()
	return v, nil
}

// GetSecrets serves cached names and looks up the rest, in one batch when the
// wrapped resolver supports it.
func (c *CachingResolver) GetSecrets(ctx context.Context, names []string) (map[string]string, error) {
	found := make(map[string]string, len(names))
	var missing []string
	c.mu.Lock()
	for _, name := range names {
		if v, ok := c.cache[name]; ok {
			found[name] = v
		} else {
			missing = append(missing, name)
		}
	}
	c.mu.Unlock()
	if len(missing) == 0 {
		return found, nil
	}

	fetched := make(map[string]string, len(missing))
	if b, ok := c.next.(BatchResolver); ok {
		var err error
		if fetched, err = b.GetSecrets(ctx, missing); err != nil {
			return nil, err
		}
	} else {
		for _, name := range missing {
			if v, err := c.next.GetSecret(ctx, name); err == nil {
				fetched[name] = v
			}
		}
	}

	c.mu.Lock()
	for name, v := range fetched {
		c.cache[name] = v
		found[name] = v
	}
	c.mu.Unlock()
	return found, nil
}
