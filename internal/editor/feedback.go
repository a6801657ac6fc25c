package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jun/dijitalmektup/internal/apperror"
	"github.com/jun/dijitalmektup/internal/logger"
)

const (
	SendAnimationURL   = "https://lottie.host/b9a7d5ae-cf4b-479c-b73a-67e698c2ac9d/LYNHLvZLcP.json"
	DeleteAnimationURL = "https://lottie.host/5a5b9d64-55fe-408c-8f5c-81d2ba1e9b73/YdkDo9tLKl.json"

	maxAssetSize = 2 << 20
	loadTimeout  = 10 * time.Second
)

// Animation is a loaded Lottie asset.
type Animation struct {
	URL      string          `json:"url"`
	Data     json.RawMessage `json:"data"`
	Duration time.Duration   `json:"-"`
}

// LottieDuration computes the playback length from the in point, out point
// and frame rate of a Lottie document.
func LottieDuration(data []byte) (time.Duration, error) {
	var header struct {
		InPoint   float64 `json:"ip"`
		OutPoint  float64 `json:"op"`
		FrameRate float64 `json:"fr"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return 0, fmt.Errorf("decoding animation: %w", err)
	}
	if header.FrameRate <= 0 || header.OutPoint <= header.InPoint {
		return 0, errors.New("animation has no frames")
	}
	seconds := (header.OutPoint - header.InPoint) / header.FrameRate
	return time.Duration(seconds * float64(time.Second)), nil
}

// AssetLoader fetches animation assets.
type AssetLoader interface {
	Load(ctx context.Context, url string) (*Animation, error)
}

// HTTPAssetLoader downloads assets and keeps them for the life of the process.
type HTTPAssetLoader struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]*Animation
}

func NewHTTPAssetLoader(client *http.Client) *HTTPAssetLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAssetLoader{client: client, cache: make(map[string]*Animation)}
}

func (l *HTTPAssetLoader) Load(ctx context.Context, url string) (*Animation, error) {
	l.mu.Lock()
	if a, ok := l.cache[url]; ok {
		l.mu.Unlock()
		return a, nil
	}
	l.mu.Unlock()

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
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
	if err != nil {
		return nil, err
	}
	d, err := LottieDuration(data)
	if err != nil {
		return nil, err
	}

	a := &Animation{URL: url, Data: data, Duration: d}
	l.mu.Lock()
	l.cache[url] = a
	l.mu.Unlock()
	return a, nil
}

// Stage is the overlay region an animation plays in.
type Stage interface {
	Show(ctx context.Context, a *Animation) error
}

// Feedback plays decorative animations without blocking the caller.
type Feedback struct {
	loader AssetLoader
	stage  Stage
	log    *logger.Logger

	SendURL   string
	DeleteURL string
}

func NewFeedback(loader AssetLoader, stage Stage, log *logger.Logger) *Feedback {
	return &Feedback{
		loader:    loader,
		stage:     stage,
		log:       log,
		SendURL:   SendAnimationURL,
		DeleteURL: DeleteAnimationURL,
	}
}

func (f *Feedback) Send(onComplete func()) <-chan struct{} {
	return f.Play(f.SendURL, onComplete)
}

func (f *Feedback) Delete(onComplete func()) <-chan struct{} {
	return f.Play(f.DeleteURL, onComplete)
}

// Play shows the animation at url in the background. onComplete runs once the
// animation has finished, or immediately if it could not be loaded or shown.
// The returned channel is closed after onComplete returns.
func (f *Feedback) Play(url string, onComplete func()) <-chan struct{} {
	done := make(chan struct{})
	finish := func() {
		if onComplete != nil {
			onComplete()
		}
		close(done)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		if f.loader == nil {
			finish()
			return
		}
		a, err := f.loader.Load(ctx, url)
		if err != nil {
			f.log.Error(apperror.AnimationAsset(url, err), "failed to load animation")
			finish()
			return
		}
		if f.stage != nil {
			if err := f.stage.Show(ctx, a); err != nil {
				f.log.Error(apperror.AnimationAsset(url, err), "failed to show animation")
				finish()
				return
			}
		}
		time.AfterFunc(a.Duration, finish)
	}()
	return done
}
