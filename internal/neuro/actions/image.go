package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Neuro/common/retry"
	"github.com/bdobrica/Neuro/internal/neuro/commands"
)

const (
	DefaultImageEndpoint = "https://router.huggingface.co/hf-inference/models/stabilityai/stable-diffusion-xl-base-1.0"
	DefaultImageCount    = 4
	defaultImageTimeout  = 2 * time.Minute

	promptQualitySuffix = ", 4k, ultra realistic, sharp focus, high detail"
)

// jpegMagic is the start-of-image marker of a JPEG payload.
var jpegMagic = []byte{0xff, 0xd8}

// IsJPEG reports whether b starts with the JPEG start-of-image marker.
func IsJPEG(b []byte) bool { return bytes.HasPrefix(b, jpegMagic) }

// HuggingFaceConfig configures the Hugging Face text-to-image client.
type HuggingFaceConfig struct {
	Endpoint string
	Token    string
	// Count is the number of images requested concurrently per prompt.
	Count int
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	Retry   retry.Config
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// statusError is a non-200 reply from the inference endpoint.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("image api: status %d: %s", e.Code, e.Body)
}

// HuggingFace generates images through the Hugging Face inference API.
type HuggingFace struct {
	cfg    HuggingFaceConfig
	client *http.Client
	logger *slog.Logger
}

// NewHuggingFace returns an ImageGenerator.
func NewHuggingFace(cfg HuggingFaceConfig, logger *slog.Logger) *HuggingFace {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultImageEndpoint
	}
	if cfg.Count <= 0 {
		cfg.Count = DefaultImageCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultImageTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "images")
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = func(attempt int, err error, wait time.Duration) {
			logger.Debug("image request failed, retrying", "attempt", attempt, "wait", wait, "err", err)
		}
	}
	return &HuggingFace{cfg: cfg, client: client, logger: logger}
}

// Generate requests Count images concurrently, each with its own random seed.
// Images that fail are skipped; an error is returned only when all fail.
func (h *HuggingFace) Generate(ctx context.Context, prompt string) ([][]byte, error) {
	var (
		mu     sync.Mutex
		images = make([][]byte, h.cfg.Count)
		errs   []error
	)

	var g errgroup.Group
	for i := range h.cfg.Count {
		g.Go(func() error {
			seed := rand.IntN(1_000_000)
			var img []byte
			err := retry.Do(ctx, h.cfg.Retry, func() error {
				var err error
				img, err = h.query(ctx, prompt, seed)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			images[i] = img
			return nil
		})
	}
	_ = g.Wait()

	var out [][]byte
	for _, img := range images {
		if img != nil {
			out = append(out, img)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("image generation failed: %w", errors.Join(errs...))
	}
	if len(errs) > 0 {
		h.logger.Warn("some image requests failed", "failed", len(errs), "ok", len(out))
	}
	return out, nil
}

// query performs one inference request. Only 429 and 503 are retried.
func (h *HuggingFace) query(ctx context.Context, prompt string, seed int) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"inputs":     prompt + promptQualitySuffix,
		"parameters": map[string]any{"seed": seed},
	})
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/jpeg")
	if h.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		se := &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, retry.After(se, retryAfter(resp.Header.Get("Retry-After")))
		case http.StatusServiceUnavailable:
			return nil, retry.After(se, warmupEstimate(data))
		}
		return nil, retry.Permanent(se)
	}
	return data, nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// warmupEstimate reads the "estimated_time" (seconds) a loading model
// reports in its 503 body.
func warmupEstimate(body []byte) time.Duration {
	var loading struct {
		EstimatedTime float64 `json:"estimated_time"`
	}
	if json.Unmarshal(body, &loading) != nil || loading.EstimatedTime <= 0 {
		return 0
	}
	return time.Duration(loading.EstimatedTime * float64(time.Second))
}

// generateImage saves the JPEG payloads returned for the prompt as
// <prompt>_<n>.jpg in the data directory and opens the first one.
func (h *handlers) generateImage(ctx context.Context, cmd commands.Command) (string, error) {
	images, err := h.Images.Generate(ctx, cmd.Argument)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(h.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	stem := fileStem(cmd.Argument)
	var saved []string
	for i, img := range images {
		if !IsJPEG(img) {
			h.Logger.Warn("discarding non-JPEG image", "index", i+1, "bytes", len(img))
			continue
		}
		path := filepath.Join(h.DataDir, fmt.Sprintf("%s_%d.jpg", stem, i+1))
		if err := os.WriteFile(path, img, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		saved = append(saved, path)
	}
	if len(saved) == 0 {
		return "", errors.New("no valid images returned")
	}
	if h.Launcher != nil {
		if err := h.Launcher.OpenFile(ctx, saved[0]); err != nil {
			h.Logger.Warn("could not open image", "path", saved[0], "err", err)
		}
	}
	return fmt.Sprintf("Saved %d image(s): %s", len(saved), strings.Join(saved, ", ")), nil
}
