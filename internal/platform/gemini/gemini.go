// Package gemini provides implementations of the detection interfaces using Google's Gemini API.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/config"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/detection"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/redact"

	// Frame images arrive as JPEG or PNG; register both decoders.
	_ "image/jpeg"
	_ "image/png"
)

// Client calls the Gemini API to detect, classify and audit traffic-scene
// objects. It implements detection.Detector, detection.SignClassifier and
// detection.Auditor.
type Client struct {
	logger        *slog.Logger
	client        *genai.Client
	model         string
	timeout       time.Duration
	coordBase     int
	maxImageBytes int64
	cropPadding   int

	// signs is the reference catalog used for two-stage sign
	// classification, in prompt order. Empty disables refinement.
	signs []string
}

// New creates a Client for the configured model.
//
// It validates the configuration, initializes the underlying genai client
// and loads the reference sign catalog from cfg.SignsDir. A missing or
// empty catalog disables sign refinement but is not an error.
//
// Parameters:
//   - ctx: Context for initialization, which may include timeouts or cancellation
//   - logger: A logger for recording operations
//   - cfg: Detector configuration including the API key and model name
//
// Returns:
//   - A configured Client
//   - An error if the configuration is unusable or client creation fails
func New(ctx context.Context, logger *slog.Logger, cfg config.DetectorConfig) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", detection.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", detection.ErrInvalidConfig)
	}

	logger.InfoContext(ctx, "initializing gemini detector", "model", cfg.Model)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	signs, err := loadSignNames(cfg.SignsDir)
	if err != nil {
		return nil, fmt.Errorf("load sign catalog: %w", err)
	}
	if len(signs) == 0 {
		logger.DebugContext(ctx, "sign catalog empty, refinement disabled",
			"signs_dir", cfg.SignsDir)
	} else {
		logger.InfoContext(ctx, "sign catalog loaded",
			"signs_dir", cfg.SignsDir,
			"candidates", len(signs))
	}

	return &Client{
		logger:        logger,
		client:        client,
		model:         cfg.Model,
		timeout:       cfg.Timeout,
		coordBase:     cfg.CoordBase,
		maxImageBytes: cfg.MaxImageBytes,
		cropPadding:   cfg.CropPadding,
		signs:         signs,
	}, nil
}

// Detect sends the frame and the detection prompt to the model and returns
// the parsed detections in pixel coordinates. An empty slice means the
// model found nothing to annotate.
func (c *Client) Detect(ctx context.Context, imagePath string) ([]domain.Detection, error) {
	info, err := os.Stat(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", detection.ErrImageNotFound, imagePath)
		}
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if c.maxImageBytes > 0 && info.Size() > c.maxImageBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)",
			detection.ErrImageTooLarge, imagePath, info.Size(), c.maxImageBytes)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	dims, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image dimensions: %w", err)
	}

	text, err := c.generate(ctx, []*genai.Part{
		genai.NewPartFromBytes(data, mimeFor(imagePath)),
		genai.NewPartFromText(detectPrompt),
	})
	if err != nil {
		return nil, err
	}

	raw, err := parseDetections(text)
	if err != nil {
		return nil, err
	}

	dets := toDomain(raw, dims.Width, dims.Height, c.coordBase)
	c.logger.DebugContext(ctx, "frame detected",
		"image", filepath.Base(imagePath),
		"objects", len(dets))
	return dets, nil
}

// generate performs one model call under the client's timeout and returns
// the concatenated text of the first candidate.
func (c *Client) generate(ctx context.Context, parts []*genai.Part) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{Parts: parts, Role: genai.RoleUser}}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	})
	if err != nil {
		return "", c.classifyAPIError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", detection.ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", detection.ErrEmptyResponse
	}
	return sb.String(), nil
}

// classifyAPIError translates genai transport errors into the error
// vocabulary the retry executor understands. Provider error text can carry
// the request URL, API key included, so messages are scrubbed rather than
// wrapped verbatim.
func (c *Client) classifyAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return &detection.RateLimitError{
				Message: redact.String(apiErr.Message),
				Status:  apiErr.Code,
				Hint:    retryHint(apiErr),
			}
		}
		return fmt.Errorf("gemini api error %d %s: %s",
			apiErr.Code, apiErr.Status, redact.String(apiErr.Message))
	}
	return fmt.Errorf("gemini api: %s", redact.Error(err))
}

// retryHint digs the server-suggested wait out of the RetryInfo detail that
// accompanies 429 responses, when one was supplied.
func retryHint(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		typeURL, _ := detail["@type"].(string)
		if !strings.Contains(typeURL, "RetryInfo") {
			continue
		}
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return 0
}
