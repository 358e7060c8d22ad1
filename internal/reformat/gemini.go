package reformat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/koelab/koe-sentinel/internal/cache"
	"github.com/koelab/koe-sentinel/internal/logger"
	"github.com/koelab/koe-sentinel/internal/secrets"
	"github.com/koelab/koe-sentinel/internal/settings"
	"go.uber.org/zap"
)

const reformatModel = "gemini-1.5-flash-latest"

// Client talks to the Gemini generateContent API to reformat raw transcripts
// into natural text. Like transcription, the service is opaque: quality is
// the model's problem, and everything returned here still goes through the
// masking pipeline before leaving the process.
type Client struct {
	baseURL    string
	httpClient *http.Client
	secrets    *secrets.Store
	cache      *cache.FormatCache
	logger     *logger.Logger
}

// NewClient creates a reformat client. cache may be nil to disable caching.
func NewClient(baseURL string, timeout time.Duration, sec *secrets.Store, formatCache *cache.FormatCache, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		secrets:    sec,
		cache:      formatCache,
		logger:     log,
	}
}

type contentPart struct {
	Text string `json:"text"`
}

type content struct {
	Role  string        `json:"role"`
	Parts []contentPart `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"system_instruction,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Format reformats text according to the settings. Reformatting is skipped,
// returning the input unchanged, when Gemini is disabled, offline mode is
// on, or no API key is configured. Cache failures are fail-soft: the request
// proceeds uncached.
func (c *Client) Format(ctx context.Context, s settings.Settings, text string) (string, error) {
	if !s.EnableGemini || s.OfflineMode {
		return text, nil
	}

	apiKey := c.apiKey()
	if apiKey == "" {
		return text, nil
	}

	instructions := BuildInstructions(s)

	var cacheKey string
	if c.cache != nil {
		cacheKey = c.cache.Key(instructions, text)
		if cached, hit, err := c.cache.Get(ctx, cacheKey); err != nil {
			c.logger.Warn("Reformat cache lookup failed", zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	reqBody := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []contentPart{{Text: text}},
		}},
		SystemInstruction: &content{
			Role:  "system",
			Parts: []contentPart{{Text: instructions}},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal reformat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, reformatModel, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build reformat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reformat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("reformat service returned HTTP %d", resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode reformat response: %w", err)
	}

	out := extractText(parsed)

	c.logger.Debug("Reformat completed",
		zap.Int("input_chars", len(text)),
		zap.Int("output_chars", len(out)),
		zap.Duration("duration", time.Since(start)),
	)

	if c.cache != nil && out != "" {
		if err := c.cache.Set(ctx, cacheKey, out); err != nil {
			c.logger.Warn("Reformat cache store failed", zap.Error(err))
		}
	}

	return out, nil
}

// extractText pulls the first non-empty candidate part out of a response.
func extractText(resp generateResponse) string {
	for i := len(resp.Candidates) - 1; i >= 0; i-- {
		candidate := resp.Candidates[i]
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

func (c *Client) apiKey() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	if c.secrets == nil {
		return ""
	}
	keys, err := c.secrets.Get()
	if err != nil {
		c.logger.Warn("Failed to read secrets store", zap.Error(err))
		return ""
	}
	return keys.GeminiAPIKey
}
