package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/koelab/koe-sentinel/internal/logger"
	"github.com/koelab/koe-sentinel/internal/secrets"
	"github.com/koelab/koe-sentinel/internal/settings"
	"go.uber.org/zap"
)

const transcriptionModel = "whisper-large-v3"

// Client talks to the Groq transcription API. The service is an opaque
// collaborator: audio in, text out. Nothing returned from here may leave the
// process without going through the masking pipeline first.
type Client struct {
	baseURL    string
	httpClient *http.Client
	secrets    *secrets.Store
	logger     *logger.Logger
}

// NewClient creates a transcription client.
func NewClient(baseURL string, timeout time.Duration, sec *secrets.Store, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		secrets:    sec,
		logger:     log,
	}
}

// Transcribe sends audio to the transcription service and returns the raw
// transcript. Offline mode short-circuits to empty text without any network
// activity. A missing API key is not an error: dictation is simply
// unavailable and the caller gets empty text.
func (c *Client) Transcribe(ctx context.Context, s settings.Settings, audio []byte) (string, error) {
	if s.OfflineMode {
		return "", nil
	}

	apiKey := c.apiKey()
	if apiKey == "" {
		c.logger.Warn("Transcription skipped: no Groq API key configured")
		return "", nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio payload: %w", err)
	}
	if err := writer.WriteField("model", transcriptionModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	url := c.baseURL + "/openai/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("transcription service returned HTTP %d", resp.StatusCode)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	c.logger.Debug("Transcription completed",
		zap.Int("audio_bytes", len(audio)),
		zap.Duration("duration", time.Since(start)),
	)

	return parsed.Text, nil
}

// apiKey resolves the Groq key from the environment first, then the secrets
// store.
func (c *Client) apiKey() string {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
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
	return keys.GroqAPIKey
}
