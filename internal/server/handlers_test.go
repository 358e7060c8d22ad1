package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/koelab/koe-sentinel/internal/config"
	"github.com/koelab/koe-sentinel/internal/logger"
	"github.com/koelab/koe-sentinel/internal/privacy"
	"github.com/koelab/koe-sentinel/internal/secrets"
	"github.com/koelab/koe-sentinel/internal/settings"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, s settings.Settings, audio []byte) (string, error) {
	return f.text, f.err
}

type fakeReformatter struct {
	out string
	err error
}

func (f *fakeReformatter) Format(ctx context.Context, s settings.Settings, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return text, nil
}

type fakeStats struct {
	actions []string
}

func (f *fakeStats) RecordMasking(ctx context.Context, findings []privacy.Finding, action string) error {
	f.actions = append(f.actions, action)
	return nil
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false

	dir := t.TempDir()
	if deps.Settings == nil {
		deps.Settings = settings.NewStore(filepath.Join(dir, "settings.json"), nil, nil)
	}
	if deps.Secrets == nil {
		deps.Secrets = secrets.NewStore(filepath.Join(dir, "secrets.json"))
	}
	if deps.Masker == nil {
		deps.Masker = privacy.NewMasker(nil)
	}

	srv, err := New(cfg, logger.Nop(), deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleMask(t *testing.T) {
	t.Run("MasksText", func(t *testing.T) {
		srv := newTestServer(t, Deps{})

		rec := doJSON(t, srv, http.MethodPost, "/v1/mask",
			map[string]string{"text": "Contact me at a@b.com or 090-1234-5678"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		var result privacy.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if result.Text != "Contact me at ＜メール＞ or ＜電話番号＞" {
			t.Errorf("text = %q", result.Text)
		}
		if len(result.Findings) != 2 {
			t.Errorf("findings = %v", result.Findings)
		}
	})

	t.Run("DLPBlockReturns422", func(t *testing.T) {
		srv := newTestServer(t, Deps{})
		patch := doJSON(t, srv, http.MethodPatch, "/v1/settings",
			map[string]string{"dlpAction": "block"})
		if patch.Code != http.StatusOK {
			t.Fatalf("settings patch status = %d", patch.Code)
		}

		rec := doJSON(t, srv, http.MethodPost, "/v1/mask",
			map[string]string{"text": "secret a@b.com"})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}

		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "DLP block" {
			t.Errorf(`error = %q, want "DLP block"`, body["error"])
		}
		if bytes.Contains(rec.Body.Bytes(), []byte("a@b.com")) {
			t.Error("response leaks blocked input")
		}
	})

	t.Run("WarnIsObservable", func(t *testing.T) {
		srv := newTestServer(t, Deps{})
		doJSON(t, srv, http.MethodPatch, "/v1/settings",
			map[string]string{"dlpAction": "warn"})

		rec := doJSON(t, srv, http.MethodPost, "/v1/mask",
			map[string]string{"text": "mail a@b.com"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var result privacy.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !result.Warned {
			t.Error("warned = false, want true")
		}
		if result.Text != "mail ＜メール＞" {
			t.Errorf("text = %q, warn must still mask", result.Text)
		}
	})

	t.Run("InvalidBody", func(t *testing.T) {
		srv := newTestServer(t, Deps{})
		req := httptest.NewRequest(http.MethodPost, "/v1/mask", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("StatsRecordedWhenOptedIn", func(t *testing.T) {
		stats := &fakeStats{}
		srv := newTestServer(t, Deps{Stats: stats})
		doJSON(t, srv, http.MethodPatch, "/v1/settings",
			map[string]bool{"enableUsageStats": true})

		doJSON(t, srv, http.MethodPost, "/v1/mask", map[string]string{"text": "a@b.com"})
		if len(stats.actions) != 1 || stats.actions[0] != "mask" {
			t.Errorf("recorded actions = %v", stats.actions)
		}
	})

	t.Run("StatsSkippedByDefault", func(t *testing.T) {
		stats := &fakeStats{}
		srv := newTestServer(t, Deps{Stats: stats})

		doJSON(t, srv, http.MethodPost, "/v1/mask", map[string]string{"text": "a@b.com"})
		if len(stats.actions) != 0 {
			t.Errorf("recorded actions = %v, want none without opt-in", stats.actions)
		}
	})
}

func TestHandleSettings(t *testing.T) {
	t.Run("GetReturnsDefaults", func(t *testing.T) {
		srv := newTestServer(t, Deps{})

		rec := doJSON(t, srv, http.MethodGet, "/v1/settings", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var got settings.Settings
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if got.SettingsVersion != 1 || !got.MaskEmail {
			t.Errorf("settings = %+v", got)
		}
	})

	t.Run("PatchMergesAndReturns", func(t *testing.T) {
		srv := newTestServer(t, Deps{})

		rec := doJSON(t, srv, http.MethodPatch, "/v1/settings",
			map[string]interface{}{
				"maskEmail": false,
				"customReplaceRules": []map[string]string{
					{"pattern": "x", "replace": "y"},
				},
			})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		var got settings.Settings
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if got.MaskEmail || len(got.CustomReplaceRules) != 1 {
			t.Errorf("settings = %+v", got)
		}
	})

	t.Run("InvalidPatchReturns400", func(t *testing.T) {
		srv := newTestServer(t, Deps{})

		rec := doJSON(t, srv, http.MethodPatch, "/v1/settings",
			map[string]string{"dlpAction": "shred"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}

		// Stored settings must be untouched.
		get := doJSON(t, srv, http.MethodGet, "/v1/settings", nil)
		var got settings.Settings
		if err := json.Unmarshal(get.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if got.DLPAction != "mask" {
			t.Errorf("dlpAction = %q after rejected patch", got.DLPAction)
		}
	})
}

func TestHandleKeys(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rec := doJSON(t, srv, http.MethodGet, "/v1/keys", nil)
	var presence secrets.Presence
	if err := json.Unmarshal(rec.Body.Bytes(), &presence); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if presence.HasGroq || presence.HasGemini {
		t.Errorf("presence = %+v, want none", presence)
	}

	if rec := doJSON(t, srv, http.MethodPut, "/v1/keys",
		map[string]string{"groqApiKey": "gsk_test"}); rec.Code != http.StatusNoContent {
		t.Fatalf("put status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/v1/keys", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &presence); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !presence.HasGroq {
		t.Error("groq key not reported after PUT")
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("gsk_test")) {
		t.Error("key value leaked in presence response")
	}

	if rec := doJSON(t, srv, http.MethodDelete, "/v1/keys?which=groq", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/v1/keys", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &presence); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if presence.HasGroq {
		t.Error("groq key still reported after DELETE")
	}
}

func TestHandleTranscribe(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("webm"))

	t.Run("FullPipeline", func(t *testing.T) {
		srv := newTestServer(t, Deps{
			Transcriber: &fakeTranscriber{text: "電話は090-1234-5678です"},
			Reformatter: &fakeReformatter{},
		})

		rec := doJSON(t, srv, http.MethodPost, "/v1/transcribe",
			map[string]string{"audio": audio})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		var result privacy.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if result.Text != "電話は＜電話番号＞です" {
			t.Errorf("text = %q", result.Text)
		}
	})

	t.Run("ReformatFailureFallsBackToRawTranscript", func(t *testing.T) {
		srv := newTestServer(t, Deps{
			Transcriber: &fakeTranscriber{text: "raw transcript"},
			Reformatter: &fakeReformatter{err: context.DeadlineExceeded},
		})

		rec := doJSON(t, srv, http.MethodPost, "/v1/transcribe",
			map[string]string{"audio": audio})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var result privacy.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if result.Text != "raw transcript" {
			t.Errorf("text = %q", result.Text)
		}
	})

	t.Run("TranscriptionFailureReturns502", func(t *testing.T) {
		srv := newTestServer(t, Deps{
			Transcriber: &fakeTranscriber{err: context.DeadlineExceeded},
		})

		rec := doJSON(t, srv, http.MethodPost, "/v1/transcribe",
			map[string]string{"audio": audio})
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})

	t.Run("NotConfiguredReturns503", func(t *testing.T) {
		srv := newTestServer(t, Deps{})

		rec := doJSON(t, srv, http.MethodPost, "/v1/transcribe",
			map[string]string{"audio": audio})
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("BadBase64Returns400", func(t *testing.T) {
		srv := newTestServer(t, Deps{
			Transcriber: &fakeTranscriber{text: "x"},
		})

		rec := doJSON(t, srv, http.MethodPost, "/v1/transcribe",
			map[string]string{"audio": "not base64!!"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleReformat(t *testing.T) {
	t.Run("ReformattedOutputIsMasked", func(t *testing.T) {
		srv := newTestServer(t, Deps{
			Reformatter: &fakeReformatter{out: "連絡先はa@b.comです。"},
		})

		rec := doJSON(t, srv, http.MethodPost, "/v1/reformat",
			map[string]string{"text": "連絡先は a@b.com です"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var result privacy.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if result.Text != "連絡先は＜メール＞です。" {
			t.Errorf("text = %q, reformatted text must still be masked", result.Text)
		}
	})

	t.Run("NotConfiguredReturns503", func(t *testing.T) {
		srv := newTestServer(t, Deps{})

		rec := doJSON(t, srv, http.MethodPost, "/v1/reformat",
			map[string]string{"text": "x"})
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestPTT(t *testing.T) {
	srv := newTestServer(t, Deps{})

	if rec := doJSON(t, srv, http.MethodPost, "/v1/ptt/start", nil); rec.Code != http.StatusNoContent {
		t.Errorf("start status = %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodPost, "/v1/ptt/stop", nil); rec.Code != http.StatusNoContent {
		t.Errorf("stop status = %d", rec.Code)
	}
}

func TestHandleInfo(t *testing.T) {
	srv := newTestServer(t, Deps{})

	// API calls go through the counting middleware; /info itself does not.
	doJSON(t, srv, http.MethodPost, "/v1/mask", map[string]string{"text": "hello"})
	doJSON(t, srv, http.MethodPost, "/v1/mask", map[string]string{"text": "world"})

	rec := doJSON(t, srv, http.MethodGet, "/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var info struct {
		Name             string `json:"name"`
		Uptime           string `json:"uptime"`
		TotalRequests    int64  `json:"total_requests"`
		ConnectedClients int    `json:"connected_clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.Name != "koe-sentinel" {
		t.Errorf("name = %q", info.Name)
	}
	if info.TotalRequests != 2 {
		t.Errorf("total_requests = %d, want 2", info.TotalRequests)
	}
	if info.Uptime == "" {
		t.Error("uptime missing")
	}

	status := srv.systemStatus()
	if status.Status != "healthy" || status.TotalRequests != 2 {
		t.Errorf("system status = %+v", status)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
