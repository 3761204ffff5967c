package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pixelbloom/comicforge-backend/internal/logger"
)

func newTestOpenAIClient(t *testing.T, handler http.Handler) OpenAIClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_TIMEOUT_SECONDS", "5")
	t.Setenv("OPENAI_MAX_RETRIES", "3")

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	client, err := NewOpenAIClient(log)
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	return client
}

func responsesBody(text string) map[string]any {
	return map[string]any{
		"output": []map[string]any{
			{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{
					{"type": "output_text", "text": text},
				},
			},
		},
	}
}

func TestGenerateStoryRetriesOn429(t *testing.T) {
	var calls int
	client := newTestOpenAIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(responsesBody("Once upon a time, a robot learned to paint."))
	}))

	story, err := client.GenerateStory(context.Background(), "a robot who paints", "watercolor", nil, 3)
	if err != nil {
		t.Fatalf("GenerateStory: %v", err)
	}
	if story == "" {
		t.Fatalf("expected story text")
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls (one retry), got %d", calls)
	}
}

func TestGenerateStoryIncludesCharacterNames(t *testing.T) {
	var body []byte
	client := newTestOpenAIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(responsesBody("Ava and Rex pulled off the heist."))
	}))

	if _, err := client.GenerateStory(context.Background(), "a heist", "noir", []string{"Ava", "Rex"}, 3); err != nil {
		t.Fatalf("GenerateStory: %v", err)
	}
	if !strings.Contains(string(body), "Include these characters: Ava, Rex.") {
		t.Fatalf("character names missing from prompt: %s", body)
	}
}

func TestGenerateStoryFailsFastOn400(t *testing.T) {
	var calls int
	client := newTestOpenAIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))

	if _, err := client.GenerateStory(context.Background(), "anything", "", nil, 3); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("client retried a non-retryable status, calls=%d", calls)
	}
}

func TestBreakStoryIntoPanels(t *testing.T) {
	breakdown := map[string]any{
		"panels": []map[string]any{
			{"image_description": "A robot at an easel", "panel_text": "Beep began to paint."},
			{"image_description": "A gallery crowd", "panel_text": "The crowd fell silent."},
		},
	}
	raw, _ := json.Marshal(breakdown)

	client := newTestOpenAIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["text"] == nil {
			t.Errorf("expected structured output format in request")
		}
		_ = json.NewEncoder(w).Encode(responsesBody(string(raw)))
	}))

	panels, err := client.BreakStoryIntoPanels(context.Background(), "a story", 2)
	if err != nil {
		t.Fatalf("BreakStoryIntoPanels: %v", err)
	}
	if len(panels) != 2 {
		t.Fatalf("expected 2 panels, got %d", len(panels))
	}
	if panels[0].ImageDescription != "A robot at an easel" || panels[1].PanelText != "The crowd fell silent." {
		t.Fatalf("panel fields mismatched: %+v", panels)
	}
}

func TestGenerateImageDecodesBase64(t *testing.T) {
	pngBytes := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	client := newTestOpenAIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"b64_json": base64.StdEncoding.EncodeToString(pngBytes)},
			},
		})
	}))

	raw, err := client.GenerateImage(context.Background(), "a robot at an easel", "watercolor")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(raw) != string(pngBytes) {
		t.Fatalf("image bytes mismatched")
	}
}

func TestSynthesizeSpeechReturnsRawBytes(t *testing.T) {
	audio := []byte("ID3 fake mp3 payload")
	client := newTestOpenAIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	}))

	raw, err := client.SynthesizeSpeech(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("SynthesizeSpeech: %v", err)
	}
	if string(raw) != string(audio) {
		t.Fatalf("audio bytes mismatched")
	}
}
