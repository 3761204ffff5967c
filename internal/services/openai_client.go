package services

import (
  "bytes"
  "context"
  "encoding/base64"
  "encoding/json"
  "errors"
  "fmt"
  "io"
  "math/rand"
  "net"
  "net/http"
  "os"
  "strconv"
  "strings"
  "time"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
)

// PanelBreakdown is one panel of the story as the model splits it: a visual
// description fed to image generation and the text shown in the panel.
type PanelBreakdown struct {
  ImageDescription string `json:"image_description"`
  PanelText        string `json:"panel_text"`
}

type OpenAIClient interface {
  GenerateStory(ctx context.Context, prompt, style string, characterNames []string, numPanels int) (string, error)
  BreakStoryIntoPanels(ctx context.Context, story string, numPanels int) ([]PanelBreakdown, error)
  GenerateImage(ctx context.Context, description, style string) ([]byte, error)
  SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

type openAIClient struct {
  log        *logger.Logger
  baseURL    string
  apiKey     string
  model      string
  imageModel string
  ttsModel   string
  ttsVoice   string
  httpClient *http.Client

  maxRetries int
}

func NewOpenAIClient(log *logger.Logger) (OpenAIClient, error) {
  apiKey := os.Getenv("OPENAI_API_KEY")
  if apiKey == "" {
    return nil, fmt.Errorf("missing OPENAI_API_KEY")
  }

  baseURL := os.Getenv("OPENAI_BASE_URL")
  if baseURL == "" {
    baseURL = "https://api.openai.com"
  }

  model := os.Getenv("OPENAI_MODEL")
  if model == "" {
    model = "gpt-4o"
  }

  imageModel := os.Getenv("OPENAI_IMAGE_MODEL")
  if imageModel == "" {
    imageModel = "gpt-image-1"
  }

  ttsModel := os.Getenv("OPENAI_TTS_MODEL")
  if ttsModel == "" {
    ttsModel = "tts-1"
  }

  ttsVoice := os.Getenv("OPENAI_TTS_VOICE")
  if ttsVoice == "" {
    ttsVoice = "alloy"
  }

  // IMPORTANT: default timeout higher for image generation workloads
  timeoutSec := 180
  if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
      timeoutSec = parsed
    }
  }

  maxRetries := 4
  if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
      maxRetries = parsed
    }
  }

  return &openAIClient{
    log:        log.With("service", "OpenAIClient"),
    baseURL:    baseURL,
    apiKey:     apiKey,
    model:      model,
    imageModel: imageModel,
    ttsModel:   ttsModel,
    ttsVoice:   ttsVoice,
    httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
    maxRetries: maxRetries,
  }, nil
}

type openAIHTTPError struct {
  StatusCode int
  Body       string
}

func (e *openAIHTTPError) Error() string {
  return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
  if code == 408 || code == 429 {
    return true
  }
  if code >= 500 && code <= 599 {
    return true
  }
  return false
}

func isRetryableErr(err error) bool {
  if err == nil {
    return false
  }
  if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
    // if caller canceled, don't retry; the call loop checks ctx itself.
    return true
  }
  var netErr net.Error
  if errors.As(err, &netErr) {
    if netErr.Timeout() {
      return true
    }
  }
  var httpErr *openAIHTTPError
  if errors.As(err, &httpErr) {
    return isRetryableHTTP(httpErr.StatusCode)
  }
  return false
}

func jitterSleep(base time.Duration) time.Duration {
  // +/- 20%
  if base <= 0 {
    return 0
  }
  j := 0.2
  delta := base.Seconds() * j
  low := base.Seconds() - delta
  high := base.Seconds() + delta
  if low < 0 {
    low = 0
  }
  v := low + rand.Float64()*(high-low)
  return time.Duration(v * float64(time.Second))
}

func (c *openAIClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
  var buf bytes.Buffer
  if body != nil {
    if err := json.NewEncoder(&buf).Encode(body); err != nil {
      return nil, nil, err
    }
  }

  req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
  if err != nil {
    return nil, nil, err
  }
  req.Header.Set("Authorization", "Bearer "+c.apiKey)
  req.Header.Set("Content-Type", "application/json")

  resp, err := c.httpClient.Do(req)
  if err != nil {
    return nil, nil, err
  }

  raw, readErr := io.ReadAll(resp.Body)
  _ = resp.Body.Close()
  if readErr != nil {
    return resp, nil, readErr
  }

  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }
  return resp, raw, nil
}

// doRaw is do without JSON decoding, for endpoints that return binary
// payloads such as audio.
func (c *openAIClient) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
  var raw []byte
  err := c.withRetries(ctx, path, func() (*http.Response, error) {
    resp, data, err := c.doOnce(ctx, method, path, body)
    raw = data
    return resp, err
  })
  if err != nil {
    return nil, err
  }
  return raw, nil
}

func (c *openAIClient) do(ctx context.Context, method, path string, body any, out any) error {
  var raw []byte
  err := c.withRetries(ctx, path, func() (*http.Response, error) {
    resp, data, err := c.doOnce(ctx, method, path, body)
    raw = data
    return resp, err
  })
  if err != nil {
    return err
  }
  if out == nil {
    return nil
  }
  if uErr := json.Unmarshal(raw, out); uErr != nil {
    return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
  }
  return nil
}

func (c *openAIClient) withRetries(ctx context.Context, path string, call func() (*http.Response, error)) error {
  // exponential backoff: 1s, 2s, 4s, 8s (cap ~10s)
  backoff := 1 * time.Second

  for attempt := 0; attempt <= c.maxRetries; attempt++ {
    if ctx.Err() != nil {
      return ctx.Err()
    }

    resp, err := call()
    if err == nil {
      return nil
    }

    if !isRetryableErr(err) {
      return err
    }

    if attempt == c.maxRetries {
      return err
    }

    // Respect Retry-After when present
    sleepFor := backoff
    if resp != nil {
      ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
      if ra != "" {
        if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
          sleepFor = time.Duration(secs) * time.Second
        }
      }
    }

    // Cap + jitter
    if sleepFor > 10*time.Second {
      sleepFor = 10 * time.Second
    }
    sleepFor = jitterSleep(sleepFor)

    c.log.Warn("OpenAI request retrying",
      "path", path,
      "attempt", attempt+1,
      "max_retries", c.maxRetries,
      "sleep", sleepFor.String(),
      "error", err.Error(),
    )

    time.Sleep(sleepFor)
    backoff *= 2
  }

  return fmt.Errorf("unreachable retry loop")
}

// ---- Responses (plain text and Structured Outputs) ----

type responsesRequest struct {
  Model string `json:"model"`
  Input []struct {
    Role    string `json:"role"`
    Content string `json:"content"`
  } `json:"input"`
  Text *struct {
    Format map[string]any `json:"format"`
  } `json:"text,omitempty"`
  Temperature float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
  Output []struct {
    Type    string `json:"type"`
    Role    string `json:"role,omitempty"`
    Content []struct {
      Type string `json:"type"`
      Text string `json:"text,omitempty"`
    } `json:"content,omitempty"`
  } `json:"output"`
  Refusal string `json:"refusal,omitempty"`
}

func (r *responsesResponse) outputText() string {
  var text string
  for _, item := range r.Output {
    if item.Type == "message" && item.Role == "assistant" {
      for _, c := range item.Content {
        if c.Type == "output_text" && c.Text != "" {
          text += c.Text
        }
      }
    }
  }
  return text
}

func newResponsesRequest(model, system, user string, temperature float64) responsesRequest {
  return responsesRequest{
    Model: model,
    Input: []struct {
      Role    string `json:"role"`
      Content string `json:"content"`
    }{
      {Role: "system", Content: system},
      {Role: "user", Content: user},
    },
    Temperature: temperature,
  }
}

func (c *openAIClient) GenerateStory(ctx context.Context, prompt, style string, characterNames []string, numPanels int) (string, error) {
  if strings.TrimSpace(prompt) == "" {
    return "", errors.New("prompt required")
  }
  if numPanels <= 0 {
    numPanels = defaultPanels
  }

  characterPrompt := ""
  if len(characterNames) > 0 {
    characterPrompt = fmt.Sprintf("Include these characters: %s. ", strings.Join(characterNames, ", "))
  }
  system := fmt.Sprintf("You are a comic book writer. Write a short, vivid story suitable for a comic. "+
    "Keep it tight: a clear arc, concrete scenes, minimal exposition. "+
    "%sKeep it concise enough for a %d panel comic book.", characterPrompt, numPanels)
  user := fmt.Sprintf("Write a short comic story in a %s style based on this idea:\n\n%s", styleOrDefault(style), prompt)

  req := newResponsesRequest(c.model, system, user, 0.8)

  var resp responsesResponse
  if err := c.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
    return "", err
  }
  if resp.Refusal != "" {
    return "", fmt.Errorf("model refused: %s", resp.Refusal)
  }

  story := strings.TrimSpace(resp.outputText())
  if story == "" {
    return "", fmt.Errorf("no output_text found in response")
  }
  return story, nil
}

func (c *openAIClient) BreakStoryIntoPanels(ctx context.Context, story string, numPanels int) ([]PanelBreakdown, error) {
  if strings.TrimSpace(story) == "" {
    return nil, errors.New("story required")
  }
  if numPanels <= 0 {
    return nil, errors.New("numPanels must be positive")
  }

  system := "You split stories into comic panels. For each panel produce a detailed visual " +
    "description for an image model and the caption text shown in the panel."
  user := fmt.Sprintf("Split the following story into exactly %d panels.\n\nStory:\n%s", numPanels, story)

  req := newResponsesRequest(c.model, system, user, 0.2)
  req.Text = &struct {
    Format map[string]any `json:"format"`
  }{
    Format: map[string]any{
      "type": "json_schema",
      "name": "panel_breakdown",
      "schema": map[string]any{
        "type": "object",
        "properties": map[string]any{
          "panels": map[string]any{
            "type": "array",
            "items": map[string]any{
              "type": "object",
              "properties": map[string]any{
                "image_description": map[string]any{"type": "string"},
                "panel_text":        map[string]any{"type": "string"},
              },
              "required":             []string{"image_description", "panel_text"},
              "additionalProperties": false,
            },
          },
        },
        "required":             []string{"panels"},
        "additionalProperties": false,
      },
      "strict": true,
    },
  }

  var resp responsesResponse
  if err := c.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
    return nil, err
  }
  if resp.Refusal != "" {
    return nil, fmt.Errorf("model refused: %s", resp.Refusal)
  }

  jsonText := resp.outputText()
  if jsonText == "" {
    return nil, fmt.Errorf("no output_text found in response")
  }

  var parsed struct {
    Panels []PanelBreakdown `json:"panels"`
  }
  if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
    return nil, fmt.Errorf("failed to parse panel breakdown: %w; text=%s", err, jsonText)
  }
  if len(parsed.Panels) == 0 {
    return nil, fmt.Errorf("model returned zero panels")
  }
  return parsed.Panels, nil
}

// ---- Images ----

type imageRequest struct {
  Model  string `json:"model"`
  Prompt string `json:"prompt"`
  N      int    `json:"n"`
  Size   string `json:"size"`
}

type imageResponse struct {
  Data []struct {
    B64JSON string `json:"b64_json"`
  } `json:"data"`
}

func (c *openAIClient) GenerateImage(ctx context.Context, description, style string) ([]byte, error) {
  if strings.TrimSpace(description) == "" {
    return nil, errors.New("description required")
  }

  req := imageRequest{
    Model:  c.imageModel,
    Prompt: fmt.Sprintf("Comic panel, %s style. %s", styleOrDefault(style), description),
    N:      1,
    Size:   "1024x1024",
  }

  var resp imageResponse
  if err := c.do(ctx, "POST", "/v1/images/generations", req, &resp); err != nil {
    return nil, err
  }
  if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
    return nil, fmt.Errorf("image response contained no data")
  }

  raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
  if err != nil {
    return nil, fmt.Errorf("failed to decode image payload: %w", err)
  }
  return raw, nil
}

// ---- Speech ----

type speechRequest struct {
  Model string `json:"model"`
  Input string `json:"input"`
  Voice string `json:"voice"`
}

func (c *openAIClient) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
  if strings.TrimSpace(text) == "" {
    return nil, errors.New("text required")
  }

  req := speechRequest{
    Model: c.ttsModel,
    Input: text,
    Voice: c.ttsVoice,
  }

  raw, err := c.doRaw(ctx, "POST", "/v1/audio/speech", req)
  if err != nil {
    return nil, err
  }
  if len(raw) == 0 {
    return nil, fmt.Errorf("speech response was empty")
  }
  return raw, nil
}

func styleOrDefault(style string) string {
  s := strings.TrimSpace(style)
  if s == "" {
    return "cartoon"
  }
  return s
}
