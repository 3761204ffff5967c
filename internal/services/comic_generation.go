package services

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "strings"
  "sync"
  "time"

  "github.com/google/uuid"
  "golang.org/x/sync/errgroup"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/repos"
  "github.com/pixelbloom/comicforge-backend/internal/sse"
  "github.com/pixelbloom/comicforge-backend/internal/types"
  "github.com/pixelbloom/comicforge-backend/internal/utils"
)

const (
  minPanels     = 1
  maxPanels     = 20
  defaultPanels = 10
)

type GenerateComicRequest struct {
  Prompt         string   `json:"prompt"`
  Style          string   `json:"style"`
  NumPanels      int      `json:"num_panels"`
  Title          string   `json:"title"`
  CharacterNames []string `json:"character_names"`
}

type comicOptions struct {
  NumPanels      int      `json:"num_panels"`
  Style          string   `json:"style"`
  CharacterNames []string `json:"character_names,omitempty"`
}

type ComicGenerationService interface {
  // Enqueue validates the request, creates the comic row and its pending
  // job in one transaction, and returns both. Generation happens later on
  // a worker loop.
  Enqueue(ctx context.Context, userID *uuid.UUID, req GenerateComicRequest) (*types.Comic, *types.GenerationJob, error)

  // StartWorker launches the claim loops and the stale-job sweeper. It
  // returns immediately; loops run until ctx is canceled.
  StartWorker(ctx context.Context)
}

type comicGenerationService struct {
  db  *gorm.DB
  log *logger.Logger

  comicRepo        repos.ComicRepo
  panelRepo        repos.PanelRepo
  jobRepo          repos.GenerationJobRepo
  notificationRepo repos.NotificationRepo

  ai     OpenAIClient
  bucket BucketService
  sheet  SheetComposer
  hub    *sse.SSEHub

  workerConcurrency int
  imageConcurrency  int
  pollInterval      time.Duration
  staleAfter        time.Duration
}

func NewComicGenerationService(
  db *gorm.DB,
  log *logger.Logger,
  comicRepo repos.ComicRepo,
  panelRepo repos.PanelRepo,
  jobRepo repos.GenerationJobRepo,
  notificationRepo repos.NotificationRepo,
  ai OpenAIClient,
  bucket BucketService,
  sheet SheetComposer,
  hub *sse.SSEHub,
) ComicGenerationService {
  serviceLog := log.With("service", "ComicGenerationService")
  return &comicGenerationService{
    db:               db,
    log:              serviceLog,
    comicRepo:        comicRepo,
    panelRepo:        panelRepo,
    jobRepo:          jobRepo,
    notificationRepo: notificationRepo,
    ai:               ai,
    bucket:           bucket,
    sheet:            sheet,
    hub:              hub,

    workerConcurrency: utils.GetEnvAsInt("WORKER_CONCURRENCY", 2, serviceLog),
    imageConcurrency:  utils.GetEnvAsInt("IMAGE_CONCURRENCY", 4, serviceLog),
    pollInterval:      time.Duration(utils.GetEnvAsInt("WORKER_POLL_INTERVAL_SECONDS", 2, serviceLog)) * time.Second,
    staleAfter:        time.Duration(utils.GetEnvAsInt("WORKER_STALE_AFTER_SECONDS", 120, serviceLog)) * time.Second,
  }
}

func (s *comicGenerationService) Enqueue(ctx context.Context, userID *uuid.UUID, req GenerateComicRequest) (*types.Comic, *types.GenerationJob, error) {
  prompt := strings.TrimSpace(req.Prompt)
  if prompt == "" {
    return nil, nil, fmt.Errorf("prompt is required")
  }

  numPanels := req.NumPanels
  if numPanels == 0 {
    numPanels = defaultPanels
  }
  if numPanels < minPanels || numPanels > maxPanels {
    return nil, nil, fmt.Errorf("num_panels must be between %d and %d", minPanels, maxPanels)
  }

  style := styleOrDefault(req.Style)

  title := strings.TrimSpace(req.Title)
  if title == "" {
    title = deriveTitle(prompt)
  }

  characters := make([]string, 0, len(req.CharacterNames))
  for _, name := range req.CharacterNames {
    if name = strings.TrimSpace(name); name != "" {
      characters = append(characters, name)
    }
  }

  optsRaw, err := json.Marshal(comicOptions{NumPanels: numPanels, Style: style, CharacterNames: characters})
  if err != nil {
    return nil, nil, fmt.Errorf("failed to encode options: %w", err)
  }

  comic := &types.Comic{
    ID:           uuid.New(),
    UserID:       userID,
    Title:        title,
    Prompt:       prompt,
    Style:        style,
    Status:       types.StatusPending,
    Options:      datatypes.JSON(optsRaw),
    SearchVector: searchVector(title, prompt, ""),
  }
  job := &types.GenerationJob{
    ID:         uuid.New(),
    ComicID:    comic.ID,
    UserID:     userID,
    Status:     types.StatusPending,
    Stage:      "story",
    TotalSteps: 5,
    Message:    "Comic generation queued",
  }

  err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if _, err := s.comicRepo.Create(ctx, tx, []*types.Comic{comic}); err != nil {
      return err
    }
    if _, err := s.jobRepo.Create(ctx, tx, []*types.GenerationJob{job}); err != nil {
      return err
    }
    return nil
  })
  if err != nil {
    s.log.Error("Failed to enqueue comic generation", "error", err)
    return nil, nil, err
  }

  s.log.Info("Enqueued comic generation", "comicID", comic.ID, "jobID", job.ID, "numPanels", numPanels)
  return comic, job, nil
}

func (s *comicGenerationService) StartWorker(ctx context.Context) {
  s.log.Info("Starting generation worker",
    "concurrency", s.workerConcurrency,
    "imageConcurrency", s.imageConcurrency,
    "pollInterval", s.pollInterval.String(),
  )

  // Anything claimed by a previous process that died is failed up front.
  if n, err := s.jobRepo.FailStale(ctx, nil, s.staleAfter); err != nil {
    s.log.Warn("Startup stale sweep failed", "error", err)
  } else if n > 0 {
    s.log.Warn("Failed stale jobs from a previous run", "count", n)
  }

  for i := 0; i < s.workerConcurrency; i++ {
    go s.claimLoop(ctx, i)
  }
  go s.sweepLoop(ctx)
}

func (s *comicGenerationService) claimLoop(ctx context.Context, slot int) {
  loopLog := s.log.With("workerSlot", slot)
  ticker := time.NewTicker(s.pollInterval)
  defer ticker.Stop()

  for {
    select {
    case <-ctx.Done():
      loopLog.Info("Claim loop stopping", "reason", ctx.Err())
      return
    case <-ticker.C:
      job, err := s.jobRepo.ClaimNextPending(ctx, nil)
      if err != nil {
        loopLog.Error("Failed to claim job", "error", err)
        continue
      }
      if job == nil {
        continue
      }
      loopLog.Info("Claimed generation job", "jobID", job.ID, "comicID", job.ComicID)
      s.runJob(ctx, job)
    }
  }
}

func (s *comicGenerationService) sweepLoop(ctx context.Context) {
  ticker := time.NewTicker(30 * time.Second)
  defer ticker.Stop()

  for {
    select {
    case <-ctx.Done():
      return
    case <-ticker.C:
      n, err := s.jobRepo.FailStale(ctx, nil, s.staleAfter)
      if err != nil {
        s.log.Warn("Stale sweep failed", "error", err)
        continue
      }
      if n > 0 {
        s.log.Warn("Failed stale jobs", "count", n)
      }
    }
  }
}

// runJob wraps processJob with a heartbeat goroutine so the sweeper can
// tell live workers from dead ones.
func (s *comicGenerationService) runJob(ctx context.Context, job *types.GenerationJob) {
  hbCtx, cancel := context.WithCancel(ctx)
  var wg sync.WaitGroup
  wg.Add(1)
  go func() {
    defer wg.Done()
    ticker := time.NewTicker(15 * time.Second)
    defer ticker.Stop()
    for {
      select {
      case <-hbCtx.Done():
        return
      case <-ticker.C:
        if err := s.jobRepo.Heartbeat(hbCtx, nil, job.ID); err != nil {
          s.log.Warn("Heartbeat failed", "jobID", job.ID, "error", err)
        }
      }
    }
  }()

  func() {
    defer func() {
      if r := recover(); r != nil {
        s.log.Error("Generation job panicked", "jobID", job.ID, "panic", r)
        s.failJob(ctx, job, fmt.Errorf("panic: %v", r))
      }
    }()
    s.processJob(ctx, job)
  }()

  cancel()
  wg.Wait()
}

func (s *comicGenerationService) processJob(ctx context.Context, job *types.GenerationJob) {
  jobLog := s.log.With("jobID", job.ID, "comicID", job.ComicID)

  // Generation cannot produce a comic without somewhere to put the
  // artifacts. Booting without bucket config keeps the read API up, but
  // claimed jobs must fail cleanly instead of dereferencing a nil client.
  if s.bucket == nil {
    s.failJob(ctx, job, fmt.Errorf("asset storage is not configured"))
    return
  }

  comics, err := s.comicRepo.GetByIDs(ctx, nil, []uuid.UUID{job.ComicID})
  if err != nil || len(comics) == 0 {
    s.failJob(ctx, job, fmt.Errorf("comic %s not found for job: %v", job.ComicID, err))
    return
  }
  comic := comics[0]

  opts := comicOptions{NumPanels: defaultPanels, Style: styleOrDefault(comic.Style)}
  if len(comic.Options) > 0 {
    if err := json.Unmarshal(comic.Options, &opts); err != nil {
      jobLog.Warn("Could not parse comic options, using defaults", "error", err)
    }
  }
  if opts.NumPanels < minPanels || opts.NumPanels > maxPanels {
    opts.NumPanels = defaultPanels
  }

  // Stage 1: story
  if err := s.advance(ctx, job, comic.ID, types.StatusGeneratingStory, "story", 1, "Generating story..."); err != nil {
    jobLog.Error("Failed to advance job", "stage", "story", "error", err)
    return
  }

  story, err := s.ai.GenerateStory(ctx, comic.Prompt, opts.Style, opts.CharacterNames, opts.NumPanels)
  if err != nil {
    s.failJob(ctx, job, fmt.Errorf("story generation failed: %w", err))
    return
  }

  if err := s.comicRepo.UpdateFields(ctx, nil, comic.ID, map[string]interface{}{
    "story_text":    story,
    "search_vector": searchVector(comic.Title, comic.Prompt, story),
  }); err != nil {
    s.failJob(ctx, job, fmt.Errorf("failed to save story: %w", err))
    return
  }
  if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{"story": story}); err != nil {
    jobLog.Warn("Failed to save story on job", "error", err)
  }
  s.uploadJSON(ctx, jobLog, fmt.Sprintf("comics/%s/temp/story.json", job.ID), map[string]any{
    "story": story,
  })

  // Stage 2: panel breakdown
  if err := s.advance(ctx, job, comic.ID, types.StatusGeneratingPanels, "panels", 2, "Breaking story into panels..."); err != nil {
    jobLog.Error("Failed to advance job", "stage", "panels", "error", err)
    return
  }

  breakdown, err := s.ai.BreakStoryIntoPanels(ctx, story, opts.NumPanels)
  if err != nil {
    s.failJob(ctx, job, fmt.Errorf("panel breakdown failed: %w", err))
    return
  }
  if len(breakdown) > opts.NumPanels {
    jobLog.Warn("Model returned extra panels, truncating", "got", len(breakdown), "want", opts.NumPanels)
    breakdown = breakdown[:opts.NumPanels]
  }
  if len(breakdown) == 0 {
    s.failJob(ctx, job, fmt.Errorf("panel breakdown returned no panels"))
    return
  }
  if len(breakdown) < opts.NumPanels {
    jobLog.Warn("Model returned fewer panels than requested", "got", len(breakdown), "want", opts.NumPanels)
  }

  if raw, err := json.Marshal(breakdown); err == nil {
    if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{"panels": datatypes.JSON(raw)}); err != nil {
      jobLog.Warn("Failed to save breakdown on job", "error", err)
    }
  }

  // Stage 3: panel images, fanned out with a concurrency cap. Any single
  // panel failure fails the whole job; no partial comics.
  if err := s.advance(ctx, job, comic.ID, types.StatusGeneratingImages, "images", 3, "Generating images..."); err != nil {
    jobLog.Error("Failed to advance job", "stage", "images", "error", err)
    return
  }

  imageBytes := make([][]byte, len(breakdown))
  imageURLs := make([]string, len(breakdown))

  g, gctx := errgroup.WithContext(ctx)
  g.SetLimit(s.imageConcurrency)
  for i := range breakdown {
    g.Go(func() error {
      raw, err := s.ai.GenerateImage(gctx, breakdown[i].ImageDescription, opts.Style)
      if err != nil {
        return fmt.Errorf("panel %d image failed: %w", i+1, err)
      }
      key := fmt.Sprintf("comics/%s/images/panel_%d.png", job.ID, i+1)
      if err := s.bucket.UploadFile(gctx, key, "image/png", bytes.NewReader(raw)); err != nil {
        return fmt.Errorf("panel %d upload failed: %w", i+1, err)
      }
      imageBytes[i] = raw
      imageURLs[i] = s.bucket.GetPublicURL(key)
      return nil
    })
  }
  if err := g.Wait(); err != nil {
    s.failJob(ctx, job, err)
    return
  }

  panels := make([]*types.Panel, len(breakdown))
  for i, b := range breakdown {
    panels[i] = &types.Panel{
      ID:          uuid.New(),
      ComicID:     comic.ID,
      Sequence:    i + 1,
      TextContent: b.PanelText,
      Description: b.ImageDescription,
      ImageURL:    imageURLs[i],
    }
  }
  if _, err := s.panelRepo.Create(ctx, nil, panels); err != nil {
    s.failJob(ctx, job, fmt.Errorf("failed to save panels: %w", err))
    return
  }
  if err := s.comicRepo.UpdateFields(ctx, nil, comic.ID, map[string]interface{}{
    "thumbnail_url": imageURLs[0],
  }); err != nil {
    jobLog.Warn("Failed to save thumbnail", "error", err)
  }

  // Stage 4: voiceover
  if err := s.advance(ctx, job, comic.ID, types.StatusGeneratingAudio, "audio", 4, "Generating audio..."); err != nil {
    jobLog.Error("Failed to advance job", "stage", "audio", "error", err)
    return
  }

  audio, err := s.ai.SynthesizeSpeech(ctx, story)
  if err != nil {
    s.failJob(ctx, job, fmt.Errorf("voiceover synthesis failed: %w", err))
    return
  }
  audioKey := fmt.Sprintf("comics/%s/audio/voiceover.mp3", job.ID)
  if err := s.bucket.UploadFile(ctx, audioKey, "audio/mpeg", bytes.NewReader(audio)); err != nil {
    s.failJob(ctx, job, fmt.Errorf("voiceover upload failed: %w", err))
    return
  }
  audioURL := s.bucket.GetPublicURL(audioKey)
  if err := s.comicRepo.UpdateFields(ctx, nil, comic.ID, map[string]interface{}{"audio_url": audioURL}); err != nil {
    jobLog.Warn("Failed to save audio URL", "error", err)
  }

  // Stage 5: finalize. Sheet and manifest are best effort; the comic is
  // complete once its panels and audio exist.
  if err := s.advance(ctx, job, comic.ID, types.StatusGeneratingAudio, "finalize", 5, "Finalizing comic..."); err != nil {
    jobLog.Error("Failed to advance job", "stage", "finalize", "error", err)
    return
  }

  if s.sheet != nil {
    captions := make([]string, len(breakdown))
    for i, b := range breakdown {
      captions[i] = b.PanelText
    }
    if sheetPNG, err := s.sheet.Compose(imageBytes, captions); err != nil {
      jobLog.Warn("Sheet composition failed (ignored)", "error", err)
    } else {
      sheetKey := fmt.Sprintf("comics/%s/output/sheet.png", job.ID)
      if err := s.bucket.UploadFile(ctx, sheetKey, "image/png", bytes.NewReader(sheetPNG)); err != nil {
        jobLog.Warn("Sheet upload failed (ignored)", "error", err)
      }
    }
  }

  s.uploadJSON(ctx, jobLog, fmt.Sprintf("comics/%s/output/final_output.json", job.ID), map[string]any{
    "comic_id":   comic.ID,
    "story":      story,
    "panels":     breakdown,
    "image_urls": imageURLs,
    "audio_url":  audioURL,
  })

  now := time.Now()
  meta, _ := json.Marshal(map[string]any{"completed_at": now.UTC().Format(time.RFC3339)})
  if err := s.comicRepo.UpdateFields(ctx, nil, comic.ID, map[string]interface{}{
    "status":   types.StatusCompleted,
    "metadata": datatypes.JSON(meta),
  }); err != nil {
    s.failJob(ctx, job, fmt.Errorf("failed to mark comic completed: %w", err))
    return
  }
  if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
    "status":       types.StatusCompleted,
    "stage":        "finalize",
    "current_step": 5,
    "message":      "Comic generation completed!",
  }); err != nil {
    jobLog.Error("Failed to mark job completed", "error", err)
    return
  }

  s.notify(ctx, job, comic, "comic_completed", map[string]any{
    "comic_id": comic.ID,
    "title":    comic.Title,
  })
  s.hub.Broadcast(sse.SSEMessage{
    Channel: sse.JobChannel(job.ID),
    Event:   sse.SSEEventComicCompleted,
    Data: map[string]any{
      "comic_id": comic.ID,
      "job_id":   job.ID,
    },
  })

  jobLog.Info("Comic generation completed", "panels", len(panels))
}

// advance moves the job and its comic to the next stage and emits a
// progress event.
func (s *comicGenerationService) advance(ctx context.Context, job *types.GenerationJob, comicID uuid.UUID, status types.ComicStatus, stage string, step int, message string) error {
  if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
    "status":       status,
    "stage":        stage,
    "current_step": step,
    "message":      message,
  }); err != nil {
    return err
  }
  if err := s.comicRepo.UpdateFields(ctx, nil, comicID, map[string]interface{}{
    "status": status,
  }); err != nil {
    return err
  }
  s.hub.Broadcast(sse.SSEMessage{
    Channel: sse.JobChannel(job.ID),
    Event:   sse.SSEEventComicProgress,
    Data: map[string]any{
      "job_id":       job.ID,
      "status":       status,
      "stage":        stage,
      "current_step": step,
      "total_steps":  job.TotalSteps,
      "message":      message,
    },
  })
  return nil
}

func (s *comicGenerationService) failJob(ctx context.Context, job *types.GenerationJob, cause error) {
  s.log.Error("Generation job failed", "jobID", job.ID, "comicID", job.ComicID, "error", cause)

  if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
    "status":  types.StatusFailed,
    "message": "Comic generation failed: " + cause.Error(),
    "error":   cause.Error(),
  }); err != nil {
    s.log.Error("Failed to mark job failed", "jobID", job.ID, "error", err)
  }
  if err := s.comicRepo.UpdateFields(ctx, nil, job.ComicID, map[string]interface{}{
    "status": types.StatusFailed,
  }); err != nil {
    s.log.Error("Failed to mark comic failed", "comicID", job.ComicID, "error", err)
  }

  s.notify(ctx, job, nil, "comic_failed", map[string]any{
    "comic_id": job.ComicID,
    "error":    cause.Error(),
  })
  s.hub.Broadcast(sse.SSEMessage{
    Channel: sse.JobChannel(job.ID),
    Event:   sse.SSEEventComicFailed,
    Data: map[string]any{
      "job_id":   job.ID,
      "comic_id": job.ComicID,
      "error":    cause.Error(),
    },
  })
}

func (s *comicGenerationService) notify(ctx context.Context, job *types.GenerationJob, comic *types.Comic, kind string, payload map[string]any) {
  if job.UserID == nil {
    return
  }
  raw, err := json.Marshal(payload)
  if err != nil {
    s.log.Warn("Failed to encode notification payload", "error", err)
    return
  }
  n := &types.Notification{
    ID:      uuid.New(),
    UserID:  *job.UserID,
    Kind:    kind,
    Payload: datatypes.JSON(raw),
  }
  if _, err := s.notificationRepo.Create(ctx, nil, []*types.Notification{n}); err != nil {
    s.log.Warn("Failed to create notification", "error", err)
    return
  }
  s.hub.Broadcast(sse.SSEMessage{
    Channel: sse.UserChannel(*job.UserID),
    Event:   sse.SSEEventNotification,
    Data:    n,
  })
}

func (s *comicGenerationService) uploadJSON(ctx context.Context, log *logger.Logger, key string, payload any) {
  raw, err := json.Marshal(payload)
  if err != nil {
    log.Warn("Failed to encode artifact", "key", key, "error", err)
    return
  }
  if err := s.bucket.UploadFile(ctx, key, "application/json", bytes.NewReader(raw)); err != nil {
    log.Warn("Failed to upload artifact (ignored)", "key", key, "error", err)
  }
}

// searchVector is the denormalized lowercase haystack the search endpoint
// matches against. Rebuilt whenever title, prompt or story change.
func searchVector(title, prompt, story string) string {
  return strings.ToLower(strings.TrimSpace(title + " " + prompt + " " + story))
}

func deriveTitle(prompt string) string {
  words := strings.Fields(prompt)
  if len(words) > 8 {
    words = words[:8]
  }
  title := strings.Join(words, " ")
  if len(title) > 80 {
    title = title[:80]
  }
  return title
}
