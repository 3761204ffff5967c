package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pixelbloom/comicforge-backend/internal/logger"
	"github.com/pixelbloom/comicforge-backend/internal/repos"
	"github.com/pixelbloom/comicforge-backend/internal/sse"
	"github.com/pixelbloom/comicforge-backend/internal/types"
)

// ---- in-memory fakes ----

type fakeComicRepo struct {
	mu     sync.Mutex
	comics map[uuid.UUID]*types.Comic
}

func newFakeComicRepo() *fakeComicRepo {
	return &fakeComicRepo{comics: make(map[uuid.UUID]*types.Comic)}
}

func (f *fakeComicRepo) Create(ctx context.Context, tx *gorm.DB, comics []*types.Comic) ([]*types.Comic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range comics {
		f.comics[c.ID] = c
	}
	return comics, nil
}

func (f *fakeComicRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Comic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Comic
	for _, id := range ids {
		if c, ok := f.comics[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeComicRepo) GetByIDWithCreator(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Comic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comics[id], nil
}

func (f *fakeComicRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Comic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comics[id], nil
}

func (f *fakeComicRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comics[id]
	if !ok {
		return errors.New("comic not found")
	}
	for k, v := range updates {
		switch k {
		case "status":
			c.Status = v.(types.ComicStatus)
		case "story_text":
			c.StoryText = v.(string)
		case "thumbnail_url":
			c.ThumbnailURL = v.(string)
		case "audio_url":
			c.AudioURL = v.(string)
		case "metadata":
			c.Metadata = v.(datatypes.JSON)
		case "is_deleted":
			c.IsDeleted = v.(bool)
		}
	}
	return nil
}

func (f *fakeComicRepo) IncrementCounter(ctx context.Context, tx *gorm.DB, id uuid.UUID, column string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comics[id]
	if !ok {
		return errors.New("comic not found")
	}
	switch column {
	case "like_count":
		c.LikeCount += delta
		if c.LikeCount < 0 {
			c.LikeCount = 0
		}
	case "view_count":
		c.ViewCount += delta
	}
	return nil
}

func (f *fakeComicRepo) Search(ctx context.Context, tx *gorm.DB, filter repos.ComicFilter) ([]*types.Comic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Comic
	for _, c := range f.comics {
		if c.IsDeleted {
			continue
		}
		if filter.ComicID != uuid.Nil && c.ID != filter.ComicID {
			continue
		}
		if filter.UserID != uuid.Nil && (c.UserID == nil || *c.UserID != filter.UserID) {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(c.Title+" "+c.Prompt), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
func (f *fakeComicRepo) RandomSample(ctx context.Context, tx *gorm.DB, n int) ([]*types.Comic, error) {
	return nil, nil
}
func (f *fakeComicRepo) TopByViews(ctx context.Context, tx *gorm.DB, n int) ([]*types.Comic, error) {
	return nil, nil
}
func (f *fakeComicRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error) {
	return nil, nil
}
func (f *fakeComicRepo) ListLikedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error) {
	return nil, nil
}
func (f *fakeComicRepo) ListFavoritedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error) {
	return nil, nil
}
func (f *fakeComicRepo) ListTrashedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Comic, error) {
	return nil, nil
}

type fakePanelRepo struct {
	mu     sync.Mutex
	panels []*types.Panel
}

func (f *fakePanelRepo) Create(ctx context.Context, tx *gorm.DB, panels []*types.Panel) ([]*types.Panel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panels = append(f.panels, panels...)
	return panels, nil
}

func (f *fakePanelRepo) GetByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) ([]*types.Panel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Panel
	for _, p := range f.panels {
		if p.ComicID == comicID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePanelRepo) DeleteByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) error {
	return nil
}

type jobUpdate struct {
	Status types.ComicStatus
	Stage  string
	Step   int
}

type fakeJobRepo struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*types.GenerationJob
	updates []jobUpdate
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*types.GenerationJob)}
}

func (f *fakeJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.GenerationJob) ([]*types.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return jobs, nil
}

func (f *fakeJobRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.GenerationJob
	for _, id := range ids {
		if j, ok := f.jobs[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) GetLatestByComicID(ctx context.Context, tx *gorm.DB, comicID uuid.UUID) (*types.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ComicID == comicID {
			return j, nil
		}
	}
	return nil, nil
}

func (f *fakeJobRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.GenerationJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return errors.New("job not found")
	}
	var rec jobUpdate
	touched := false
	for k, v := range updates {
		switch k {
		case "status":
			j.Status = v.(types.ComicStatus)
			rec.Status = j.Status
			touched = true
		case "stage":
			j.Stage = v.(string)
			rec.Stage = j.Stage
		case "current_step":
			j.CurrentStep = v.(int)
			rec.Step = j.CurrentStep
		case "message":
			j.Message = v.(string)
		case "error":
			j.Error = v.(string)
		case "story":
			j.Story = v.(string)
		case "panels":
			j.Panels = v.(datatypes.JSON)
		}
	}
	if touched {
		f.updates = append(f.updates, rec)
	}
	return nil
}

func (f *fakeJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error { return nil }

func (f *fakeJobRepo) FailStale(ctx context.Context, tx *gorm.DB, staleAfter time.Duration) (int64, error) {
	return 0, nil
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []*types.Notification
}

func (f *fakeNotificationRepo) Create(ctx context.Context, tx *gorm.DB, ns []*types.Notification) ([]*types.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, ns...)
	return ns, nil
}

func (f *fakeNotificationRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, unreadOnly bool) ([]*types.Notification, error) {
	return nil, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, tx *gorm.DB, id, userID uuid.UUID) error {
	return nil
}

type fakeAI struct {
	story      string
	breakdown  []PanelBreakdown
	imageErrAt int // 1-based panel whose image generation fails, 0 = never

	gotCharacters []string
}

func (f *fakeAI) GenerateStory(ctx context.Context, prompt, style string, characterNames []string, numPanels int) (string, error) {
	f.gotCharacters = characterNames
	return f.story, nil
}

func (f *fakeAI) BreakStoryIntoPanels(ctx context.Context, story string, numPanels int) ([]PanelBreakdown, error) {
	return f.breakdown, nil
}

func (f *fakeAI) GenerateImage(ctx context.Context, description, style string) ([]byte, error) {
	var idx int
	_, _ = fmt.Sscanf(description, "scene %d", &idx)
	if f.imageErrAt != 0 && idx == f.imageErrAt {
		return nil, errors.New("image model unavailable")
	}
	// Later panels finish first so ordering cannot ride on completion order.
	time.Sleep(time.Duration(10-idx) * 2 * time.Millisecond)
	return []byte(fmt.Sprintf("png-bytes-%d", idx)), nil
}

func (f *fakeAI) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	return []byte("mp3-bytes"), nil
}

type fakeBucket struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{uploads: make(map[string][]byte)}
}

func (f *fakeBucket) UploadFile(ctx context.Context, key, contentType string, file io.Reader) error {
	raw, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = raw
	return nil
}

func (f *fakeBucket) DeleteFile(ctx context.Context, key string) error { return nil }

func (f *fakeBucket) GetPublicURL(key string) string { return "https://cdn.test/" + key }

// ---- harness ----

type genHarness struct {
	svc       *comicGenerationService
	comicRepo *fakeComicRepo
	panelRepo *fakePanelRepo
	jobRepo   *fakeJobRepo
	noteRepo  *fakeNotificationRepo
	bucket    *fakeBucket
}

func newGenHarness(t *testing.T, ai OpenAIClient) *genHarness {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	h := &genHarness{
		comicRepo: newFakeComicRepo(),
		panelRepo: &fakePanelRepo{},
		jobRepo:   newFakeJobRepo(),
		noteRepo:  &fakeNotificationRepo{},
		bucket:    newFakeBucket(),
	}
	h.svc = &comicGenerationService{
		log:              log,
		comicRepo:        h.comicRepo,
		panelRepo:        h.panelRepo,
		jobRepo:          h.jobRepo,
		notificationRepo: h.noteRepo,
		ai:               ai,
		bucket:           h.bucket,
		hub:              sse.NewSSEHub(log),
		imageConcurrency: 4,
	}
	return h
}

func (h *genHarness) seed(t *testing.T, numPanels int) (*types.Comic, *types.GenerationJob) {
	t.Helper()
	userID := uuid.New()
	opts, _ := json.Marshal(comicOptions{NumPanels: numPanels, Style: "noir"})
	comic := &types.Comic{
		ID:      uuid.New(),
		UserID:  &userID,
		Title:   "Test Comic",
		Prompt:  "a test prompt",
		Style:   "noir",
		Status:  types.StatusPending,
		Options: datatypes.JSON(opts),
	}
	job := &types.GenerationJob{
		ID:         uuid.New(),
		ComicID:    comic.ID,
		UserID:     &userID,
		Status:     types.StatusGeneratingStory,
		Stage:      "story",
		TotalSteps: 5,
	}
	h.comicRepo.comics[comic.ID] = comic
	h.jobRepo.jobs[job.ID] = job
	return comic, job
}

func breakdownOf(n int) []PanelBreakdown {
	out := make([]PanelBreakdown, n)
	for i := range out {
		out[i] = PanelBreakdown{
			ImageDescription: fmt.Sprintf("scene %d", i+1),
			PanelText:        fmt.Sprintf("caption %d", i+1),
		}
	}
	return out
}

// ---- tests ----

func TestProcessJobHappyPath(t *testing.T) {
	ai := &fakeAI{story: "A story about robots.", breakdown: breakdownOf(3)}
	h := newGenHarness(t, ai)
	comic, job := h.seed(t, 3)

	h.svc.processJob(context.Background(), job)

	if comic.Status != types.StatusCompleted {
		t.Fatalf("comic status: got %q want %q (job error: %s)", comic.Status, types.StatusCompleted, job.Error)
	}
	if comic.StoryText != ai.story {
		t.Fatalf("story not persisted on comic")
	}
	if job.Status != types.StatusCompleted || job.CurrentStep != 5 {
		t.Fatalf("job: status=%q step=%d", job.Status, job.CurrentStep)
	}
	if job.Message != "Comic generation completed!" {
		t.Fatalf("job message: %q", job.Message)
	}

	// Status walks the stages in order.
	wantStatuses := []types.ComicStatus{
		types.StatusGeneratingStory,
		types.StatusGeneratingPanels,
		types.StatusGeneratingImages,
		types.StatusGeneratingAudio,
		types.StatusGeneratingAudio,
		types.StatusCompleted,
	}
	if len(h.jobRepo.updates) != len(wantStatuses) {
		t.Fatalf("job updates: got %d want %d: %+v", len(h.jobRepo.updates), len(wantStatuses), h.jobRepo.updates)
	}
	for i, want := range wantStatuses {
		if h.jobRepo.updates[i].Status != want {
			t.Fatalf("update %d: got %q want %q", i, h.jobRepo.updates[i].Status, want)
		}
	}

	// Panels keep story order even though image completion is shuffled.
	panels, _ := h.panelRepo.GetByComicID(context.Background(), nil, comic.ID)
	if len(panels) != 3 {
		t.Fatalf("panels: got %d want 3", len(panels))
	}
	for i, p := range panels {
		if p.Sequence != i+1 {
			t.Fatalf("panel %d sequence: got %d", i, p.Sequence)
		}
		if p.TextContent != fmt.Sprintf("caption %d", i+1) {
			t.Fatalf("panel %d text: %q", i, p.TextContent)
		}
		wantKey := fmt.Sprintf("comics/%s/images/panel_%d.png", job.ID, i+1)
		if p.ImageURL != "https://cdn.test/"+wantKey {
			t.Fatalf("panel %d url: %q", i, p.ImageURL)
		}
		if got := string(h.bucket.uploads[wantKey]); got != fmt.Sprintf("png-bytes-%d", i+1) {
			t.Fatalf("panel %d bytes mismatched: %q", i, got)
		}
	}

	if comic.ThumbnailURL != panels[0].ImageURL {
		t.Fatalf("thumbnail: %q", comic.ThumbnailURL)
	}

	audioKey := fmt.Sprintf("comics/%s/audio/voiceover.mp3", job.ID)
	if string(h.bucket.uploads[audioKey]) != "mp3-bytes" {
		t.Fatalf("voiceover missing")
	}
	if comic.AudioURL != "https://cdn.test/"+audioKey {
		t.Fatalf("audio url: %q", comic.AudioURL)
	}

	for _, key := range []string{
		fmt.Sprintf("comics/%s/temp/story.json", job.ID),
		fmt.Sprintf("comics/%s/output/final_output.json", job.ID),
	} {
		if _, ok := h.bucket.uploads[key]; !ok {
			t.Fatalf("missing artifact %s", key)
		}
	}

	if len(h.noteRepo.notifications) != 1 || h.noteRepo.notifications[0].Kind != "comic_completed" {
		t.Fatalf("notifications: %+v", h.noteRepo.notifications)
	}
}

func TestProcessJobImageFailureFailsWholeJob(t *testing.T) {
	ai := &fakeAI{story: "A story.", breakdown: breakdownOf(4), imageErrAt: 2}
	h := newGenHarness(t, ai)
	comic, job := h.seed(t, 4)

	h.svc.processJob(context.Background(), job)

	if job.Status != types.StatusFailed {
		t.Fatalf("job status: %q", job.Status)
	}
	if comic.Status != types.StatusFailed {
		t.Fatalf("comic status: %q", comic.Status)
	}
	if !strings.Contains(job.Error, "panel 2") {
		t.Fatalf("job error should name the failing panel: %q", job.Error)
	}

	// No partial comics.
	panels, _ := h.panelRepo.GetByComicID(context.Background(), nil, comic.ID)
	if len(panels) != 0 {
		t.Fatalf("expected no panels, got %d", len(panels))
	}

	if len(h.noteRepo.notifications) != 1 || h.noteRepo.notifications[0].Kind != "comic_failed" {
		t.Fatalf("notifications: %+v", h.noteRepo.notifications)
	}
}

func TestProcessJobTruncatesExtraPanels(t *testing.T) {
	ai := &fakeAI{story: "A story.", breakdown: breakdownOf(5)}
	h := newGenHarness(t, ai)
	comic, job := h.seed(t, 3)

	h.svc.processJob(context.Background(), job)

	if comic.Status != types.StatusCompleted {
		t.Fatalf("comic status: %q (job error: %s)", comic.Status, job.Error)
	}
	panels, _ := h.panelRepo.GetByComicID(context.Background(), nil, comic.ID)
	if len(panels) != 3 {
		t.Fatalf("expected breakdown truncated to 3 panels, got %d", len(panels))
	}
}

func TestProcessJobPassesCharacterNamesToStory(t *testing.T) {
	body := `{"prompt":"a heist","style":"noir","num_panels":3,"character_names":["Ava","Rex"]}`
	var req GenerateComicRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if len(req.CharacterNames) != 2 || req.CharacterNames[0] != "Ava" {
		t.Fatalf("character_names not decoded: %+v", req.CharacterNames)
	}

	ai := &fakeAI{story: "A heist story.", breakdown: breakdownOf(3)}
	h := newGenHarness(t, ai)
	comic, job := h.seed(t, 3)
	opts, _ := json.Marshal(comicOptions{NumPanels: 3, Style: "noir", CharacterNames: req.CharacterNames})
	comic.Options = datatypes.JSON(opts)

	h.svc.processJob(context.Background(), job)

	if comic.Status != types.StatusCompleted {
		t.Fatalf("comic status: %q (job error: %s)", comic.Status, job.Error)
	}
	if len(ai.gotCharacters) != 2 || ai.gotCharacters[0] != "Ava" || ai.gotCharacters[1] != "Rex" {
		t.Fatalf("story generation did not receive character names: %+v", ai.gotCharacters)
	}
}

func TestProcessJobZeroPanelsFailsJob(t *testing.T) {
	ai := &fakeAI{story: "A story.", breakdown: nil}
	h := newGenHarness(t, ai)
	comic, job := h.seed(t, 3)

	h.svc.processJob(context.Background(), job)

	if job.Status != types.StatusFailed {
		t.Fatalf("job status: %q", job.Status)
	}
	if comic.Status != types.StatusFailed {
		t.Fatalf("comic status: %q", comic.Status)
	}
	if !strings.Contains(job.Error, "no panels") {
		t.Fatalf("job error: %q", job.Error)
	}
	if !strings.Contains(job.Message, job.Error) {
		t.Fatalf("failure message should carry the error text: %q", job.Message)
	}
}

func TestProcessJobWithoutBucketFailsJob(t *testing.T) {
	ai := &fakeAI{story: "A story.", breakdown: breakdownOf(2)}
	h := newGenHarness(t, ai)
	comic, job := h.seed(t, 2)
	h.svc.bucket = nil

	h.svc.processJob(context.Background(), job)

	if job.Status != types.StatusFailed {
		t.Fatalf("job status: %q", job.Status)
	}
	if comic.Status != types.StatusFailed {
		t.Fatalf("comic status: %q", comic.Status)
	}
	if !strings.Contains(job.Error, "storage") {
		t.Fatalf("job error: %q", job.Error)
	}
}

type panickyAI struct {
	fakeAI
}

func (p *panickyAI) GenerateStory(ctx context.Context, prompt, style string, characterNames []string, numPanels int) (string, error) {
	panic("model client blew up")
}

func TestRunJobRecoversFromPanic(t *testing.T) {
	h := newGenHarness(t, &panickyAI{})
	comic, job := h.seed(t, 2)

	h.svc.runJob(context.Background(), job)

	if job.Status != types.StatusFailed {
		t.Fatalf("job status: %q", job.Status)
	}
	if comic.Status != types.StatusFailed {
		t.Fatalf("comic status: %q", comic.Status)
	}
	if !strings.Contains(job.Error, "panic") || !strings.Contains(job.Error, "model client blew up") {
		t.Fatalf("job error: %q", job.Error)
	}
}

func TestEnqueueValidation(t *testing.T) {
	h := newGenHarness(t, &fakeAI{})

	if _, _, err := h.svc.Enqueue(context.Background(), nil, GenerateComicRequest{Prompt: "   "}); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
	if _, _, err := h.svc.Enqueue(context.Background(), nil, GenerateComicRequest{Prompt: "ok", NumPanels: 21}); err == nil {
		t.Fatalf("expected error for num_panels > 20")
	}
	if _, _, err := h.svc.Enqueue(context.Background(), nil, GenerateComicRequest{Prompt: "ok", NumPanels: -1}); err == nil {
		t.Fatalf("expected error for negative num_panels")
	}
}
