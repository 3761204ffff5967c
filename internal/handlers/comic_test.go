package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pixelbloom/comicforge-backend/internal/services"
	"github.com/pixelbloom/comicforge-backend/internal/types"
)

type stubExploreService struct {
	detail *services.ComicDetail
}

func (s *stubExploreService) Search(ctx context.Context, query string, userID, jobID uuid.UUID) ([]*types.Comic, error) {
	return nil, nil
}
func (s *stubExploreService) Sample(ctx context.Context) ([]*types.Comic, error)    { return nil, nil }
func (s *stubExploreService) Random(ctx context.Context) ([]*types.Comic, error)    { return nil, nil }
func (s *stubExploreService) TopViewed(ctx context.Context) ([]*types.Comic, error) { return nil, nil }
func (s *stubExploreService) MyComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error) {
	return nil, nil
}
func (s *stubExploreService) LikedComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error) {
	return nil, nil
}
func (s *stubExploreService) FavoriteComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error) {
	return nil, nil
}
func (s *stubExploreService) TrashedComics(ctx context.Context, userID uuid.UUID) ([]*types.Comic, error) {
	return nil, nil
}
func (s *stubExploreService) GetComicDetail(ctx context.Context, comicID, viewerID uuid.UUID) (*services.ComicDetail, error) {
	return s.detail, nil
}

func TestGetPanelsResponseShape(t *testing.T) {
	gin.SetMode(gin.TestMode)

	comicID := uuid.New()
	stub := &stubExploreService{detail: &services.ComicDetail{
		Comic: &types.Comic{ID: comicID, Title: "Orbit Heist"},
		Panels: []*types.Panel{
			{ID: uuid.New(), ComicID: comicID, Sequence: 1},
			{ID: uuid.New(), ComicID: comicID, Sequence: 2},
		},
	}}
	handler := NewComicHandler(nil, nil, stub)

	router := gin.New()
	router.GET("/api/v1/comics/:id/panels", handler.GetPanels)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/comics/"+comicID.String()+"/panels", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ComicInfo   *types.Comic   `json:"comic_info"`
		Panels      []*types.Panel `json:"panels"`
		TotalPanels int            `json:"total_panels"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ComicInfo == nil || resp.ComicInfo.ID != comicID {
		t.Fatalf("comic_info missing: %s", w.Body.String())
	}
	if len(resp.Panels) != 2 || resp.TotalPanels != 2 {
		t.Fatalf("panels=%d total_panels=%d", len(resp.Panels), resp.TotalPanels)
	}

	// Unknown comic yields a 404, not an empty payload.
	stub.detail = nil
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/comics/"+uuid.NewString()+"/panels", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing comic status: %d", w.Code)
	}
}
