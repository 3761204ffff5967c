package services

import (
  "bytes"
  "context"
  "fmt"
  "image/color"
  "math/rand"
  "os"
  "strings"
  "time"

  "github.com/fogleman/gg"
  "github.com/golang/freetype/truetype"
  "golang.org/x/image/font"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/repos"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

type AvatarService interface {
  CreateAndUploadUserAvatar(ctx context.Context, tx *gorm.DB, user *types.User) error
  GenerateUserAvatar(user *types.User) (bytes.Buffer, error)
}

type avatarService struct {
  log           *logger.Logger
  userRepo      repos.UserRepo
  bucketService BucketService

  bgColors []color.NRGBA
  fontFace font.Face
}

// defaultAvatarPalette mirrors the frontend's accent colors.
var defaultAvatarPalette = []color.NRGBA{
  {R: 0xE5, G: 0x39, B: 0x35, A: 0xFF},
  {R: 0xFB, G: 0x8C, B: 0x00, A: 0xFF},
  {R: 0x43, G: 0xA0, B: 0x47, A: 0xFF},
  {R: 0x1E, G: 0x88, B: 0xE5, A: 0xFF},
  {R: 0x8E, G: 0x24, B: 0xAA, A: 0xFF},
  {R: 0x00, G: 0x89, B: 0x7B, A: 0xFF},
  {R: 0x6D, G: 0x4C, B: 0x41, A: 0xFF},
}

func NewAvatarService(log *logger.Logger, userRepo repos.UserRepo, bucketService BucketService) (AvatarService, error) {
  serviceLog := log.With("service", "AvatarService")

  fontPath := os.Getenv("AVATAR_FONT")
  if strings.TrimSpace(fontPath) == "" {
    return nil, fmt.Errorf("env var AVATAR_FONT is empty")
  }
  serviceLog.Info("Loading avatar font", "font", fontPath)

  face, err := loadFontFace(fontPath, 206)
  if err != nil {
    return nil, fmt.Errorf("could not load avatar font: %w", err)
  }

  return &avatarService{
    log:           serviceLog,
    userRepo:      userRepo,
    bucketService: bucketService,
    bgColors:      defaultAvatarPalette,
    fontFace:      face,
  }, nil
}

func (as *avatarService) CreateAndUploadUserAvatar(ctx context.Context, tx *gorm.DB, user *types.User) error {
  buf, err := as.GenerateUserAvatar(user)
  if err != nil {
    return err
  }

  oldKey := strings.TrimSpace(user.AvatarBucketKey)

  // Versioned key so CDN caches never serve a stale avatar.
  newKey := fmt.Sprintf("avatars/%s/%d.png", user.ID.String(), time.Now().UnixNano())

  if err := as.bucketService.UploadFile(ctx, newKey, "image/png", bytes.NewReader(buf.Bytes())); err != nil {
    return fmt.Errorf("failed to upload user avatar: %w", err)
  }

  user.AvatarBucketKey = newKey
  user.AvatarURL = as.bucketService.GetPublicURL(newKey)

  if err := as.userRepo.UpdateFields(ctx, tx, user.ID, map[string]interface{}{
    "avatar_bucket_key": user.AvatarBucketKey,
    "avatar_url":        user.AvatarURL,
    "avatar_color":      user.AvatarColor,
  }); err != nil {
    return fmt.Errorf("failed to persist avatar fields: %w", err)
  }

  // Best-effort delete old object after the new one is live.
  if oldKey != "" && oldKey != newKey {
    if err := as.bucketService.DeleteFile(ctx, oldKey); err != nil {
      as.log.Warn("failed to delete old avatar (ignored)", "oldKey", oldKey, "error", err)
    }
  }

  return nil
}

func (as *avatarService) GenerateUserAvatar(user *types.User) (bytes.Buffer, error) {
  const size = 512
  as.ensureUserAvatarColor(user)

  dc := gg.NewContext(size, size)

  dc.DrawCircle(float64(size)/2, float64(size)/2, float64(size)/2)
  dc.Clip()

  base := as.pickColor(user.AvatarColor)
  dc.SetColor(base)
  dc.DrawRectangle(0, 0, float64(size), float64(size))
  dc.Fill()

  initials := computeInitials(user.FirstName, user.LastName)

  dc.SetFontFace(as.fontFace)
  tw, th := dc.MeasureString(initials)
  cx, cy := float64(size)/2, float64(size)/2

  dc.SetColor(color.White)
  dc.DrawString(initials, cx-(tw/2)+5, cy+(th/2)-10)

  var buf bytes.Buffer
  if err := dc.EncodePNG(&buf); err != nil {
    return buf, fmt.Errorf("failed to encode PNG: %w", err)
  }
  return buf, nil
}

func (as *avatarService) ensureUserAvatarColor(user *types.User) {
  if strings.TrimSpace(user.AvatarColor) != "" {
    for _, c := range as.bgColors {
      if nrgbaToHex(c) == strings.ToUpper(strings.TrimSpace(user.AvatarColor)) {
        return
      }
    }
  }
  pick := as.bgColors[rand.Intn(len(as.bgColors))]
  user.AvatarColor = nrgbaToHex(pick)
}

func (as *avatarService) pickColor(hexStr string) color.NRGBA {
  h := strings.ToUpper(strings.TrimSpace(hexStr))
  for _, c := range as.bgColors {
    if nrgbaToHex(c) == h {
      return c
    }
  }
  return as.bgColors[rand.Intn(len(as.bgColors))]
}

func nrgbaToHex(c color.NRGBA) string {
  return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func computeInitials(first, last string) string {
  fInit := "?"
  if len(first) > 0 {
    fInit = strings.ToUpper(first[:1])
  }
  lInit := "?"
  if len(last) > 0 {
    lInit = strings.ToUpper(last[:1])
  }
  return fInit + lInit
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
  fontBytes, err := os.ReadFile(fontPath)
  if err != nil {
    return nil, fmt.Errorf("failed to read font file: %w", err)
  }
  parsedFont, err := truetype.Parse(fontBytes)
  if err != nil {
    return nil, fmt.Errorf("failed to parse TTF: %w", err)
  }
  face := truetype.NewFace(parsedFont, &truetype.Options{
    Size:    size,
    DPI:     72,
    Hinting: font.HintingNone,
  })
  return face, nil
}
