package services

import (
  "context"
  "fmt"
  "strings"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelbloom/comicforge-backend/internal/logger"
  "github.com/pixelbloom/comicforge-backend/internal/repos"
  "github.com/pixelbloom/comicforge-backend/internal/types"
)

type UserService interface {
  GetByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
  UpdateName(ctx context.Context, userID uuid.UUID, firstName, lastName string) (*types.User, error)
}

type userService struct {
  db            *gorm.DB
  log           *logger.Logger
  userRepo      repos.UserRepo
  avatarService AvatarService
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, avatarService AvatarService) UserService {
  return &userService{
    db:            db,
    log:           log.With("service", "UserService"),
    userRepo:      userRepo,
    avatarService: avatarService,
  }
}

func (us *userService) GetByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
  users, err := us.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
  if err != nil {
    return nil, err
  }
  if len(users) == 0 {
    return nil, nil
  }
  return users[0], nil
}

func (us *userService) UpdateName(ctx context.Context, userID uuid.UUID, firstName, lastName string) (*types.User, error) {
  firstName = strings.TrimSpace(firstName)
  lastName = strings.TrimSpace(lastName)
  if firstName == "" && lastName == "" {
    return nil, fmt.Errorf("nothing to update")
  }

  user, err := us.GetByID(ctx, userID)
  if err != nil {
    return nil, err
  }
  if user == nil {
    return nil, fmt.Errorf("user not found")
  }

  if firstName != "" {
    user.FirstName = firstName
  }
  if lastName != "" {
    user.LastName = lastName
  }

  err = us.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if err := us.userRepo.UpdateFields(ctx, tx, userID, map[string]interface{}{
      "first_name": user.FirstName,
      "last_name":  user.LastName,
    }); err != nil {
      return err
    }
    // Initials changed, so the avatar is regenerated.
    if us.avatarService != nil {
      if err := us.avatarService.CreateAndUploadUserAvatar(ctx, tx, user); err != nil {
        return err
      }
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  return user, nil
}
