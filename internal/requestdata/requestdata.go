package requestdata

import (
  "context"

  "github.com/google/uuid"
)

type contextKey struct{}

type RequestData struct {
  TokenString  string
  RefreshToken string
  UserID       uuid.UUID
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
  return context.WithValue(ctx, contextKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
  rd, _ := ctx.Value(contextKey{}).(*RequestData)
  return rd
}
