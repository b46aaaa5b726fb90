package globals

import (
	"context"

	"parkpro-backend/internal/service"
)

type key struct{}

type Value struct {
	Service *service.Service
	// Email is the account commands act for.
	Email string
}

func Set(ctx context.Context, value *Value) context.Context {
	return context.WithValue(ctx, key{}, value)
}

func Get(ctx context.Context) *Value {
	return ctx.Value(key{}).(*Value)
}
