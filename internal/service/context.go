package service

import "context"

type authCtxKey struct{}

func WithAuthContext(ctx context.Context, a AuthContext) context.Context {
	return context.WithValue(ctx, authCtxKey{}, a)
}

func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	a, ok := ctx.Value(authCtxKey{}).(AuthContext)
	return a, ok
}
