package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

type ownerKey struct{}

// WithOwnerID scopes ctx to one owner's records.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// GetOwnerID reads the owner set by WithOwnerID, falling back to the
// x-owner-id metadata of an incoming gRPC call.
func GetOwnerID(ctx context.Context) string {
	if val, ok := ctx.Value(ownerKey{}).(string); ok {
		return val
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get("x-owner-id"); len(val) > 0 {
			return val[0]
		}
	}
	return ""
}
