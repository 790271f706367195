package gateway

import "context"

type clientKey struct{}

func withClient(ctx context.Context, info *ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey{}, info)
}

func clientFrom(ctx context.Context) *ClientInfo {
	info, _ := ctx.Value(clientKey{}).(*ClientInfo)
	return info
}
