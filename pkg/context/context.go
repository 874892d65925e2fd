package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	UserIDKey    = ContextKey("X-User-Id")
	HandleKey    = ContextKey("X-Player-Handle")
	SyncIDKey    = ContextKey("X-Sync-Id")
)

func set(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return set(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return set(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return get(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return set(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return get(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return set(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return get(ctx, RemoteIPKey)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return set(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return get(ctx, UserIDKey)
}

// SetHandle tags the context with the player currently being synced.
func SetHandle(ctx context.Context, handle string) context.Context {
	return set(ctx, HandleKey, handle)
}

func GetHandle(ctx context.Context) string {
	return get(ctx, HandleKey)
}

// SetSyncID tags the context with the id of the running sync.
func SetSyncID(ctx context.Context, syncID string) context.Context {
	return set(ctx, SyncIDKey, syncID)
}

func GetSyncID(ctx context.Context) string {
	return get(ctx, SyncIDKey)
}
