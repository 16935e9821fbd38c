package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/userimport/internal/core"
)

// withImportMetadata tags ctx with the client IP and import source so the
// importer's log lines can be traced back to a caller.
func withImportMetadata(ctx context.Context, r *http.Request, source string) context.Context {
	ctx = core.ContextWithClientIP(ctx, clientIP(r)) // RemoteAddr already resolved by TrustedRealIP
	return core.ContextWithSource(ctx, importSource+":"+source)
}
