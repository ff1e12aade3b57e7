package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jercomio/LuT-1/internal/auth"
)

type credentialKey struct{}

func withCredential(ctx context.Context, c auth.Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, c)
}

func credentialFromContext(ctx context.Context) (auth.Credential, bool) {
	c, ok := ctx.Value(credentialKey{}).(auth.Credential)
	return c, ok
}

// newAuthMiddleware runs the gate in front of every API route except health
// and the OpenAPI document, so no handler sees an unauthorized request.
func newAuthMiddleware(basePath string, gate auth.Gate) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	specPath := path.Join(basePath, "openapi.json")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := req.URL.Path
			if p != basePath && !strings.HasPrefix(p, basePath+"/") {
				next.ServeHTTP(w, req)
				return
			}
			if p == healthPath || p == specPath {
				next.ServeHTTP(w, req)
				return
			}
			cred, err := gate.Authorize(req.Header.Get("Authorization"))
			if err != nil {
				respondStatusError(w, handleError(req.Context(), err))
				return
			}
			next.ServeHTTP(w, req.WithContext(withCredential(req.Context(), cred)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
