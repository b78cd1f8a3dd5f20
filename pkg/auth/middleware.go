package auth

import (
	"net/http"
	"strings"

	apperrors "github.com/chainsafe/fusion-swap/pkg/app/errors"
	apphttp "github.com/chainsafe/fusion-swap/pkg/app/http"
)

// RequireResolver rejects requests without a valid bearer token and stores
// the token subject in the request context.
func RequireResolver(issuer *JWTIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing bearer token"))
				return
			}
			claims, err := issuer.ValidateToken(token)
			if err != nil {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithResolver(r.Context(), claims.Subject)))
		})
	}
}
