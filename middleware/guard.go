package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

type accessContextKey struct{}

// AccessFromContext returns the access token content stored by Guard.
func AccessFromContext(ctx context.Context) (*authcore.AccessResult, bool) {
	res, ok := ctx.Value(accessContextKey{}).(*authcore.AccessResult)
	return res, ok
}

// Guard requires a valid bearer access token.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteResponse(w, authcore.ErrorResponse(authcore.OpValidateAccess, authcore.ErrEngineNotReady, true))
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteResponse(w, authcore.ErrorResponse(authcore.OpValidateAccess, authcore.ErrMissingToken, true))
				return
			}

			res, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				WriteResponse(w, authcore.ErrorResponse(authcore.OpValidateAccess, err, true))
				return
			}

			ctx := context.WithValue(r.Context(), accessContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteResponse writes resp as JSON with its status code.
func WriteResponse(w http.ResponseWriter, resp authcore.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp)
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
