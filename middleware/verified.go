package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore"
)

// RequireVerified rejects requests from accounts whose email is not
// verified with 403. Requests that did not pass Guard get 401.
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AccessFromContext(r.Context())
		if !ok {
			WriteResponse(w, authcore.ErrorResponse(authcore.OpValidateAccess, authcore.ErrMissingToken, true))
			return
		}
		if !res.Verified {
			WriteResponse(w, authcore.Response{Status: http.StatusForbidden, Message: "Email Not Verified"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
