package bidding

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CallerHeader carries the hex address of the identity performing a request.
// Authenticating that identity is the job of the gateway in front of us.
const CallerHeader = "X-Caller-Address"

func callerFrom(r *http.Request) (common.Address, error) {
	h := strings.TrimSpace(r.Header.Get(CallerHeader))
	if !common.IsHexAddress(h) {
		return common.Address{}, ErrMissingCaller
	}
	addr := common.HexToAddress(h)
	if addr == (common.Address{}) {
		return common.Address{}, ErrMissingCaller
	}
	return addr, nil
}

// RequireAPIKey rejects requests that do not present key as a Bearer token or
// X-API-Key header. An empty key disables the check.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Key")
			if got == "" {
				got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				writeError(w, "invalid or missing API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
