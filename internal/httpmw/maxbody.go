package httpmw

import "net/http"

// MaxBody caps request bodies at n bytes; reading past the cap fails and
// net/http answers 413. The site only serves GET/HEAD so the cap is small.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
