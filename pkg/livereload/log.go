package livereload

import (
	"net/http"

	"github.com/aidarkhanov/nanoid"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
)

// logMiddleware attaches a request-scoped logger carrying a request ID.
func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		logger := buildsys.Log(r.Context()).With().Str("req", nanoid.New()).Logger()
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")

		next.ServeHTTP(rw, r.WithContext(buildsys.WithLogger(r.Context(), &logger)))
	})
}
