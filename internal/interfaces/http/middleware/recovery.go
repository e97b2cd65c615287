package middleware

import (
	"net/http"

	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// Recovery middleware перехватывает panic в обработчиках: одно упавшее
// соединение не должно ронять сервер
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					log.Error("Panic in HTTP handler", nil,
						"path", r.URL.Path,
						"panic", recovered,
					)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
