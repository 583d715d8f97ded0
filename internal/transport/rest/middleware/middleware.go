package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avdeyev/papertrader/utils"
	"github.com/google/uuid"
)

type Session interface {
	Get(ctx context.Context, token string) (userID int64, err error)
}

// Logger assigns a request ID to every request and logs start/finish.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()

		rqID := uuid.NewString()
		ctx := utils.CtxWithRqID(r.Context(), rqID)

		slog.Info(
			"start request",
			slog.String("rqID", rqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		defer func() {
			slog.Info(
				"request finished",
				slog.String("rqID", rqID),
				slog.String("request duration", fmt.Sprintf("%.2fs", time.Since(now).Seconds())),
			)
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Auth resolves the bearer session token into a user id and rejects
// requests without a valid session.
func Auth(session Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || token == r.Header.Get("Authorization") {
				http.Error(w, `{"message":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			userID, err := session.Get(r.Context(), token)
			if err != nil {
				http.Error(w, `{"message":"invalid or expired session"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(utils.CtxWithUserID(r.Context(), userID)))
		})
	}
}
