package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"rms/order-service/internal/models"
)

type actorContextKey struct{}

// ActorMiddleware trusts the identity headers set by the upstream auth
// gateway and rejects requests without a usable actor.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromHeaders(r)
		if !ok {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing or invalid actor")
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromHeaders(r *http.Request) (models.Actor, bool) {
	rawID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if rawID == "" {
		return models.Actor{}, false
	}
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID < 0 {
		return models.Actor{}, false
	}
	role, err := models.ParseRole(r.Header.Get("X-User-Role"))
	if err != nil {
		return models.Actor{}, false
	}
	return models.Actor{UserID: userID, Role: role}, true
}

func actorFrom(r *http.Request) models.Actor {
	actor, _ := r.Context().Value(actorContextKey{}).(models.Actor)
	return actor
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}
