package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	appI18n "github.com/pavelanni/journeys/internal/i18n"
	"github.com/pavelanni/journeys/internal/model"
)

// Claims are the bearer token claims: sub is the user, plant is the tenant.
type Claims struct {
	Plant string `json:"plant"`
	jwt.RegisteredClaims
}

func (h *Handler) parseToken(tokenStr string) (*Claims, error) {
	c := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, c, func(*jwt.Token) (any, error) {
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// requireLearner is middleware that checks for a valid bearer token and puts
// the learner it names into the request context.
func (h *Handler) requireLearner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeUnauthorized(w, r)
			return
		}
		c, err := h.parseToken(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			slog.Debug("rejected bearer token", "error", err)
			writeUnauthorized(w, r)
			return
		}
		if c.Subject == "" || c.Plant == "" {
			slog.Debug("bearer token without subject or plant")
			writeUnauthorized(w, r)
			return
		}

		ctx := model.ContextWithLearner(r.Context(), &model.Learner{ID: c.Subject, PlantID: c.Plant})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="journeys"`)
	writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: appI18n.T(r.Context(), "UNAUTHORIZED")})
}
