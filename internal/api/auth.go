package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const tokenTTL = 24 * time.Hour

type Claims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.config.OAuthEnabled() {
		writeError(w, http.StatusServiceUnavailable, "discord login is not configured")
		return
	}
	state := generateRandomString(32)
	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": a.oauthConfig.AuthCodeURL(state),
		"state":    state,
	})
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !a.config.OAuthEnabled() {
		writeError(w, http.StatusServiceUnavailable, "discord login is not configured")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	token, err := a.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		a.logger.Warn("token exchange failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}

	user, err := a.discord.User(r.Context(), token.AccessToken)
	if err != nil {
		a.logger.Warn("failed to get discord user", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to get user")
		return
	}

	signed, err := a.issueToken(user, token.AccessToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":    signed,
		"user_id":  user.ID,
		"username": user.DisplayName(),
	})
}

func (a *API) issueToken(user *DiscordUser, accessToken string) (string, error) {
	now := a.now()
	claims := &Claims{
		UserID:      user.ID,
		Username:    user.DisplayName(),
		AccessToken: accessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   user.ID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return a.jwtSecret, nil
		})

		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
