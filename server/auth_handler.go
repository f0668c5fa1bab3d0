package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"voxpro/core/auth"
	"voxpro/logger"
	"voxpro/model"
	"voxpro/repository"
)

type contextKey string

const (
	ctxUserID   contextKey = "userID"
	ctxUsername contextKey = "username"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// LoginHandler handles admin login requests
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := s.users.GetByUsername(r.Context(), req.Username)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("[Login] 用户不存在", logger.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		logger.Error("[Login] 查询用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrMalformedHash) {
			logger.Error("[Login] 密码哈希损坏", logger.String("username", req.Username), logger.ErrorField(err))
		} else {
			logger.Warn("[Login] 密码验证失败", logger.String("username", req.Username))
		}
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	logger.Info("[Login] 登录成功", logger.String("username", user.Username))
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: *user})
}

// bearerToken reads the Authorization header, falling back to ?token= for
// websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// authenticate validates the request token and returns the request with the
// user attached to its context.
func (s *Server) authenticate(r *http.Request) (*http.Request, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, err
	}
	ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
	ctx = context.WithValue(ctx, ctxUsername, claims.Username)
	return r.WithContext(ctx), nil
}

// AuthMiddleware rejects requests without a valid admin token.
func (s *Server) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authed, err := s.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, authed)
	}
}

// GetUsernameFromContext extracts the username from the request context
func GetUsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(ctxUsername).(string)
	return username, ok
}
