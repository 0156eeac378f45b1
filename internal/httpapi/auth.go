package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/carbase/carbase/internal/common/auth"
	"github.com/carbase/carbase/internal/common/config"
	"github.com/carbase/carbase/internal/common/logger"
	"github.com/carbase/carbase/internal/user"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthHandler 注册/登录接口。
type AuthHandler struct {
	repo *user.Repo
	cfg  config.AuthConfig
	log  logger.Logger
}

func NewAuthHandler(repo *user.Repo, cfg config.AuthConfig, log logger.Logger) *AuthHandler {
	return &AuthHandler{repo: repo, cfg: cfg, log: log}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type registerResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 || len(req.Username) > 64 {
		writeError(w, http.StatusBadRequest, "username must be 3-64 characters")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	salt, err := user.GenerateSaltHex()
	if err != nil {
		h.log.Errorf("generate salt: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	hash, err := user.HashPassword(req.Password, salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid password")
		return
	}

	u := &user.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		PasswordSalt: salt,
		Email:        strings.TrimSpace(req.Email),
		Roles:        user.RolesJoin([]string{"user"}),
	}
	if err := h.repo.Create(r.Context(), u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeError(w, http.StatusConflict, "username already exists")
			return
		}
		h.log.Errorf("create user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{ID: u.ID, Username: u.Username})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	u, err := h.repo.FindByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.log.Errorf("find user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !user.VerifyPassword(req.Password, u.PasswordSalt, u.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := auth.GenerateAccessToken(h.cfg, u.ID, u.RolesSlice(), h.cfg.TokenTTL())
	if err != nil {
		h.log.Errorf("sign token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Unix(),
	})
}
