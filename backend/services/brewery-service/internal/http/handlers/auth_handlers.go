package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/service"
)

// NewRegisterHandler returns HTTP handler for POST /register.
func NewRegisterHandler(authService *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Email    string  `json:"email"`
		Username string  `json:"username"`
		Password string  `json:"password"`
		FullName *string `json:"full_name"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
			return
		}

		user, err := authService.Register(r.Context(), service.RegisterInput{
			Email:    req.Email,
			Username: req.Username,
			Password: req.Password,
			FullName: req.FullName,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidInput):
				writeError(w, http.StatusUnprocessableEntity, err.Error())
			case errors.Is(err, service.ErrEmailInUse):
				writeError(w, http.StatusBadRequest, "Email already registered")
			case errors.Is(err, service.ErrUsernameTaken):
				writeError(w, http.StatusBadRequest, "Username already taken")
			default:
				logger.Error("failed to register user", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to create user")
			}
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}

// NewLoginHandler handles POST /login.
func NewLoginHandler(authService *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	type response struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
			return
		}

		token, _, err := authService.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "Incorrect username or password")
				return
			}
			logger.Error("failed to login", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to login")
			return
		}

		writeJSON(w, http.StatusOK, response{
			AccessToken: token,
			TokenType:   "bearer",
		})
	}
}

// NewUserInfoHandler returns GET /user_info handler.
func NewUserInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
