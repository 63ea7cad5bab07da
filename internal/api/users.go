package api

import (
	"net/http"
	"time"

	"github.com/storefront/ecommerce-go-app/internal/middleware"
	"github.com/storefront/ecommerce-go-app/internal/models"
)

func (a *App) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.tokens.TTL() / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// RegisterHandler handles POST /api/users/register
func (a *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, token, err := a.userService.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a.setTokenCookie(w, token)
	writeJSON(w, http.StatusCreated, models.AuthResponse{Message: "User registered", Token: token, User: user})
}

// LoginHandler handles POST /api/users/login
func (a *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, token, err := a.userService.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a.setTokenCookie(w, token)
	writeJSON(w, http.StatusOK, models.AuthResponse{Message: "Logged in", Token: token, User: user})
}

// LogoutHandler handles POST /api/users/logout
func (a *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "Logged out")
}

// ListUsersHandler handles GET /api/users
func (a *App) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.userService.ListUsers(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUserHandler handles GET /api/users/{id}
func (a *App) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := a.userService.GetUser(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUserHandler handles PATCH /api/users/{id}
func (a *App) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req models.UpdateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := a.userService.UpdateUser(r.Context(), actor(r), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUserHandler handles DELETE /api/users/{id}
func (a *App) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	if err := a.userService.DeleteUser(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
