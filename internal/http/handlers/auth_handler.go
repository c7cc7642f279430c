// Authentication HTTP handlers.
//
//   - POST  /auth/signup   (create account, start session)
//   - POST  /auth/login    (password login)
//   - POST  /auth/google   (OAuth code exchange)
//   - POST  /auth/github   (OAuth code exchange)
//   - POST  /auth/logout   (revoke session, clear cookie)
//   - GET   /auth/me       (current user)
//   - PATCH /auth/profile  (update profile image)
//
// Successful logins set the HttpOnly "sessionId" cookie; the token never
// appears in a response body.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-intent-chat/internal/domain"
	"github.com/tbourn/go-intent-chat/internal/http/middleware"
	"github.com/tbourn/go-intent-chat/internal/services"
)

//
// DTOs
//

// SignupRequest is the JSON payload for account creation. Email format and
// name are re-checked by the service after trimming.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,max=320" example:"ada@example.com"`
	Password string `json:"password" binding:"required,min=6,max=72" example:"correct-horse"`
	Name     string `json:"name" binding:"required,max=255" example:"Ada Lovelace"`
}

// LoginRequest is the JSON payload for password login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=320" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct-horse"`
}

// OAuthRequest carries the authorization code returned by the provider.
type OAuthRequest struct {
	Code string `json:"code" binding:"required" example:"4/0AbCdEf"`
}

// ProfileRequest updates the profile image. An empty or absent value clears it.
type ProfileRequest struct {
	ProfileImage string `json:"profileImage" binding:"max=700000" example:"https://example.com/me.png"`
}

// AuthResponse is returned by every endpoint that starts a session.
type AuthResponse struct {
	Message string              `json:"message" example:"Login successful"`
	User    services.PublicUser `json:"user"`
}

// UserResponse wraps the current user.
type UserResponse struct {
	User services.PublicUser `json:"user"`
}

//
// Handlers
//

// Signup godoc
// @ID          signup
// @Summary     Create an account
// @Description Registers a user with email and password and starts a session (sets the sessionId cookie).
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SignupRequest  true  "Signup payload"
// @Success     201   {object}  handlers.AuthResponse
// @Header      201   {string}  Set-Cookie  "sessionId=…; HttpOnly; SameSite=Lax"
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409   {object}  handlers.ErrorResponse  "Email already registered"
// @Router      /auth/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if !bindJSON(c, &req, false) {
		return
	}
	res, err := h.auth.Signup(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeServiceError(c, err, false)
		return
	}
	setSessionCookie(c, h.opts.Cookie, res.Token, res.ExpiresAt)
	ok(c, http.StatusCreated, AuthResponse{Message: "User created successfully", User: res.User})
}

// Login godoc
// @ID          login
// @Summary     Log in with email and password
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid email or password"
// @Failure     429   {object}  handlers.ErrorResponse  "Too many attempts"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req, false) {
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(c, err, false)
		return
	}
	setSessionCookie(c, h.opts.Cookie, res.Token, res.ExpiresAt)
	ok(c, http.StatusOK, AuthResponse{Message: "Login successful", User: res.User})
}

// GoogleLogin godoc
// @ID          googleLogin
// @Summary     Log in with Google
// @Description Exchanges a Google authorization code, links or creates the account, and starts a session.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.OAuthRequest  true  "Authorization code"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "OAuth authentication failed"
// @Failure     500   {object}  handlers.ErrorResponse  "OAuth provider not configured"
// @Router      /auth/google [post]
func (h *Handlers) GoogleLogin(c *gin.Context) { h.oauthLogin(c, domain.ProviderGoogle) }

// GitHubLogin godoc
// @ID          githubLogin
// @Summary     Log in with GitHub
// @Description Exchanges a GitHub authorization code, links or creates the account, and starts a session.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.OAuthRequest  true  "Authorization code"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "OAuth authentication failed"
// @Failure     500   {object}  handlers.ErrorResponse  "OAuth provider not configured"
// @Router      /auth/github [post]
func (h *Handlers) GitHubLogin(c *gin.Context) { h.oauthLogin(c, domain.ProviderGitHub) }

func (h *Handlers) oauthLogin(c *gin.Context, provider string) {
	var req OAuthRequest
	if !bindJSON(c, &req, false) {
		return
	}
	res, err := h.auth.OAuthLogin(c.Request.Context(), provider, req.Code)
	if err != nil {
		writeServiceError(c, err, false)
		return
	}
	setSessionCookie(c, h.opts.Cookie, res.Token, res.ExpiresAt)
	ok(c, http.StatusOK, AuthResponse{Message: "Login successful", User: res.User})
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Description Revokes the current session if any and clears the cookie. Always succeeds.
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.MessageResponse
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	if token := sessionToken(c); token != "" {
		if err := h.auth.Logout(c.Request.Context(), token); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("session revoke failed")
		}
	}
	clearSessionCookie(c, h.opts.Cookie)
	ok(c, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.UserResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated or session expired"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	token := middleware.SessionToken(c)
	u, err := h.auth.Me(c.Request.Context(), token)
	if err != nil {
		if token != "" && (errors.Is(err, services.ErrSessionExpired) || errors.Is(err, services.ErrUnauthenticated)) {
			clearSessionCookie(c, h.opts.Cookie)
		}
		writeServiceError(c, err, false)
		return
	}
	ok(c, http.StatusOK, UserResponse{User: *u})
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update profile image
// @Description Sets the profile image to a data:image/...;base64 URI or an http(s) URL. Empty clears it.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ProfileRequest  true  "Profile image"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     404   {object}  handlers.ErrorResponse  "User not found"
// @Router      /auth/profile [patch]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if !bindJSON(c, &req, true) {
		return
	}
	u, err := h.auth.UpdateProfileImage(c.Request.Context(), userID(c), req.ProfileImage)
	if err != nil {
		writeServiceError(c, err, false)
		return
	}
	ok(c, http.StatusOK, AuthResponse{Message: "Profile updated successfully", User: *u})
}
