package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/d4l-data4life/go-chat-gateway/pkg/auth"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	db     *gorm.DB
	jwtKey []byte
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *gorm.DB, jwtKey []byte) *AuthHandler {
	return &AuthHandler{
		db:     db,
		jwtKey: jwtKey,
	}
}

// Routes returns auth routes
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	return r
}

// MeRoutes returns the routes operating on the authenticated user
func (h *AuthHandler) MeRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetCurrentUser)
	r.Patch("/", h.UpdateCurrentUser)

	return r
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateUserRequest represents a profile update request
type UpdateUserRequest struct {
	Language *string `json:"language"`
	Password *string `json:"password"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Username, email, and password are required"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logging.LogErrorf(err, "Failed to hash password")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create user"})
		return
	}

	// The first registered account administers the instance.
	var userCount int64
	if err := h.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		logging.LogErrorf(err, "Failed to count users")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create user"})
		return
	}
	role := models.UserRoleUser
	if userCount == 0 {
		role = models.UserRoleAdmin
	}

	hashedPasswordStr := string(hashedPassword)
	user := models.User{
		ID:           uuid.New(),
		Username:     &req.Username,
		Email:        &req.Email,
		PasswordHash: &hashedPasswordStr,
		Role:         role,
	}

	if err := h.db.Create(&user).Error; err != nil {
		if models.IsUniqueViolation(err) {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Username or email already exists"})
			return
		}
		logging.LogErrorf(err, "Failed to create user")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create user"})
		return
	}

	token, err := auth.IssueToken(user.ID, h.jwtKey)
	if err != nil {
		logging.LogErrorf(err, "Failed to generate JWT")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to generate token"})
		return
	}

	logging.LogDebugf("User registered: %s", req.Username)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, AuthResponse{
		User:  user.ToPublic(),
		Token: token,
	})
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	var user models.User
	if err := h.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Invalid username or password"})
		return
	}

	if user.PasswordHash == nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Invalid username or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Invalid username or password"})
		return
	}

	token, err := auth.IssueToken(user.ID, h.jwtKey)
	if err != nil {
		logging.LogErrorf(err, "Failed to generate JWT")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to generate token"})
		return
	}

	logging.LogDebugf("User logged in: %s", req.Username)

	render.JSON(w, r, AuthResponse{
		User:  user.ToPublic(),
		Token: token,
	})
}

// GetCurrentUser returns the current authenticated user
func (h *AuthHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Unauthorized"})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "User not found"})
		return
	}

	render.JSON(w, r, user.ToPublic())
}

// UpdateCurrentUser updates profile settings of the authenticated user
func (h *AuthHandler) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Unauthorized"})
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "User not found"})
		return
	}

	if req.Language != nil && *req.Language != "" {
		user.Language = *req.Language
	}

	if req.Password != nil && *req.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			logging.LogErrorf(err, "Failed to hash password")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to update user"})
			return
		}
		hashedPasswordStr := string(hashedPassword)
		user.PasswordHash = &hashedPasswordStr
	}

	if err := h.db.Save(&user).Error; err != nil {
		logging.LogErrorf(err, "Failed to update user")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to update user"})
		return
	}

	render.JSON(w, r, user.ToPublic())
}
