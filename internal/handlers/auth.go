package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"ln-donations/internal/middleware"
)

const adminTokenTTL = 12 * time.Hour

// AuthHandler issues admin tokens. There is a single admin account whose
// password is stored as a bcrypt hash in configuration.
type AuthHandler struct {
	log          *logrus.Entry
	JwtSecret    string
	AdminUser    string
	PasswordHash string
	now          func() time.Time
}

func NewAuthHandler(log *logrus.Entry, jwtSecret, adminUser, passwordHash string) *AuthHandler {
	return &AuthHandler{
		log:          log,
		JwtSecret:    jwtSecret,
		AdminUser:    adminUser,
		PasswordHash: passwordHash,
		now:          time.Now,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) createJWT(subject string) (string, error) {
	now := h.now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": middleware.AdminRole,
		"iat":  now.Unix(),
		"exp":  now.Add(adminTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.JwtSecret))
}

func (h *AuthHandler) Login(c *gin.Context) {
	log := h.log.WithField("method", "Login")

	if h.JwtSecret == "" || h.AdminUser == "" || h.PasswordHash == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin access is not configured"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	// Compare stored hash with the entered password even for an unknown user
	// so both failures take the same time.
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.AdminUser)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(h.PasswordHash), []byte(req.Password))
	if !userOK || passErr != nil {
		log.WithField("username", req.Username).Info("rejected admin login")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password."})
		return
	}

	tokenString, err := h.createJWT(h.AdminUser)
	if err != nil {
		log.WithError(err).Error("failure signing admin token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Login successful.",
		"token":     tokenString,
		"expiresIn": int(adminTokenTTL.Seconds()),
	})
}
