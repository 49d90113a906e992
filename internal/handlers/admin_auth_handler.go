package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"sendcash-backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const adminTokenIssuer = "sendcash-backend-admin"

// AdminAuthHandler admin login with bcrypt password and TOTP
type AdminAuthHandler struct {
	username     string
	passwordHash []byte
	totpSecret   string
	jwtSecret    []byte
	tokenTTL     time.Duration
	log          *logrus.Logger
	now          func() time.Time
}

// AdminLoginRequest admin login request
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code"`
}

// AdminLoginResponse admin login response
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminJWTClaims admin JWT claims
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewAdminAuthHandler login is refused until a password hash and JWT secret are configured
func NewAdminAuthHandler(cfg config.AdminConfig, log *logrus.Logger) *AdminAuthHandler {
	if cfg.PasswordHash == "" || cfg.JWTSecret == "" {
		log.Warn("⚠️ admin.passwordHash or admin.jwtSecret not set, admin API is disabled")
	}
	if cfg.TOTPSecret == "" {
		log.Warn("⚠️ admin.totpSecret not set, admin login is password-only")
	}
	ttl := time.Duration(cfg.TokenTTL) * time.Minute
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	username := cfg.Username
	if username == "" {
		username = "admin"
	}
	return &AdminAuthHandler{
		username:     username,
		passwordHash: []byte(cfg.PasswordHash),
		totpSecret:   cfg.TOTPSecret,
		jwtSecret:    []byte(cfg.JWTSecret),
		tokenTTL:     ttl,
		log:          log,
		now:          time.Now,
	}
}

// Enabled reports whether admin login can succeed at all
func (h *AdminAuthHandler) Enabled() bool {
	return len(h.passwordHash) > 0 && len(h.jwtSecret) > 0
}

// AdminLoginHandler POST /api/admin/login
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if !h.Enabled() {
		c.JSON(http.StatusServiceUnavailable, AdminLoginResponse{
			Success: false,
			Message: "Admin API is not configured",
		})
		return
	}

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: "username and password are required",
		})
		return
	}

	// same message for every credential failure
	if subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) != 1 ||
		bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) != nil {
		h.log.WithFields(logrus.Fields{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
		}).Warn("admin login rejected")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if h.totpSecret != "" && !totp.Validate(req.TOTPCode, h.totpSecret) {
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid TOTP code",
		})
		return
	}

	token, err := h.GenerateToken(req.Username)
	if err != nil {
		h.log.WithError(err).Error("failed to sign admin token")
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// GenerateTOTPSecretHandler POST /api/admin/totp/generate
// Only answers while no TOTP secret is configured.
func (h *AdminAuthHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	if h.totpSecret != "" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "TOTP secret already configured",
		})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "SendCash Admin",
		AccountName: h.username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, "internal_error", "Failed to generate TOTP secret", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
		"message": "Store this secret as ADMIN_TOTP_SECRET",
	})
}

// GenerateToken signs an admin JWT
func (h *AdminAuthHandler) GenerateToken(username string) (string, error) {
	now := h.now()
	claims := AdminJWTClaims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    adminTokenIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies an admin JWT
func (h *AdminAuthHandler) ValidateToken(tokenString string) (*AdminJWTClaims, error) {
	if len(h.jwtSecret) == 0 {
		return nil, fmt.Errorf("admin JWT secret not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	}, jwt.WithIssuer(adminTokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*AdminJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
