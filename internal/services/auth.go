package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

const tokenTTL = 24 * time.Hour

// AuthService handles agent registration and login token issuance
type AuthService struct {
	store  storage.Store
	secret []byte
}

// NewAuthService creates the auth service with the JWT signing secret
func NewAuthService(store storage.Store, secret string) *AuthService {
	return &AuthService{store: store, secret: []byte(secret)}
}

// Register creates a new agent with a bcrypt-hashed password
func (a *AuthService) Register(reg *models.UserRegistration) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		FirstName:      reg.FirstName,
		MiddleName:     reg.MiddleName,
		LastName:       reg.LastName,
		Email:          reg.Email,
		PasswordHash:   string(hash),
		Role:           reg.Role,
		WhatsappNumber: reg.WhatsappNumber,
	}
	return a.store.CreateUser(user)
}

// Login verifies credentials and returns a signed token plus the user
func (a *AuthService) Login(email, password string) (string, *models.User, error) {
	user, err := a.store.GetUserByEmail(email)
	if err != nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}

	token, err := a.GenerateToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// GenerateToken issues an HS256 token carrying the user id and role
func (a *AuthService) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.UserID,
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates a token and returns the user id and role claims
func (a *AuthService) ParseToken(tokenString string) (userID, role string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	userID, _ = claims["sub"].(string)
	role, _ = claims["role"].(string)
	if userID == "" {
		return "", "", fmt.Errorf("token missing subject")
	}
	return userID, role, nil
}
