package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gigmarket/backend/internal/domain"
)

const tokenTTL = 7 * 24 * time.Hour

// AuthService handles authentication, JWT, and user management.
type AuthService struct {
	jwtSecret     string
	adminEmail    string
	adminPassword string
	users         UserStore
	validate      *validator.Validate
}

// NewAuthService creates a new AuthService.
func NewAuthService(jwtSecret, adminEmail, adminPassword string, users UserStore) *AuthService {
	return &AuthService{
		jwtSecret:     jwtSecret,
		adminEmail:    adminEmail,
		adminPassword: adminPassword,
		users:         users,
		validate:      newValidator(),
	}
}

// SeedAdmin creates the default admin user if it doesn't exist.
func (s *AuthService) SeedAdmin(ctx context.Context) error {
	exists, err := s.users.Exists(ctx, s.adminEmail)
	if err != nil {
		return fmt.Errorf("failed to check admin existence: %w", err)
	}
	if exists {
		slog.Info("admin user already exists", "email", s.adminEmail)
		return nil
	}

	if _, err := s.createUser(ctx, "Administrator", s.adminEmail, s.adminPassword, domain.RoleAdmin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	slog.Info("admin user created", "email", s.adminEmail)
	return nil
}

func (s *AuthService) createUser(ctx context.Context, name, email, password string, role domain.Role) (*domain.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	user := &domain.User{
		ID:        domain.NewID(),
		Name:      name,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Password:  string(hashed),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Register signs up a freelancer or hiring user and logs them in.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest(formatValidationErrors(err))
	}
	exists, err := s.users.Exists(ctx, strings.ToLower(req.Email))
	if err != nil {
		return nil, domain.ErrInternal("failed to check user", err)
	}
	if exists {
		return nil, domain.ErrConflict("email already registered", nil)
	}

	user, err := s.createUser(ctx, req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		return nil, domain.ErrInternal("failed to create user", err)
	}
	return s.issue(user)
}

// Login validates credentials and returns a JWT token.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest(formatValidationErrors(err))
	}
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *domain.User) (*domain.LoginResponse, error) {
	signed, err := s.GenerateToken(user)
	if err != nil {
		return nil, domain.ErrInternal("failed to sign token", err)
	}
	return &domain.LoginResponse{Token: signed, User: *user.ToResponse()}, nil
}

// GenerateToken signs an HS256 token for user.
func (s *AuthService) GenerateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"exp":   now.Add(tokenTTL).Unix(),
		"iat":   now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
}

// VerifyToken validates a JWT token and returns the claims.
func (s *AuthService) VerifyToken(tokenStr string) (*domain.JWTClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized("invalid token claims")
	}

	return &domain.JWTClaims{
		Sub:   getClaimString(claims, "sub"),
		Email: getClaimString(claims, "email"),
		Role:  getClaimString(claims, "role"),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// ListUsers returns all users (admin only).
func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.UserResponse, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list users", err)
	}
	responses := make([]*domain.UserResponse, len(users))
	for i, u := range users {
		responses[i] = u.ToResponse()
	}
	return responses, nil
}

// CreateUser creates a new user with bcrypt password (admin only).
func (s *AuthService) CreateUser(ctx context.Context, req *domain.CreateUserRequest) (*domain.UserResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest(formatValidationErrors(err))
	}
	exists, err := s.users.Exists(ctx, strings.ToLower(req.Email))
	if err != nil {
		return nil, domain.ErrInternal("failed to check user", err)
	}
	if exists {
		return nil, domain.ErrConflict("email already registered", nil)
	}

	role := req.Role
	if role == "" {
		role = domain.RoleFreelancer
	}
	user, err := s.createUser(ctx, req.Name, req.Email, req.Password, role)
	if err != nil {
		return nil, domain.ErrInternal("failed to create user", err)
	}
	return user.ToResponse(), nil
}

// DeleteUser removes a user by ID (admin only).
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return domain.ErrNotFound("user not found")
	}
	if user.Role == domain.RoleAdmin {
		return domain.ErrBadRequest("cannot delete admin user")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return domain.ErrInternal("failed to delete user", err)
	}
	return nil
}

// GetUserByID returns a user profile by ID (for /api/auth/me).
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*domain.UserResponse, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	return user.ToResponse(), nil
}
