package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/entitlement"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is temporarily locked due to multiple failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrMFARequired        = errors.New("one-time code required")
	ErrMFANotEnrolled     = errors.New("mfa enrolment has not been started")
)

type AuthService struct {
	users      domain.UserRepository
	packages   subscription.Repository
	tokens     domain.TokenRevocationRepository
	jwtManager *auth.JWTManager
	totp       *auth.TOTPManager
	usage      *UsageCalculator
	auditSvc   *AuditService
	log        *zap.Logger
	now        func() time.Time
}

func NewAuthService(
	users domain.UserRepository,
	packages subscription.Repository,
	tokens domain.TokenRevocationRepository,
	jwtManager *auth.JWTManager,
	totp *auth.TOTPManager,
	usage *UsageCalculator,
	auditSvc *AuditService,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		packages:   packages,
		tokens:     tokens,
		jwtManager: jwtManager,
		totp:       totp,
		usage:      usage,
		auditSvc:   auditSvc,
		log:        log,
		now:        time.Now,
	}
}

type RegisterCommand struct {
	Username  string
	Email     string
	Password  string
	Role      domain.Role
	Phone     string
	PackageID *uuid.UUID
}

// AuthResult carries PackageInfo for patients only.
type AuthResult struct {
	User        *domain.User
	Tokens      *domain.TokenPair
	PackageInfo *entitlement.Summary
}

// Register creates a doctor or patient account. Patients must pick a package.
func (s *AuthService) Register(ctx context.Context, cmd *RegisterCommand, ip string) (*AuthResult, error) {
	cmd.Username = strings.TrimSpace(cmd.Username)
	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))

	v := &validator{}
	v.check(cmd.Username != "", "username is required")
	v.check(len(cmd.Username) <= 150, "username must be at most 150 characters")
	v.check(validEmail(cmd.Email), "a valid email is required")
	v.check(cmd.Role == domain.RoleDoctor || cmd.Role == domain.RolePatient, "role must be doctor or patient")
	v.check(cmd.Role != domain.RolePatient || cmd.PackageID != nil, "patients must select a package")
	if err := validatePasswordStrength(cmd.Password); err != nil {
		v.fields = append(v.fields, err.Error())
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	if cmd.PackageID != nil {
		if _, err := s.packages.GetByID(ctx, *cmd.PackageID); err != nil {
			return nil, err
		}
	}

	hash, err := hashPassword(cmd.Password)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Username:          cmd.Username,
		Email:             cmd.Email,
		PasswordHash:      hash,
		Role:              cmd.Role,
		Phone:             strings.TrimSpace(cmd.Phone),
		PackageID:         cmd.PackageID,
		IsActive:          true,
		PasswordChangedAt: s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	pair, err := s.issue(u)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        Principal{UserID: u.ID, Role: u.Role, IP: ip},
		Action:       domain.ActionCreate,
		ResourceType: "user",
		ResourceID:   u.ID.String(),
	})
	s.log.Info("user registered",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
	)

	return &AuthResult{User: u, Tokens: pair}, nil
}

type LoginCommand struct {
	Username string
	Password string
	OTP      string
}

func (s *AuthService) Login(ctx context.Context, cmd *LoginCommand, ip string) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(cmd.Username))
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		// Burn comparable time so a missing username is not distinguishable.
		_, _ = bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if user.IsLocked() {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.Password)); err != nil {
		s.failedAttempt(ctx, user, ip, "password")
		return nil, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if strings.TrimSpace(cmd.OTP) == "" {
			return nil, ErrMFARequired
		}
		if err := s.totp.Validate(user.MFASecret, cmd.OTP, s.now()); err != nil {
			s.failedAttempt(ctx, user, ip, "otp")
			return nil, ErrInvalidCredentials
		}
	}

	if err := s.users.UpdateLoginAttempt(ctx, user.ID, true); err != nil {
		s.log.Warn("failed to reset login attempts", zap.Error(err))
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	res := &AuthResult{User: user, Tokens: pair}
	if user.IsPatient() {
		usage, err := s.usage.ForPatient(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		res.PackageInfo = entitlement.Summarize(user, usage)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        Principal{UserID: user.ID, Role: user.Role, IP: ip},
		Action:       domain.ActionLogin,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
	})
	s.log.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("ip", ip),
	)

	return res, nil
}

func (s *AuthService) failedAttempt(ctx context.Context, user *domain.User, ip, factor string) {
	if err := s.users.UpdateLoginAttempt(ctx, user.ID, false); err != nil {
		s.log.Warn("failed to record login attempt", zap.Error(err))
	}
	s.log.Warn("failed login attempt",
		zap.String("username", user.Username),
		zap.String("factor", factor),
		zap.String("ip", ip),
	)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	revoked, err := s.tokens.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		s.log.Warn("revoked refresh token presented", zap.String("user_id", claims.UserID.String()))
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := s.tokens.Revoke(ctx, claims.TokenID, user.ID, claims.ExpiresAt); err != nil {
		return nil, fmt.Errorf("revoking refresh token: %w", err)
	}
	return s.issue(user)
}

// Logout revokes the caller's refresh token.
func (s *AuthService) Logout(ctx context.Context, p Principal, refreshToken string) error {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return ErrInvalidCredentials
	}
	if claims.UserID != p.UserID {
		return ErrForbidden
	}
	if err := s.tokens.Revoke(ctx, claims.TokenID, claims.UserID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        p,
		Action:       domain.ActionLogout,
		ResourceType: "user",
		ResourceID:   p.UserID.String(),
	})
	return nil
}

// ChangePassword updates a user's password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, p Principal, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	if err := validatePasswordStrength(newPassword); err != nil {
		return &ValidationError{Fields: []string{err.Error()}}
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, p.UserID, hash); err != nil {
		return err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        p,
		Action:       domain.ActionUpdate,
		ResourceType: "password",
		ResourceID:   p.UserID.String(),
	})
	return nil
}

// BeginMFA stores a fresh, not yet enabled TOTP secret and returns it for
// the authenticator app.
func (s *AuthService) BeginMFA(ctx context.Context, p Principal) (*auth.Enrollment, error) {
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	enr, err := s.totp.Generate(user.Username)
	if err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}
	if err := s.users.SetMFA(ctx, user.ID, enr.Secret, false); err != nil {
		return nil, err
	}
	return enr, nil
}

func (s *AuthService) ConfirmMFA(ctx context.Context, p Principal, code string) error {
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if user.MFASecret == "" {
		return ErrMFANotEnrolled
	}
	if err := s.totp.Validate(user.MFASecret, code, s.now()); err != nil {
		return err
	}
	if err := s.users.SetMFA(ctx, user.ID, user.MFASecret, true); err != nil {
		return err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        p,
		Action:       domain.ActionUpdate,
		ResourceType: "mfa",
		ResourceID:   p.UserID.String(),
		Changes:      map[string]any{"mfa_enabled": true},
	})
	return nil
}

// CreateAdmin seeds an administrator account. Used by the CLI.
func (s *AuthService) CreateAdmin(ctx context.Context, username, email, password string) (*domain.User, error) {
	v := &validator{}
	v.check(strings.TrimSpace(username) != "", "username is required")
	if err := validatePasswordStrength(password); err != nil {
		v.fields = append(v.fields, err.Error())
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Username:          strings.TrimSpace(username),
		Email:             strings.ToLower(strings.TrimSpace(email)),
		PasswordHash:      hash,
		Role:              domain.RoleAdmin,
		IsActive:          true,
		PasswordChangedAt: s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("admin created", zap.String("user_id", u.ID.String()))
	return u, nil
}

// PurgeRevoked drops revocation rows whose tokens have expired anyway.
func (s *AuthService) PurgeRevoked(ctx context.Context) (int64, error) {
	return s.tokens.PurgeExpired(ctx, s.now())
}

func (s *AuthService) issue(u *domain.User) (*domain.TokenPair, error) {
	pair, err := s.jwtManager.GenerateTokenPair(&domain.Claims{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
	})
	if err != nil {
		s.log.Error("failed to generate token pair", zap.Error(err))
		return nil, fmt.Errorf("generating tokens: %w", err)
	}
	return pair, nil
}

func validatePasswordStrength(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func validEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
