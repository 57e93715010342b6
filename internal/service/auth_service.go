package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/versewise/versewise-server/config"
	"github.com/versewise/versewise-server/internal/model"
	"github.com/versewise/versewise-server/internal/model/dto"
	"github.com/versewise/versewise-server/internal/pkg/jwt"
	"github.com/versewise/versewise-server/internal/pkg/oauth"
	"github.com/versewise/versewise-server/internal/pkg/queue"
	"github.com/versewise/versewise-server/internal/repository"
)

var (
	ErrEmailExists        = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email address not verified yet")
	ErrInvalidVerifyCode  = errors.New("verification code is invalid or expired")
	ErrInvalidOAuthState  = errors.New("oauth state is invalid or expired")
	ErrUserNotFound       = errors.New("user not found")
)

// VerifyCodeExpireHours is how long a signup verification link stays valid.
// The unverified-account purge uses the same window.
const VerifyCodeExpireHours = 24

type AuthService struct {
	userRepo    *repository.UserRepository
	googleOAuth *oauth.GoogleOAuth
	stateStore  *oauth.StateStore
	notifyQueue *queue.Queue
	cfg         *config.Config
}

func NewAuthService(
	userRepo *repository.UserRepository,
	stateStore *oauth.StateStore,
	notifyQueue *queue.Queue,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		googleOAuth: oauth.NewGoogleOAuth(
			cfg.OAuth.Google.ClientID,
			cfg.OAuth.Google.ClientSecret,
			cfg.OAuth.Google.RedirectURI,
		),
		stateStore:  stateStore,
		notifyQueue: notifyQueue,
		cfg:         cfg,
	}
}

// Register creates a free-tier account and mails the verification link.
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	exists, err := s.userRepo.ExistsByEmail(email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	verifyCode, err := generateRandomCode(32)
	if err != nil {
		return nil, err
	}

	passwordStr := string(hashedPassword)
	expiresAt := time.Now().Add(VerifyCodeExpireHours * time.Hour)

	user := &model.User{
		Name:                  req.Name,
		Email:                 email,
		PasswordHash:          &passwordStr,
		SubscriptionStatus:    model.SubscriptionFree,
		VerificationCode:      &verifyCode,
		VerificationExpiresAt: &expiresAt,
		Active:                true,
	}

	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	// Debug mode skips the mail round-trip so local signups work without SMTP.
	if s.cfg.Server.Mode == "debug" {
		user.EmailVerified = true
		user.VerificationCode = nil
		user.VerificationExpiresAt = nil
		if err := s.userRepo.Update(user); err != nil {
			return nil, err
		}
	} else {
		s.enqueueVerificationMail(ctx, user, verifyCode)
	}

	return &dto.RegisterResponse{
		UserID: user.ID,
	}, nil
}

// Login checks the password and issues a session token.
func (s *AuthService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Active {
		return nil, ErrInvalidCredentials
	}

	if !user.EmailVerified && s.cfg.Server.Mode != "debug" {
		return nil, ErrEmailNotVerified
	}

	if user.PasswordHash == nil {
		// OAuth-only account; there is no password to check.
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		Token: token,
		User:  buildUserInfo(user),
	}, nil
}

// VerifyEmail confirms the mailed code and signs the user in.
func (s *AuthService) VerifyEmail(code string) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByVerificationCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidVerifyCode
		}
		return nil, err
	}

	if user.VerificationExpiresAt == nil || time.Now().After(*user.VerificationExpiresAt) {
		return nil, ErrInvalidVerifyCode
	}

	user.EmailVerified = true
	user.VerificationCode = nil
	user.VerificationExpiresAt = nil
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}

	token, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		Token: token,
		User:  buildUserInfo(user),
	}, nil
}

// GetGoogleAuthURL issues a one-time state nonce and builds the consent URL.
func (s *AuthService) GetGoogleAuthURL(ctx context.Context, redirectURI string) (string, error) {
	state, err := s.stateStore.GenerateState(ctx, redirectURI)
	if err != nil {
		return "", err
	}
	return s.googleOAuth.GetAuthURL(state), nil
}

// GoogleCallback validates the state, exchanges the code and signs the
// Google account in, creating or linking the local user as needed.
func (s *AuthService) GoogleCallback(ctx context.Context, code, state string) (*dto.LoginResponse, string, error) {
	redirectURI, err := s.stateStore.ValidateState(ctx, state)
	if err != nil {
		return nil, "", ErrInvalidOAuthState
	}

	token, err := s.googleOAuth.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("exchange oauth code: %w", err)
	}

	googleUser, err := s.googleOAuth.GetUser(ctx, token)
	if err != nil {
		return nil, "", fmt.Errorf("fetch google user: %w", err)
	}

	user, err := s.findOrCreateGoogleUser(googleUser)
	if err != nil {
		return nil, "", err
	}

	if !user.Active {
		return nil, "", ErrInvalidCredentials
	}

	jwtToken, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, "", err
	}

	return &dto.LoginResponse{
		Token: jwtToken,
		User:  buildUserInfo(user),
	}, redirectURI, nil
}

// findOrCreateGoogleUser resolves the Google identity: by google id first,
// then by email (linking the id onto an existing password account), else a
// fresh account. OAuth accounts are verified by construction.
func (s *AuthService) findOrCreateGoogleUser(googleUser *oauth.GoogleUser) (*model.User, error) {
	user, err := s.userRepo.GetByGoogleID(googleUser.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(googleUser.Email))
	if email != "" {
		existing, err := s.userRepo.GetByEmail(email)
		if err == nil {
			existing.GoogleID = &googleUser.ID
			existing.EmailVerified = true
			if err := s.userRepo.Update(existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	name := googleUser.Name
	if name == "" {
		name = email
	}

	user = &model.User{
		Name:               name,
		Email:              email,
		GoogleID:           &googleUser.ID,
		SubscriptionStatus: model.SubscriptionFree,
		EmailVerified:      true,
		Active:             true,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("create google user: %w", err)
	}

	return user, nil
}

// GetUserByID loads a user for authenticated request handling.
func (s *AuthService) GetUserByID(id int64) (*model.User, error) {
	return s.userRepo.GetByID(id)
}

func (s *AuthService) enqueueVerificationMail(ctx context.Context, user *model.User, code string) {
	if s.notifyQueue == nil {
		return
	}

	msg := &queue.NotificationMessage{
		Kind:       queue.KindVerification,
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.Name,
		VerifyLink: fmt.Sprintf("%s/verify-email?code=%s", s.cfg.Server.FrontendURL, code),
	}
	if err := s.notifyQueue.Push(ctx, msg); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to enqueue verification mail")
	}
}

func buildUserInfo(user *model.User) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:                 user.ID,
		Name:               user.Name,
		Email:              user.Email,
		SubscriptionStatus: user.SubscriptionStatus,
		EmailVerified:      user.EmailVerified,
		CreatedAt:          user.CreatedAt.UTC().Format(time.RFC3339),
	}

	if user.CurrentPeriodEnd != nil {
		info.CurrentPeriodEnd = user.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}

	return info
}

func generateRandomCode(length int) (string, error) {
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
