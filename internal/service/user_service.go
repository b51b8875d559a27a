package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fightzone/backend/internal/models"
	"fightzone/backend/pkg/jwt"
	"fightzone/backend/pkg/logger"
	sharedRedis "fightzone/backend/shared/redis"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrInvalidOAuthState  = errors.New("invalid oauth state")
)

const (
	resetTokenTTL  = time.Hour
	oauthStateTTL  = 10 * time.Minute
	discordUserURL = "https://discord.com/api/users/@me"
)

// discordEndpoint is the Discord OAuth2 endpoint pair
var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/api/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// Mailer delivers transactional mail. The default implementation only logs,
// which is enough for development; production wires an SMTP sender here.
type Mailer interface {
	SendPasswordReset(email, token string) error
}

type logMailer struct {
	log *logger.Logger
}

func (m *logMailer) SendPasswordReset(email, token string) error {
	m.log.Info("Password reset requested", "email", email, "token", token)
	return nil
}

// NewLogMailer returns a Mailer that writes reset tokens to the log
func NewLogMailer(log *logger.Logger) Mailer {
	return &logMailer{log: log}
}

// UserService handles accounts, sessions and the Discord OAuth flow
type UserService struct {
	db     *gorm.DB
	jwt    *jwt.Service
	kv     *sharedRedis.Client
	mailer Mailer
	oauth  *oauth2.Config
	log    *logger.Logger

	// httpClient fetches the Discord profile after token exchange
	httpClient *http.Client
}

// NewUserService creates a new user service. The oauth config may be nil
// when Discord login is not configured.
func NewUserService(db *gorm.DB, jwtService *jwt.Service, kv *sharedRedis.Client, mailer Mailer, oauth *oauth2.Config, log *logger.Logger) *UserService {
	if mailer == nil {
		mailer = NewLogMailer(log)
	}
	return &UserService{
		db:         db,
		jwt:        jwtService,
		kv:         kv,
		mailer:     mailer,
		oauth:      oauth,
		log:        log,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewDiscordOAuthConfig builds the oauth2 config for Discord login
func NewDiscordOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"identify", "email"},
		Endpoint:     discordEndpoint,
	}
}

// CreateUser registers a new account and returns it with a session token
func (s *UserService) CreateUser(req *models.SignupRequest) (*models.User, string, error) {
	var existing models.User
	result := s.db.Where("email = ?", models.NormalizeEmail(req.Email)).First(&existing)
	if result.RowsAffected > 0 {
		return nil, "", ErrUserAlreadyExists
	}

	user := models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}

	if err := s.db.Create(&user).Error; err != nil {
		return nil, "", err
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email, user.Nickname())
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// Login authenticates a user and returns a session token
func (s *UserService) Login(req *models.LoginRequest) (*models.User, string, error) {
	var user models.User
	result := s.db.Where("email = ?", models.NormalizeEmail(req.Email)).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", result.Error
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}

	now := time.Now()
	s.db.Model(&user).Update("last_login", now)
	user.LastLogin = now

	token, err := s.jwt.GenerateToken(user.ID, user.Email, user.Nickname())
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	result := s.db.First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *UserService) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	result := s.db.Where("email = ?", models.NormalizeEmail(email)).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// Logout denylists the token id until its natural expiry, after which the
// key falls out of redis on its own
func (s *UserService) Logout(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return nil
	}
	return s.kv.Set(ctx, denyKey(tokenID), "1", s.jwt.Expiry())
}

// IsDenied reports whether a token id has been revoked by logout. It
// satisfies the auth middleware's denylist interface; redis errors fail
// open so an outage does not log everyone out.
func (s *UserService) IsDenied(tokenID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	denied, err := s.kv.Exists(ctx, denyKey(tokenID))
	if err != nil {
		s.log.Warn("Denylist lookup failed", "error", err.Error())
		return false
	}
	return denied
}

// RequestPasswordReset issues a reset token for the account, valid for an
// hour. Unknown emails are not an error so the endpoint cannot be used to
// probe which addresses have accounts.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	token := uuid.New().String()
	if err := s.kv.Set(ctx, resetKey(token), models.NormalizeEmail(user.Email), resetTokenTTL); err != nil {
		return err
	}

	return s.mailer.SendPasswordReset(user.Email, token)
}

// ResetPassword consumes a reset token and sets the new password
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := s.kv.Get(ctx, resetKey(token))
	if err != nil {
		if errors.Is(err, sharedRedis.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	user, err := s.GetUserByEmail(email)
	if err != nil {
		return err
	}

	hashed, err := models.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.db.Model(user).Update("password", hashed).Error; err != nil {
		return err
	}

	// One-shot token
	return s.kv.Del(ctx, resetKey(token))
}

// DiscordAuthURL starts the OAuth flow: a random state goes into redis so
// the callback can prove the flow originated here
func (s *UserService) DiscordAuthURL(ctx context.Context) (string, error) {
	if s.oauth == nil {
		return "", errors.New("discord login is not configured")
	}

	state := uuid.New().String()
	if err := s.kv.Set(ctx, stateKey(state), "1", oauthStateTTL); err != nil {
		return "", err
	}

	return s.oauth.AuthCodeURL(state), nil
}

// discordUser is the subset of the Discord /users/@me response we read
type discordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Email      string `json:"email"`
}

// HandleDiscordCallback completes the OAuth flow: verifies state, exchanges
// the code, fetches the Discord profile and signs the matching account in,
// creating it on first login.
func (s *UserService) HandleDiscordCallback(ctx context.Context, code, state string) (*models.User, string, error) {
	ok, err := s.kv.Exists(ctx, stateKey(state))
	if err != nil {
		return nil, "", err
	}
	if state == "" || !ok {
		return nil, "", ErrInvalidOAuthState
	}
	// States are single use
	if err := s.kv.Del(ctx, stateKey(state)); err != nil {
		s.log.Warn("Failed to delete oauth state", "error", err.Error())
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("discord token exchange failed: %w", err)
	}

	profile, err := s.fetchDiscordUser(ctx, token)
	if err != nil {
		return nil, "", err
	}

	user, err := s.findOrCreateDiscordUser(profile)
	if err != nil {
		return nil, "", err
	}

	sessionToken, err := s.jwt.GenerateToken(user.ID, user.Email, user.Nickname())
	if err != nil {
		return nil, "", err
	}

	return user, sessionToken, nil
}

func (s *UserService) fetchDiscordUser(ctx context.Context, token *oauth2.Token) (*discordUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discordUserURL, nil)
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord profile fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discord profile fetch returned status %d", resp.StatusCode)
	}

	var profile discordUser
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	if profile.Email == "" {
		return nil, errors.New("discord account has no verified email")
	}
	return &profile, nil
}

// findOrCreateDiscordUser matches by discord id first, then by email to
// link an existing password account, and finally creates a fresh account.
func (s *UserService) findOrCreateDiscordUser(profile *discordUser) (*models.User, error) {
	var user models.User

	err := s.db.Where("discord_id = ?", profile.ID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = s.db.Where("email = ?", models.NormalizeEmail(profile.Email)).First(&user).Error
	if err == nil {
		if linkErr := s.db.Model(&user).Update("discord_id", profile.ID).Error; linkErr != nil {
			return nil, linkErr
		}
		user.DiscordID = profile.ID
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	displayName := profile.GlobalName
	if displayName == "" {
		displayName = profile.Username
	}

	user = models.User{
		Username:    profile.Username,
		DisplayName: displayName,
		Email:       profile.Email,
		DiscordID:   profile.ID,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func denyKey(tokenID string) string {
	return "deny:" + tokenID
}

func resetKey(token string) string {
	return "reset:" + token
}

func stateKey(state string) string {
	return "oauth_state:" + state
}
