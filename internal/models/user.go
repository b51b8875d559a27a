package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MaxUsernameLen caps usernames; registration rejects longer ones and
// display names derived from OAuth profiles are truncated to fit
const MaxUsernameLen = 12

// User represents a user in the system
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `gorm:"uniqueIndex" json:"email"`
	Password    string    `json:"-"` // Never return password in JSON
	DiscordID   string    `gorm:"index" json:"-"`
	LastLogin   time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SignupRequest is the request structure for creating a new user
type SignupRequest struct {
	Username        string `json:"username" binding:"required,max=12"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=6"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
}

// LoginRequest is the request structure for user login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ResetRequest asks for a password reset email
type ResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordUpdateRequest completes a password reset
type PasswordUpdateRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// UserResponse is the response structure for user data (without sensitive info)
type UserResponse struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email"`
	LastLogin   time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HashPassword hashes a password for storage
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// BeforeCreate is a GORM hook to hash the password before saving.
// OAuth-provisioned accounts have no password.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Password != "" {
		hashedPassword, err := HashPassword(u.Password)
		if err != nil {
			return err
		}
		u.Password = hashedPassword
	}

	u.Email = NormalizeEmail(u.Email)

	return nil
}

// Nickname derives the name shown in the header and on chat messages.
// Preference order: Discord display name, then username.
func (u *User) Nickname() string {
	nick := strings.TrimSpace(u.DisplayName)
	if nick == "" {
		nick = strings.TrimSpace(u.Username)
	}
	if nick == "" {
		nick = "Account"
	}
	// Character-counted so a Discord name full of accents or emoji is
	// cut on a rune boundary
	if utf8.RuneCountInString(nick) > MaxUsernameLen {
		nick = string([]rune(nick)[:MaxUsernameLen])
	}
	return nick
}

// ToResponse converts a User model to a UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		LastLogin:   u.LastLogin,
		CreatedAt:   u.CreatedAt,
	}
}
