package users

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"unicode"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string `json:"id,omitempty"`        // Unique identifier for the user
	TenantID     string `json:"tenant_id,omitempty"` // Tenant the user belongs to; empty means no tenant context
	Email        string `json:"email,omitempty"`     // User's email address
	Username     string `json:"username,omitempty"`  // Unique username
	PasswordHash string `json:"-"`                   // Hashed version of the user's password - never serialize

	FirstName string `json:"first_name,omitempty"` // First name of the user
	LastName  string `json:"last_name,omitempty"`  // Last name of the user
	Phone     string `json:"phone,omitempty"`      // Contact phone number
	ImageURL  string `json:"image_url,omitempty"`  // Profile image reference

	Active         bool `json:"active,omitempty"`          // Active, can the user log in at all
	EmailConfirmed bool `json:"email_confirmed,omitempty"` // EmailConfirmed, has the user confirmed their address
	TFAEnabled     bool `json:"tfa_enabled,omitempty"`     // TFAEnabled, defer token issuance until a second factor is verified

	RefreshToken       string    `json:"-"`                              // Current refresh token - never serialize
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry,omitempty"` // When the current refresh token stops being accepted

	DateJoined time.Time `json:"date_joined,omitempty"` // Date and time when the user registered
	LastLogin  time.Time `json:"last_login,omitempty"`  // Last time the user logged in
}

// NormalizeEmail trims and lowercases an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername trims and lowercases a username for lookups.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a plaintext password against the user's stored hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}

// FullName returns the user's display name built from first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// HasTenant reports whether the user carries a tenant context.
func (u *User) HasTenant() bool {
	return strings.TrimSpace(u.TenantID) != ""
}

// RefreshTokenMatches reports whether token matches the stored refresh
// token and the stored expiry has not passed at the given time. The token
// comparison runs in constant time.
func (u *User) RefreshTokenMatches(token string, now time.Time) bool {
	if u.RefreshToken == "" || token == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(u.RefreshToken), []byte(token)) != 1 {
		return false
	}
	return now.Before(u.RefreshTokenExpiry)
}
