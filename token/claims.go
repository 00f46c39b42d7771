package token

import (
	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/jrsteele09/go-login-service/users"
)

// Claims builds the identity claim set for a user within a tenant context.
// The result is a pure function of (user, tenantID, ipAddress); the issuer
// adds the time claims at signing. No secret material belongs in here.
func Claims(user *users.User, tenantID, ipAddress string) jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub":          user.ID,
		"email":        user.Email,
		"name":         user.FullName(),
		"given_name":   user.FirstName,
		"family_name":  user.LastName,
		"ip":           ipAddress,
		"tenant":       tenantID,
		"picture":      user.ImageURL,
		"phone_number": user.Phone,
	}
}

// Principal is the identity decoded from an access token.
type Principal struct {
	UserID    string
	Email     string
	TenantID  string
	FullName  string
	GivenName string
	Surname   string
	IPAddress string
	Picture   string
	Phone     string
}

func principalFromClaims(claims jwtlib.MapClaims) *Principal {
	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}
	return &Principal{
		UserID:    str("sub"),
		Email:     str("email"),
		TenantID:  str("tenant"),
		FullName:  str("name"),
		GivenName: str("given_name"),
		Surname:   str("family_name"),
		IPAddress: str("ip"),
		Picture:   str("picture"),
		Phone:     str("phone_number"),
	}
}
