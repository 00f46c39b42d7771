package auth

import "errors"

// Login and refresh failures are deliberately coarse: outcomes that would
// help a caller probe for accounts all collapse into AuthenticationFailedErr.
var (
	AuthenticationFailedErr = errors.New("authentication failed")
	UserInactiveErr         = errors.New("user inactive")
	EmailNotConfirmedErr    = errors.New("email not confirmed")
	TenantInactiveErr       = errors.New("tenant inactive")
	TenantExpiredErr        = errors.New("tenant expired")
	InvalidRefreshTokenErr  = errors.New("invalid refresh token")
	DirectoryUnavailableErr = errors.New("directory unavailable")
)
