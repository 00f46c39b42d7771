package token

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// DefaultAlgorithm is the MAC algorithm used when configuration does not
// name one.
const DefaultAlgorithm = "HS256"

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey returns the key for verifying a parsed token,
	// rejecting any token whose algorithm header does not match the
	// signer's own algorithm
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// HMACsigner implements Signer using a symmetric MAC algorithm. The key and
// algorithm id come from configuration, are fixed for the life of the
// process, and never appear in errors or logs.
type HMACsigner struct {
	secret []byte
	method *jwt.SigningMethodHMAC
}

// NewHMACSigner creates a new HMAC signer with the given secret and
// algorithm id (HS256, HS384 or HS512).
func NewHMACSigner(secret string, algorithm string) (*HMACsigner, error) {
	if secret == "" {
		return nil, errors.New("[NewHMACSigner] signing key is required")
	}
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(strings.ToUpper(algorithm)).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, errors.Errorf("[NewHMACSigner] unsupported signing algorithm %q", algorithm)
	}
	return &HMACsigner{
		secret: []byte(secret),
		method: method,
	}, nil
}

func (h *HMACsigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(h.method, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

// GetVerificationKey pins the exact MAC algorithm: a token claiming any
// other algorithm family, or any other member of the HMAC family, is
// rejected before signature verification.
func (h *HMACsigner) GetVerificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	alg, _ := token.Header["alg"].(string)
	if !strings.EqualFold(alg, h.method.Alg()) {
		return nil, errors.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACsigner) GetSigningMethod() jwt.SigningMethod {
	return h.method
}
