package jwt

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates RS256 bearer tokens: user tokens on the gateway path
// and service tokens on the internal API.
type Verifier struct {
	publicKey       *rsa.PublicKey
	serviceAudience string
	now             func() time.Time
}

func NewVerifier(publicKeyPEM, serviceAudience string) (*Verifier, error) {
	pub, err := parseRSAPublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return NewVerifierWithKey(pub, serviceAudience), nil
}

func NewVerifierWithKey(publicKey *rsa.PublicKey, serviceAudience string) *Verifier {
	return &Verifier{publicKey: publicKey, serviceAudience: serviceAudience, now: time.Now}
}

// UserSubject returns the subject of a user token.
func (v *Verifier) UserSubject(tokenString string) (string, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ServiceCaller returns the calling service of a token addressed to the
// service audience.
func (v *Verifier) ServiceCaller(tokenString string) (string, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		return "", err
	}
	if !claims.HasAudience(v.serviceAudience) {
		return "", fmt.Errorf("%w: expected %s", domain.ErrTokenAudienceMismatch, v.serviceAudience)
	}
	return claims.Subject, nil
}

func (v *Verifier) parse(tokenString string) (*domain.CallerClaims, error) {
	if tokenString == "" {
		return nil, domain.ErrTokenMissing
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", domain.ErrTokenMalformed, token.Header["alg"])
		}
		return v.publicKey, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, domain.ErrTokenNotYetValid
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, domain.ErrTokenInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrTokenMalformed
	}

	claims := &domain.CallerClaims{
		Subject: getStringClaim(mapClaims, "sub"),
		Issuer:  getStringClaim(mapClaims, "iss"),
	}
	if aud, err := mapClaims.GetAudience(); err == nil {
		claims.Audience = aud
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}

	if err := claims.Valid(v.now()); err != nil {
		return nil, err
	}
	return claims, nil
}

func parseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(normalizePEM(pemStr)))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsaPub, nil
}

func getStringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

var pemHeaderRe = regexp.MustCompile(`(?i)(-----BEGIN [A-Z ]+-----)`)
var pemFooterRe = regexp.MustCompile(`(?i)(-----END [A-Z ]+-----)`)

// normalizePEM restores line breaks of a PEM block passed on a single line,
// as happens with keys set through environment variables.
func normalizePEM(s string) string {
	if strings.Contains(s, "\n") {
		return s
	}
	s = pemHeaderRe.ReplaceAllString(s, "$1\n")
	s = pemFooterRe.ReplaceAllString(s, "\n$1")
	s = strings.TrimSpace(s)
	header, rest, ok := strings.Cut(s, "\n")
	if !ok {
		return s
	}
	body, footer, ok := strings.Cut(rest, "\n")
	if !ok {
		return s
	}
	body = strings.ReplaceAll(body, " ", "\n")
	return header + "\n" + body + "\n" + footer + "\n"
}
