package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TeamTokenType 團隊 session token 類型
const TeamTokenType = "team"

// RoleType set member role
type RoleType string

const (
	// RoleAdmin is the admin role
	RoleAdmin RoleType = "admin"
	// RoleMember is the member role
	RoleMember RoleType = "member"
)

var (
	// ErrInvalidToken token parse fail or claims invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotTeamToken token not issued for team session
	ErrNotTeamToken = errors.New("not a team token")
)

// Claims structure for custom claims in JWT
type Claims struct {
	TeamMemberID int64  `json:"teamMemberId"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Type         string `json:"type"`
	jwt.RegisteredClaims
}

// Manager sign & parse team session token
type Manager struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

// NewManager create token manager, expiration default 24h
func NewManager(secret, issuer string, expiration time.Duration) *Manager {
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &Manager{
		secret:     []byte(secret),
		issuer:     issuer,
		expiration: expiration,
		now:        time.Now,
	}
}

// GenerateJWT generates a team JWT token
func (m *Manager) GenerateJWT(memberID int64, name, role string) (string, error) {
	now := m.now()
	claims := Claims{
		TeamMemberID: memberID,
		Name:         name,
		Role:         role,
		Type:         TeamTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseJWT parses a JWT and extracts the Claims, only team token accepted
func (m *Manager) ParseJWT(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Check if the signing method is HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TeamTokenType || claims.TeamMemberID <= 0 {
		return nil, ErrNotTeamToken
	}

	return claims, nil
}

// BearerToken strip "Bearer " prefix of Authorization header, empty when missing
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}
