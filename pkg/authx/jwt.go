package authx

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tillgate/tillgate/pkg/kernel"
)

const tokenAudience = "tillgate-api"

// JWTService mints and validates the HS256 bearer tokens used by owner and
// platform-admin actors on the tenant-admin surface. PIN-based roles never
// receive bearer tokens; they carry session cookies instead.
type JWTService struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
}

func NewJWTService(secretKey string, ttl time.Duration, issuer string) *JWTService {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	if issuer == "" {
		issuer = "tillgate"
	}

	return &JWTService{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		issuer:    issuer,
	}
}

type jwtClaims struct {
	Role     kernel.Role     `json:"role"`
	OrgID    kernel.OrgID    `json:"org_id,omitempty"`
	BranchID kernel.BranchID `json:"branch_id,omitempty"`
	Email    string          `json:"email,omitempty"`
	Name     string          `json:"name,omitempty"`
	Scopes   []string        `json:"scopes"`
	jwt.RegisteredClaims
}

// Generate mints a bearer token carrying the auth context.
func (j *JWTService) Generate(ac kernel.AuthContext) (string, error) {
	now := time.Now()

	scopes := ac.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	claims := jwtClaims{
		Role:     ac.Role,
		OrgID:    ac.OrgID,
		BranchID: ac.BranchID,
		Email:    ac.Email,
		Name:     ac.Name,
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   ac.AccountID.String(),
			Audience:  []string{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", ErrTokenGeneration().WithDetail("error", err.Error())
	}

	return token, nil
}

// Validate decodes a bearer token back into an auth context.
func (j *JWTService) Validate(tokenString string) (*kernel.AuthContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid().WithDetail("error", err.Error())
	}
	if !token.Valid {
		return nil, ErrTokenInvalid()
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok {
		return nil, ErrTokenInvalid().WithDetail("error", "invalid claims type")
	}

	return &kernel.AuthContext{
		AccountID: kernel.NewAccountID(claims.Subject),
		Role:      claims.Role,
		OrgID:     claims.OrgID,
		BranchID:  claims.BranchID,
		Email:     claims.Email,
		Name:      claims.Name,
		Scopes:    claims.Scopes,
	}, nil
}
