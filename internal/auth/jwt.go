package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
)

// Claims defines the structured data we store in the JWT
type Claims struct {
	UserID uuid.UUID         `json:"user_id"`
	Name   string            `json:"name"`
	Role   domain.SenderType `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the authenticated caller described by the claims.
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{ID: c.UserID, Name: c.Name, Role: c.Role}
}

type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secretKey: []byte(secret), ttl: ttl}
}

// GenerateToken creates a new JWT access token
func (tm *TokenManager) GenerateToken(userID uuid.UUID, name string, role domain.SenderType) (string, error) {
	if !role.IsValid() {
		return "", errors.New("invalid role")
	}
	expirationTime := time.Now().Add(tm.ttl)
	claims := &Claims{
		UserID: userID,
		Name:   name,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == uuid.Nil || !claims.Role.IsValid() {
		return nil, errors.New("token is missing identity claims")
	}

	return claims, nil
}
