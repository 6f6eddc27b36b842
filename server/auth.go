package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"starfall-server/protocol"
)

const maxPasswordLen = 72 // bcrypt limit

// SeatClaims is what a seat token proves
type SeatClaims struct {
	SID  string
	Seat string
}

// Auth mints and checks seat tokens and match passwords
type Auth struct {
	jwtSecret []byte
	ttl       time.Duration
	cost      int
	now       func() time.Time
}

// NewAuth creates an Auth. An empty secret is replaced by a random one.
func NewAuth(secret []byte, ttl time.Duration, cost int) *Auth {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic("failed to generate JWT secret: " + err.Error())
		}
	}
	return &Auth{jwtSecret: secret, ttl: ttl, cost: cost, now: time.Now}
}

// IssueSeat signs a token for a player seat. Spectators get none.
func (a *Auth) IssueSeat(sid, seat string) (string, error) {
	if seat != protocol.SeatA && seat != protocol.SeatB {
		return "", fmt.Errorf("no token for seat %q", seat)
	}
	now := a.now()
	claims := jwt.MapClaims{
		"sid":  sid,
		"seat": seat,
		"exp":  now.Add(a.ttl).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ValidateSeat checks a seat token and returns its claims
func (a *Auth) ValidateSeat(tokenStr string) (SeatClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return SeatClaims{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return SeatClaims{}, errors.New("invalid token")
	}
	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return SeatClaims{}, errors.New("invalid token claims")
	}
	seat, ok := claims["seat"].(string)
	if !ok || (seat != protocol.SeatA && seat != protocol.SeatB) {
		return SeatClaims{}, errors.New("invalid token claims")
	}
	return SeatClaims{SID: sid, Seat: seat}, nil
}

// HashPassword hashes a match password; empty stays empty
func (a *Auth) HashPassword(pass string) (string, error) {
	if pass == "" {
		return "", nil
	}
	if len(pass) > maxPasswordLen {
		return "", fmt.Errorf("password longer than %d bytes", maxPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), a.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether pass opens a match with the given hash
func (a *Auth) CheckPassword(hash, pass string) bool {
	if hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) == nil
}
