package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authorization errors.
var (
	ErrForbidden    = errors.New("channel access denied")
	ErrInvalidGrant = errors.New("invalid subscription grant")
	ErrUnknownChan  = errors.New("unknown channel")
)

// AccessChecker answers whether an agent may see a website's conversations.
type AccessChecker interface {
	CanAccessWebsite(ctx context.Context, userID, websiteID string) (bool, error)
}

type grantClaims struct {
	SocketID string `json:"sid"`
	Channel  string `json:"ch"`
	jwt.RegisteredClaims
}

// Authorizer issues and verifies short-lived subscription grants for private channels.
type Authorizer struct {
	access AccessChecker
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthorizer creates an authorizer signing grants with secret.
func NewAuthorizer(access AccessChecker, secret string, ttl time.Duration) *Authorizer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Authorizer{access: access, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Authorize checks that userID may subscribe to channel and returns a grant bound
// to the socket. Public channels need no grant and return "".
func (a *Authorizer) Authorize(ctx context.Context, userID, socketID, channel string) (string, error) {
	if userID == "" {
		return "", ErrForbidden
	}
	kind, id := ParseChannel(channel)
	switch kind {
	case ChannelVisitor:
		return "", nil
	case ChannelUser:
		if id != userID {
			return "", ErrForbidden
		}
	case ChannelAdmin:
		ok, err := a.access.CanAccessWebsite(ctx, userID, id)
		if err != nil {
			return "", fmt.Errorf("check website access: %w", err)
		}
		if !ok {
			return "", ErrForbidden
		}
	default:
		return "", ErrUnknownChan
	}

	now := a.now()
	claims := grantClaims{
		SocketID: socketID,
		Channel:  channel,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign grant: %w", err)
	}
	return signed, nil
}

// VerifySubscription checks a subscription request. Public channels always pass.
func (a *Authorizer) VerifySubscription(grant, socketID, channel string) error {
	kind, _ := ParseChannel(channel)
	if kind == ChannelUnknown {
		return ErrUnknownChan
	}
	if !IsPrivate(channel) {
		return nil
	}
	if grant == "" {
		return ErrInvalidGrant
	}
	claims, err := a.parse(grant)
	if err != nil {
		return err
	}
	if claims.Channel != channel || claims.SocketID != socketID {
		return ErrInvalidGrant
	}
	return nil
}

// GrantChannel returns the channel a grant was issued for, without checking the socket.
func (a *Authorizer) GrantChannel(grant string) (string, error) {
	claims, err := a.parse(grant)
	if err != nil {
		return "", err
	}
	return claims.Channel, nil
}

func (a *Authorizer) parse(grant string) (*grantClaims, error) {
	claims := &grantClaims{}
	_, err := jwt.ParseWithClaims(grant, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}
	return claims, nil
}
