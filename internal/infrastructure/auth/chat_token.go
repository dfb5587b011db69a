package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ChatAudience is the audience of participant capability tokens
	ChatAudience = "groupbuy-chat"
	// ChatScope is the only scope a capability token carries
	ChatScope = "chat"
)

// ChatClaims grant one participant access to one group's chat and ledger entry
type ChatClaims struct {
	jwt.RegisteredClaims
	GroupID       string `json:"gid"`
	ParticipantID string `json:"pid"`
	Scope         string `json:"scope"`
}

// ChatTokenService issues participant capability tokens
type ChatTokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewChatTokenService creates a capability token service
func NewChatTokenService(secret string, ttl time.Duration) *ChatTokenService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ChatTokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for participantID of groupID
func (s *ChatTokenService) Issue(groupID, participantID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &ChatClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   participantID.String(),
			Audience:  jwt.ClaimStrings{ChatAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		GroupID:       groupID.String(),
		ParticipantID: participantID.String(),
		Scope:         ChatScope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate checks signature, audience, expiry and scope
func (s *ChatTokenService) Validate(tokenString string) (*ChatClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChatClaims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(ChatAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*ChatClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Scope != ChatScope {
		return nil, ErrInvalidTokenType
	}
	if _, err := uuid.Parse(claims.GroupID); err != nil {
		return nil, ErrInvalidClaims
	}
	if _, err := uuid.Parse(claims.ParticipantID); err != nil {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// GroupUUID returns the group the token is bound to
func (c *ChatClaims) GroupUUID() uuid.UUID {
	return uuid.MustParse(c.GroupID)
}

// ParticipantUUID returns the participant the token was issued to
func (c *ChatClaims) ParticipantUUID() uuid.UUID {
	return uuid.MustParse(c.ParticipantID)
}
