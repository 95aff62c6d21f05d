package services

import (
	"context"
	"errors"
	"time"

	"agentpost/internal/store"
	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AdminService guards the operator surface: token issuance, bulk agent
// purge, and the index repair job.
type AdminService struct {
	store        store.RecordStore
	inbox        *InboxService
	jwtSecret    []byte
	passwordHash string
	tokenTTL     time.Duration
	log          *logger.Logger
}

func NewAdminService(s store.RecordStore, inbox *InboxService, jwtSecret, passwordHash string, tokenTTL time.Duration, log *logger.Logger) *AdminService {
	return &AdminService{
		store:        s,
		inbox:        inbox,
		jwtSecret:    []byte(jwtSecret),
		passwordHash: passwordHash,
		tokenTTL:     tokenTTL,
		log:          log,
	}
}

type AdminClaims struct {
	jwt.RegisteredClaims
}

// Login exchanges the operator password for a bearer token.
func (s *AdminService) Login(password string) (string, error) {
	if len(s.jwtSecret) == 0 || s.passwordHash == "" {
		return "", agentpost_errors.ErrServiceUnavailable
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", agentpost_errors.ErrUnauthorized
	}

	now := time.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ParseToken validates an admin bearer token.
func (s *AdminService) ParseToken(tokenString string) error {
	parsed, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, agentpost_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return agentpost_errors.ErrUnauthorized
	}
	return nil
}

// PurgeAgent removes an agent and every message delivered to it, including
// replies and both indices. Outbox entries held by senders keep pointing at
// deleted ids; listings tolerate the dangling references by dropping them.
func (s *AdminService) PurgeAgent(ctx context.Context, address string) (int, error) {
	if _, err := s.store.GetAgent(ctx, address); err != nil {
		if errors.Is(err, agentpost_errors.ErrNotFound) {
			return 0, agentpost_errors.ErrRecipientNotFound
		}
		return 0, err
	}

	msgs, err := s.store.ScanMessagesByRecipient(ctx, address)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, msg := range msgs {
		if err := s.store.DeleteReply(ctx, msg.ID); err != nil {
			s.log.Warnf("purge: deleting reply %s: %v", msg.ID, err)
		}
		if err := s.store.DeleteMessage(ctx, msg.ID); err != nil {
			s.log.Warnf("purge: deleting message %s: %v", msg.ID, err)
			continue
		}
		purged++
	}
	if err := s.store.DeleteInboxIndex(ctx, address); err != nil {
		return purged, err
	}
	if err := s.store.DeleteOutboxIndex(ctx, address); err != nil {
		return purged, err
	}
	if err := s.store.DeleteAgent(ctx, address); err != nil {
		return purged, err
	}
	s.log.Infof("purged agent %s: %d messages removed", address, purged)
	return purged, nil
}

// RebuildInboxIndex re-derives an agent's inbox index from stored messages.
func (s *AdminService) RebuildInboxIndex(ctx context.Context, address string) (int, int, error) {
	idx, err := s.inbox.RebuildIndex(ctx, address)
	if err != nil {
		return 0, 0, err
	}
	return len(idx.MessageIDs), idx.UnreadCount, nil
}
