package services

import (
	"context"
	"errors"
	"strings"

	"sendcash-backend/internal/clients"
	"sendcash-backend/internal/metrics"
	"sendcash-backend/internal/models"
	"sendcash-backend/internal/repository"
	"sendcash-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ResolvedUser result of a username or address lookup
type ResolvedUser struct {
	Username  string `json:"username"`
	Address   string `json:"address"`
	IsPremium bool   `json:"isPremium"`
}

// UsernameService read-through cache in front of the UsernameRegistry.
// Cache rows may run ahead of or behind the chain; nothing here reconciles them.
type UsernameService struct {
	repo     repository.UsernameRepository
	registry clients.RegistryClient // nil disables chain fallback
	log      *logrus.Logger
}

// NewUsernameService creates a new UsernameService
func NewUsernameService(repo repository.UsernameRepository, registry clients.RegistryClient, log *logrus.Logger) *UsernameService {
	return &UsernameService{repo: repo, registry: registry, log: log}
}

// Resolve accepts "@name", "name" or a 0x address
func (s *UsernameService) Resolve(ctx context.Context, usernameOrAddress string) (*ResolvedUser, error) {
	if utils.IsEvmAddress(usernameOrAddress) {
		return s.ResolveAddress(ctx, usernameOrAddress)
	}
	return s.ResolveUsername(ctx, usernameOrAddress)
}

// ResolveUsername looks up the cache first and the registry on a miss
func (s *UsernameService) ResolveUsername(ctx context.Context, username string) (*ResolvedUser, error) {
	name := utils.NormalizeUsername(username)
	if !utils.IsValidUsername(name) {
		return nil, validationError("invalid username %q", username)
	}

	cached, err := s.repo.GetByUsername(ctx, name)
	if err == nil {
		metrics.UsernameCacheLookups.WithLabelValues("hit").Inc()
		return toResolved(cached), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.UsernameCacheLookups.WithLabelValues("error").Inc()
		return nil, persistenceError("get username", err)
	}
	metrics.UsernameCacheLookups.WithLabelValues("miss").Inc()

	if s.registry == nil {
		return nil, ErrNotFound
	}

	addr, err := s.registry.GetAddress(ctx, name)
	if err != nil {
		return nil, externalError("registry getAddress", err)
	}
	if addr == (common.Address{}) {
		metrics.UsernameCacheLookups.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	premium, err := s.registry.IsPremium(ctx, name)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"username": name,
			"error":    err.Error(),
		}).Warn("isPremium lookup failed, caching as non-premium")
		premium = false
	}

	record := &models.Username{
		Username:  name,
		Address:   strings.ToLower(addr.Hex()),
		IsPremium: premium,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		// the registry answer is still good; the next miss will retry the write
		s.log.WithFields(logrus.Fields{
			"username": name,
			"error":    err.Error(),
		}).Warn("failed to cache registry lookup")
	}
	return toResolved(record), nil
}

// ResolveAddress reverse lookup; cache first, registry on a miss
func (s *UsernameService) ResolveAddress(ctx context.Context, address string) (*ResolvedUser, error) {
	if !utils.IsEvmAddress(address) {
		return nil, validationError("invalid address %q", address)
	}
	addr := utils.NormalizeAddress(address)

	cached, err := s.repo.GetByAddress(ctx, addr)
	if err == nil {
		metrics.UsernameCacheLookups.WithLabelValues("hit").Inc()
		return toResolved(cached), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.UsernameCacheLookups.WithLabelValues("error").Inc()
		return nil, persistenceError("get username by address", err)
	}
	metrics.UsernameCacheLookups.WithLabelValues("miss").Inc()

	if s.registry == nil {
		return nil, ErrNotFound
	}

	name, err := s.registry.GetUsername(ctx, common.HexToAddress(addr))
	if err != nil {
		return nil, externalError("registry getUsername", err)
	}
	name = utils.NormalizeUsername(name)
	if name == "" {
		metrics.UsernameCacheLookups.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	// the forward lookup fills in isPremium and caches the row
	resolved, err := s.ResolveUsername(ctx, name)
	if err != nil {
		return &ResolvedUser{Username: name, Address: addr}, nil
	}
	return resolved, nil
}

// Register idempotent upsert keyed by the normalized username
func (s *UsernameService) Register(ctx context.Context, username, address string) (*ResolvedUser, error) {
	name := utils.NormalizeUsername(username)
	if !utils.IsValidUsername(name) {
		return nil, validationError("username must be 3-32 characters of a-z, 0-9 or _")
	}
	if !utils.IsEvmAddress(address) {
		return nil, validationError("invalid address %q", address)
	}

	record := &models.Username{
		Username: name,
		Address:  utils.NormalizeAddress(address),
	}
	if existing, err := s.repo.GetByUsername(ctx, name); err == nil {
		record.IsPremium = existing.IsPremium
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, persistenceError("register username", err)
	}

	s.log.WithFields(logrus.Fields{
		"username": name,
		"address":  record.Address,
	}).Info("username registered in cache")
	return toResolved(record), nil
}

// LinkTelegram binds a Telegram chat to a cached username
func (s *UsernameService) LinkTelegram(ctx context.Context, username string, chatID int64) (*ResolvedUser, error) {
	resolved, err := s.ResolveUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetTelegramChatID(ctx, resolved.Username, chatID); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrChatAlreadyLinked):
			return nil, validationError("@%s is already linked to another Telegram chat", resolved.Username)
		}
		return nil, persistenceError("link telegram chat", err)
	}
	return resolved, nil
}

// ChatIDForAddress returns the linked Telegram chat for an address, whichever
// of the address's usernames carries the link
func (s *UsernameService) ChatIDForAddress(ctx context.Context, address string) (int64, error) {
	record, err := s.repo.GetLinkedByAddress(ctx, utils.NormalizeAddress(address))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, persistenceError("get chat id", err)
	}
	if record.TelegramChatID == nil {
		return 0, ErrNotFound
	}
	return *record.TelegramChatID, nil
}

// UsernameForChat returns the username linked to a Telegram chat
func (s *UsernameService) UsernameForChat(ctx context.Context, chatID int64) (*ResolvedUser, error) {
	record, err := s.repo.GetByTelegramChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("get username by chat", err)
	}
	return toResolved(record), nil
}

// DisplayNameFor returns the cached username for an address without
// touching the registry; "" when unknown
func (s *UsernameService) DisplayNameFor(ctx context.Context, address string) string {
	record, err := s.repo.GetByAddress(ctx, utils.NormalizeAddress(address))
	if err != nil {
		return ""
	}
	return record.Username
}

func toResolved(r *models.Username) *ResolvedUser {
	return &ResolvedUser{
		Username:  r.Username,
		Address:   r.Address,
		IsPremium: r.IsPremium,
	}
}
