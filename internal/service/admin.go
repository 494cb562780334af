package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"musicfeed/internal/domain"
)

// AdminService gates curation operations behind a shared secret.
type AdminService struct {
	adminKey  string
	items     ItemStore
	refresher Refresher
	logger    *slog.Logger
}

func NewAdminService(adminKey string, items ItemStore, refresher Refresher, logger *slog.Logger) *AdminService {
	return &AdminService{
		adminKey:  adminKey,
		items:     items,
		refresher: refresher,
		logger:    logger.With("component", "admin"),
	}
}

// Authorize fails when no secret is configured or key does not match it.
func (s *AdminService) Authorize(key string) error {
	if s.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) != 1 {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *AdminService) SetPinned(ctx context.Context, key string, itemID int64, pinned bool) error {
	if err := s.Authorize(key); err != nil {
		return err
	}
	if err := s.items.SetPinned(ctx, itemID, pinned); err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	s.logger.Info("item pin changed", "item_id", itemID, "pinned", pinned)
	return nil
}

// SetNote stores a trimmed note; an empty note clears it.
func (s *AdminService) SetNote(ctx context.Context, key string, itemID int64, note string) error {
	if err := s.Authorize(key); err != nil {
		return err
	}

	var value *string
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		value = &trimmed
	}
	if err := s.items.SetNote(ctx, itemID, value); err != nil {
		return fmt.Errorf("set note: %w", err)
	}
	s.logger.Info("item note changed", "item_id", itemID, "cleared", value == nil)
	return nil
}

func (s *AdminService) TriggerRefresh(ctx context.Context, key string, artistID int64) (*domain.RefreshReport, error) {
	if err := s.Authorize(key); err != nil {
		return nil, err
	}
	s.logger.Info("manual refresh triggered", "artist_id", artistID)
	return s.refresher.RefreshArtist(ctx, artistID)
}
