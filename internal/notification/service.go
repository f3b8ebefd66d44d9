package notification

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avisolabs/aviso/internal/metrics"
)

// Store is the persistence contract the service depends on. Both the
// Postgres and the in-memory adapters in internal/store satisfy it.
//
// Save must be optimistic: it rejects a record whose Version does not
// match the stored row with ErrVersionConflict.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	FindAllNotDeleted(ctx context.Context) ([]*Notification, error)
	FindByTargetUser(ctx context.Context, userID string) ([]*Notification, error)
	Save(ctx context.Context, n *Notification) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// Service enforces the notification state machine and targeting rules
// on top of a Store.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a notification service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Create validates targeting and persists a new notification in state SENT.
//
// targetUserIDs must be non-empty and each entry a v4 UUID string; the
// ids are not checked against an existing user. targetMails entries, if
// any, must be syntactically valid addresses.
func (s *Service) Create(ctx context.Context, targetUserIDs []string, typ Type, multimediaID *string, targetMails []string) (*Notification, error) {
	if len(targetUserIDs) == 0 {
		return nil, &ValidationError{Field: "target_user_ids", Reason: "must not be empty"}
	}
	for _, id := range targetUserIDs {
		u, err := uuid.Parse(id)
		if err != nil || u.Version() != 4 {
			return nil, &ValidationError{Field: "target_user_ids", Reason: fmt.Sprintf("%q is not a v4 UUID", id)}
		}
	}
	if !typ.Valid() {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown notification type %q", typ)}
	}
	for _, addr := range targetMails {
		if _, err := mail.ParseAddress(addr); err != nil {
			return nil, &ValidationError{Field: "target_mails", Reason: fmt.Sprintf("%q is not a valid address", addr)}
		}
	}

	n := &Notification{
		ID:            uuid.New(),
		TargetUserIDs: append([]string(nil), targetUserIDs...),
		TargetMails:   append([]string(nil), targetMails...),
		Type:          typ,
		Status:        StatusSent,
		MultimediaID:  multimediaID,
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	s.logger.Info("notification created",
		zap.String("id", n.ID.String()),
		zap.String("type", string(n.Type)),
		zap.Int("target_users", len(n.TargetUserIDs)),
		zap.Int("target_mails", len(n.TargetMails)),
	)
	metrics.RecordNotificationCreated(string(n.Type))

	return n, nil
}

// FindAll returns every non-deleted notification in store-native order.
func (s *Service) FindAll(ctx context.Context) ([]*Notification, error) {
	return s.store.FindAllNotDeleted(ctx)
}

// FindOne returns the non-deleted notification with the given id, or
// ErrNotFound.
func (s *Service) FindOne(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return s.store.FindByID(ctx, id)
}

// Update shallow-merges patch into the stored record and persists it.
//
// Targeting shape is deliberately not re-validated here: callers are
// trusted internal code and must not use Update to corrupt
// target_user_ids format.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Notification, error) {
	for {
		n, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if patch.TargetUserIDs != nil {
			n.TargetUserIDs = append([]string(nil), patch.TargetUserIDs...)
		}
		if patch.TargetMails != nil {
			n.TargetMails = append([]string(nil), patch.TargetMails...)
		}
		if patch.Type != nil {
			n.Type = *patch.Type
		}
		if patch.MultimediaID != nil {
			n.MultimediaID = patch.MultimediaID
		}

		if err := s.store.Save(ctx, n); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("update notification: %w", err)
		}

		s.logger.Info("notification updated", zap.String("id", id.String()))
		return n, nil
	}
}

// SoftDelete marks the notification as logically removed. Deleting an
// already-deleted or unknown id fails with ErrNotFound. The row persists
// but is excluded from every read path from now on.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("notification soft-deleted", zap.String("id", id.String()))
	return nil
}

// MarkAsOpened transitions SENT -> OPENED and records the viewer.
//
// The transition is not idempotent: opening an already-OPENED
// notification fails with ErrAlreadyOpened. Under concurrent calls the
// store's version check guarantees exactly one caller wins; the losers
// re-read, observe OPENED, and fail.
func (s *Service) MarkAsOpened(ctx context.Context, id uuid.UUID, viewerID string) (*Notification, error) {
	for {
		n, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if n.Status == StatusOpened {
			return nil, ErrAlreadyOpened
		}

		n.Status = StatusOpened
		viewer := viewerID
		n.ViewerID = &viewer

		if err := s.store.Save(ctx, n); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("mark notification opened: %w", err)
		}

		s.logger.Info("notification opened",
			zap.String("id", id.String()),
			zap.String("viewer_id", viewerID),
		)
		metrics.RecordNotificationOpened(string(n.Type))
		return n, nil
	}
}

// ForUser returns the non-deleted notifications whose target_user_ids
// contain userID. The store resolves this through its per-user index,
// not a full scan.
func (s *Service) ForUser(ctx context.Context, userID string) ([]*Notification, error) {
	return s.store.FindByTargetUser(ctx, userID)
}
