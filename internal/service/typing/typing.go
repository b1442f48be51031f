// Package typing stores ephemeral typing flags per conversation participant.
package typing

import (
	"context"
	"errors"
	"time"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const DefaultFreshness = 5 * time.Second

var ErrInvalidActor = errors.New("typing: exactly one of userId or widgetCustomerId is required")

// Actor identifies a participant. Exactly one field is set.
type Actor struct {
	UserID           string
	WidgetCustomerID string
}

func (a Actor) valid() bool {
	return (a.UserID == "") != (a.WidgetCustomerID == "")
}

func (a Actor) matches(item model.TypingItem) bool {
	return a.UserID == item.UserID && a.WidgetCustomerID == item.WidgetCustomerID
}

type Repository interface {
	Upsert(ctx context.Context, item model.TypingItem) error
	List(ctx context.Context, conversationID string) ([]model.TypingItem, error)
}

type Service struct {
	repo      Repository
	now       func() time.Time
	freshness time.Duration
}

func New(db *database.Database, freshness time.Duration) *Service {
	return NewWithRepository(NewDynamoRepository(db), time.Now, freshness)
}

func NewWithRepository(repo Repository, now func() time.Time, freshness time.Duration) *Service {
	if now == nil {
		now = time.Now
	}
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Service{repo: repo, now: now, freshness: freshness}
}

// Set records whether actor is typing. Stopping is stored, not deleted.
func (s *Service) Set(ctx context.Context, conversationID string, actor Actor, isTyping bool) (model.TypingItem, error) {
	if !actor.valid() {
		return model.TypingItem{}, ErrInvalidActor
	}

	item := model.TypingItem{
		PK:               model.TypingPK(conversationID, actor.UserID, actor.WidgetCustomerID),
		ConversationID:   conversationID,
		UserID:           actor.UserID,
		WidgetCustomerID: actor.WidgetCustomerID,
		IsTyping:         isTyping,
		UpdatedAt:        model.FormatTime(s.now()),
	}
	if err := s.repo.Upsert(ctx, item); err != nil {
		return model.TypingItem{}, err
	}
	return item, nil
}

// Active lists participants typing within the freshness window, leaving out
// the caller.
func (s *Service) Active(ctx context.Context, conversationID string, caller Actor) ([]model.TypingItem, error) {
	items, err := s.repo.List(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-s.freshness)
	out := make([]model.TypingItem, 0, len(items))
	for _, item := range items {
		if !item.IsTyping || caller.matches(item) {
			continue
		}
		updated := model.ParseTime(item.UpdatedAt)
		if updated.IsZero() || updated.Before(cutoff) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) Upsert(ctx context.Context, item model.TypingItem) error {
	return r.db.Client.PutItem(ctx, model.TypingTable, item)
}

func (r *DynamoRepository) List(ctx context.Context, conversationID string) ([]model.TypingItem, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		model.TypingTable,
		aws.String(model.IndexByConversation),
		"conversationId = :conversationId",
		aws.String("isTyping = :typing"),
		map[string]types.AttributeValue{
			":conversationId": database.AttrString(conversationID),
			":typing":         database.AttrBool(true),
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	return database.UnmarshalAll[model.TypingItem](items)
}
