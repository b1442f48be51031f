package session

import (
	"context"
	"errors"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrNotFound = errors.New("session repository: not found")
	ErrConflict = errors.New("session repository: conflict")
)

// TouchParams describes a reuse of an existing session. Empty ExpiresAt
// leaves the expiry untouched.
type TouchParams struct {
	SessionID  string
	SlotPK     string
	LastSeenAt string
	CurrentURL string
	ExpiresAt  string
}

type Repository interface {
	GetWidget(ctx context.Context, widgetKey string) (model.WidgetItem, error)
	GetSession(ctx context.Context, sessionID string) (model.WidgetSessionItem, error)
	GetSessionByToken(ctx context.Context, token string) (model.WidgetSessionItem, error)
	GetSlot(ctx context.Context, widgetKey, visitorID string) (model.SessionSlotItem, error)
	// CreateSession stores the session and claims its slot atomically. The
	// slot may be taken when it is free, expired or held by replacing.
	// Otherwise it returns ErrConflict.
	CreateSession(ctx context.Context, session model.WidgetSessionItem, slot model.SessionSlotItem, now, replacing string) error
	TouchSession(ctx context.Context, params TouchParams) (model.WidgetSessionItem, error)
	DeactivateSession(ctx context.Context, sessionID string) error
	// AttachConversation links conversationID to the session when it has no
	// conversation yet or still points at replacing. Anything else is
	// ErrConflict.
	AttachConversation(ctx context.Context, sessionID, conversationID, replacing string) (model.WidgetSessionItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) GetWidget(ctx context.Context, widgetKey string) (model.WidgetItem, error) {
	var widget model.WidgetItem
	if err := r.db.Client.GetItem(ctx, model.WidgetsTable, database.Key(widgetKey), &widget); err != nil {
		return model.WidgetItem{}, notFound(err)
	}
	return widget, nil
}

func (r *DynamoRepository) GetSession(ctx context.Context, sessionID string) (model.WidgetSessionItem, error) {
	var session model.WidgetSessionItem
	if err := r.db.Client.GetItem(ctx, model.WidgetSessionsTable, database.Key(sessionID), &session); err != nil {
		return model.WidgetSessionItem{}, notFound(err)
	}
	return session, nil
}

func (r *DynamoRepository) GetSessionByToken(ctx context.Context, token string) (model.WidgetSessionItem, error) {
	items, err := r.db.Client.QueryItems(
		ctx,
		model.WidgetSessionsTable,
		aws.String(model.IndexByToken),
		"sessionToken = :token",
		map[string]types.AttributeValue{
			":token": database.AttrString(token),
		},
		nil,
		nil,
	)
	if err != nil {
		return model.WidgetSessionItem{}, err
	}
	if len(items) == 0 {
		return model.WidgetSessionItem{}, ErrNotFound
	}

	sessions, err := database.UnmarshalAll[model.WidgetSessionItem](items)
	if err != nil {
		return model.WidgetSessionItem{}, err
	}
	// the index is eventually consistent; confirm against the base table
	return r.GetSession(ctx, sessions[0].SessionID)
}

func (r *DynamoRepository) GetSlot(ctx context.Context, widgetKey, visitorID string) (model.SessionSlotItem, error) {
	var slot model.SessionSlotItem
	err := r.db.Client.GetItem(ctx, model.SessionSlotsTable, database.Key(model.SessionSlotPK(widgetKey, visitorID)), &slot)
	if err != nil {
		return model.SessionSlotItem{}, notFound(err)
	}
	return slot, nil
}

func (r *DynamoRepository) CreateSession(ctx context.Context, session model.WidgetSessionItem, slot model.SessionSlotItem, now, replacing string) error {
	slotCond := &database.Condition{
		Expression: "attribute_not_exists(pk) OR expiresAt <= :now",
		Values: map[string]types.AttributeValue{
			":now": database.AttrString(now),
		},
	}
	if replacing != "" {
		slotCond.Expression += " OR sessionId = :replacing"
		slotCond.Values[":replacing"] = database.AttrString(replacing)
	}

	err := r.db.Client.TransactPutItems(ctx,
		database.TransactPut{
			TableName: model.WidgetSessionsTable,
			Item:      session,
			Condition: &database.Condition{Expression: "attribute_not_exists(pk)"},
		},
		database.TransactPut{
			TableName: model.SessionSlotsTable,
			Item:      slot,
			Condition: slotCond,
		},
	)
	if database.IsConditionFailed(err) {
		return ErrConflict
	}
	return err
}

func (r *DynamoRepository) TouchSession(ctx context.Context, params TouchParams) (model.WidgetSessionItem, error) {
	updateExpr := "SET lastSeenAt = :lastSeenAt"
	values := map[string]types.AttributeValue{
		":lastSeenAt": database.AttrString(params.LastSeenAt),
	}
	if params.CurrentURL != "" {
		updateExpr += ", currentUrl = :currentUrl"
		values[":currentUrl"] = database.AttrString(params.CurrentURL)
	}
	if params.ExpiresAt != "" {
		updateExpr += ", expiresAt = :expiresAt"
		values[":expiresAt"] = database.AttrString(params.ExpiresAt)
	}

	var session model.WidgetSessionItem
	err := r.db.Client.UpdateItemIf(
		ctx,
		model.WidgetSessionsTable,
		database.Key(params.SessionID),
		updateExpr,
		values,
		nil,
		&database.Condition{
			Expression: "attribute_exists(pk) AND isActive = :active",
			Values: map[string]types.AttributeValue{
				":active": database.AttrBool(true),
			},
		},
		&session,
	)
	if database.IsConditionFailed(err) {
		return model.WidgetSessionItem{}, ErrConflict
	}
	if err != nil {
		return model.WidgetSessionItem{}, err
	}

	if params.ExpiresAt != "" && params.SlotPK != "" {
		err = r.db.Client.UpdateItemIf(
			ctx,
			model.SessionSlotsTable,
			database.Key(params.SlotPK),
			"SET expiresAt = :expiresAt",
			map[string]types.AttributeValue{
				":expiresAt": database.AttrString(params.ExpiresAt),
			},
			nil,
			&database.Condition{
				Expression: "sessionId = :sessionId",
				Values: map[string]types.AttributeValue{
					":sessionId": database.AttrString(params.SessionID),
				},
			},
			nil,
		)
		// a slot taken over by a newer session keeps its own expiry
		if err != nil && !database.IsConditionFailed(err) {
			return model.WidgetSessionItem{}, err
		}
	}
	return session, nil
}

func (r *DynamoRepository) DeactivateSession(ctx context.Context, sessionID string) error {
	err := r.db.Client.UpdateItemIf(
		ctx,
		model.WidgetSessionsTable,
		database.Key(sessionID),
		"SET isActive = :inactive",
		map[string]types.AttributeValue{
			":inactive": database.AttrBool(false),
		},
		nil,
		&database.Condition{Expression: "attribute_exists(pk)"},
		nil,
	)
	if database.IsConditionFailed(err) {
		return ErrNotFound
	}
	return err
}

func (r *DynamoRepository) AttachConversation(ctx context.Context, sessionID, conversationID, replacing string) (model.WidgetSessionItem, error) {
	cond := &database.Condition{
		Expression: "attribute_exists(pk) AND isActive = :active AND (attribute_not_exists(conversationId) OR conversationId = :conversationId)",
		Values: map[string]types.AttributeValue{
			":active": database.AttrBool(true),
		},
	}
	if replacing != "" {
		cond.Expression = "attribute_exists(pk) AND isActive = :active AND (attribute_not_exists(conversationId) OR conversationId = :conversationId OR conversationId = :replacing)"
		cond.Values[":replacing"] = database.AttrString(replacing)
	}

	var session model.WidgetSessionItem
	err := r.db.Client.UpdateItemIf(
		ctx,
		model.WidgetSessionsTable,
		database.Key(sessionID),
		"SET conversationId = :conversationId",
		map[string]types.AttributeValue{
			":conversationId": database.AttrString(conversationID),
		},
		nil,
		cond,
		&session,
	)
	if database.IsConditionFailed(err) {
		return model.WidgetSessionItem{}, ErrConflict
	}
	if err != nil {
		return model.WidgetSessionItem{}, err
	}
	return session, nil
}

func notFound(err error) error {
	if database.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
