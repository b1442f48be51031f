package conversation

import (
	"context"
	"errors"
	"sort"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrNotFound = errors.New("conversation repository: not found")
	// ErrConflict means the row exists but was not in the state the write
	// was conditioned on.
	ErrConflict = errors.New("conversation repository: conflict")
)

// TicketUpdate carries the ticket fields to overwrite. Nil fields are kept.
type TicketUpdate struct {
	Priority *string
	Tags     *[]string
	Notes    *string
}

func (t TicketUpdate) empty() bool {
	return t.Priority == nil && t.Tags == nil && t.Notes == nil
}

type Repository interface {
	GetAgent(ctx context.Context, organizationID, userID string) (model.AgentItem, error)
	UpsertWidgetCustomer(ctx context.Context, customer model.WidgetCustomerItem) (model.WidgetCustomerItem, error)

	CreateConversation(ctx context.Context, conversation model.ConversationItem) error
	GetConversation(ctx context.Context, organizationID, conversationID string) (model.ConversationItem, error)
	ListConversations(ctx context.Context, organizationID string) ([]model.ConversationItem, error)
	// ActivateConversation moves a waiting conversation to active and
	// assigns agentID. ErrConflict when it is no longer waiting.
	ActivateConversation(ctx context.Context, organizationID, conversationID, agentID, now string) (model.ConversationItem, error)
	TouchConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error)
	// CloseConversation and EscalateConversation return ErrConflict for a
	// closed conversation.
	CloseConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error)
	EscalateConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error)
	AssignAgent(ctx context.Context, organizationID, conversationID, agentID, now string) (model.ConversationItem, error)
	UpdateTicket(ctx context.Context, organizationID, conversationID string, update TicketUpdate, now string) (model.ConversationItem, error)

	// CreateMessage stores message only while its conversation exists and is
	// not closed. ErrConflict otherwise.
	CreateMessage(ctx context.Context, message model.MessageItem) error
	GetMessage(ctx context.Context, conversationID, messageID string) (model.MessageItem, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.MessageItem, error)
	// UpdateMessageStatus only advances status. A regression is ErrConflict.
	UpdateMessageStatus(ctx context.Context, conversationID, messageID string, status model.MessageStatus) (model.MessageItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

var statusName = map[string]string{"#status": "status"}

func (r *DynamoRepository) GetAgent(ctx context.Context, organizationID, userID string) (model.AgentItem, error) {
	var agent model.AgentItem
	if err := r.db.Client.GetItem(ctx, model.AgentsTable, database.Key(model.AgentPK(organizationID, userID)), &agent); err != nil {
		return model.AgentItem{}, notFound(err)
	}
	return agent, nil
}

// UpsertWidgetCustomer keeps the first seen time and id of an existing
// profile and refreshes contact details that were supplied.
func (r *DynamoRepository) UpsertWidgetCustomer(ctx context.Context, customer model.WidgetCustomerItem) (model.WidgetCustomerItem, error) {
	updateExpr := "SET customerId = if_not_exists(customerId, :customerId), firstSeenAt = if_not_exists(firstSeenAt, :now), lastSeenAt = :now, organizationId = :organizationId, visitorId = :visitorId"
	values := map[string]types.AttributeValue{
		":customerId":     database.AttrString(customer.CustomerID),
		":now":            database.AttrString(customer.LastSeenAt),
		":organizationId": database.AttrString(customer.OrganizationID),
		":visitorId":      database.AttrString(customer.VisitorID),
	}
	names := map[string]string{}
	if customer.Name != "" {
		updateExpr += ", #name = :name"
		values[":name"] = database.AttrString(customer.Name)
		names["#name"] = "name"
	}
	if customer.Email != "" {
		updateExpr += ", email = :email"
		values[":email"] = database.AttrString(customer.Email)
	}
	if customer.Phone != "" {
		updateExpr += ", phone = :phone"
		values[":phone"] = database.AttrString(customer.Phone)
	}
	if len(customer.Metadata) > 0 {
		av, err := attributevalue.Marshal(customer.Metadata)
		if err != nil {
			return model.WidgetCustomerItem{}, err
		}
		updateExpr += ", metadata = :metadata"
		values[":metadata"] = av
	}

	var out model.WidgetCustomerItem
	err := r.db.Client.UpdateItem(
		ctx,
		model.WidgetCustomersTable,
		database.Key(model.WidgetCustomerPK(customer.OrganizationID, customer.VisitorID)),
		updateExpr,
		values,
		names,
		&out,
	)
	if err != nil {
		return model.WidgetCustomerItem{}, err
	}
	return out, nil
}

func (r *DynamoRepository) CreateConversation(ctx context.Context, conversation model.ConversationItem) error {
	err := r.db.Client.PutItemIf(ctx, model.ConversationsTable, conversation, &database.Condition{
		Expression: "attribute_not_exists(pk)",
	})
	if database.IsConditionFailed(err) {
		return ErrConflict
	}
	return err
}

func (r *DynamoRepository) GetConversation(ctx context.Context, organizationID, conversationID string) (model.ConversationItem, error) {
	var conversation model.ConversationItem
	err := r.db.Client.GetItem(ctx, model.ConversationsTable, database.Key(model.ConversationPK(organizationID, conversationID)), &conversation)
	if err != nil {
		return model.ConversationItem{}, notFound(err)
	}
	return conversation, nil
}

func (r *DynamoRepository) ListConversations(ctx context.Context, organizationID string) ([]model.ConversationItem, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		model.ConversationsTable,
		aws.String(model.IndexByOrganization),
		"organizationId = :organizationId",
		nil,
		map[string]types.AttributeValue{
			":organizationId": database.AttrString(organizationID),
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	return database.UnmarshalAll[model.ConversationItem](items)
}

func (r *DynamoRepository) ActivateConversation(ctx context.Context, organizationID, conversationID, agentID, now string) (model.ConversationItem, error) {
	return r.updateConversation(ctx, organizationID, conversationID,
		"SET #status = :active, agentId = :agentId, assignedAt = if_not_exists(assignedAt, :now), updatedAt = :now",
		map[string]types.AttributeValue{
			":active":  database.AttrString(string(model.ConversationStatusActive)),
			":agentId": database.AttrString(agentID),
			":now":     database.AttrString(now),
		},
		&database.Condition{
			Expression: "attribute_exists(pk) AND #status = :waiting",
			Values: map[string]types.AttributeValue{
				":waiting": database.AttrString(string(model.ConversationStatusWaiting)),
			},
			Names: statusName,
		},
	)
}

func (r *DynamoRepository) TouchConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error) {
	return r.updateConversation(ctx, organizationID, conversationID,
		"SET updatedAt = :now",
		map[string]types.AttributeValue{
			":now": database.AttrString(now),
		},
		&database.Condition{Expression: "attribute_exists(pk)"},
	)
}

func (r *DynamoRepository) CloseConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error) {
	return r.updateConversation(ctx, organizationID, conversationID,
		"SET #status = :closed, closedAt = :now, updatedAt = :now",
		map[string]types.AttributeValue{
			":closed": database.AttrString(string(model.ConversationStatusClosed)),
			":now":    database.AttrString(now),
		},
		notClosed(),
	)
}

func (r *DynamoRepository) EscalateConversation(ctx context.Context, organizationID, conversationID, now string) (model.ConversationItem, error) {
	return r.updateConversation(ctx, organizationID, conversationID,
		"SET #status = :ticket, updatedAt = :now",
		map[string]types.AttributeValue{
			":ticket": database.AttrString(string(model.ConversationStatusTicket)),
			":now":    database.AttrString(now),
		},
		notClosed(),
	)
}

func (r *DynamoRepository) AssignAgent(ctx context.Context, organizationID, conversationID, agentID, now string) (model.ConversationItem, error) {
	return r.updateConversation(ctx, organizationID, conversationID,
		"SET agentId = :agentId, assignedAt = if_not_exists(assignedAt, :now), updatedAt = :now",
		map[string]types.AttributeValue{
			":agentId": database.AttrString(agentID),
			":now":     database.AttrString(now),
		},
		notClosed(),
	)
}

func (r *DynamoRepository) UpdateTicket(ctx context.Context, organizationID, conversationID string, update TicketUpdate, now string) (model.ConversationItem, error) {
	updateExpr := "SET updatedAt = :now"
	values := map[string]types.AttributeValue{
		":now": database.AttrString(now),
	}
	if update.Priority != nil {
		updateExpr += ", ticketPriority = :priority"
		values[":priority"] = database.AttrString(*update.Priority)
	}
	if update.Tags != nil {
		av, err := attributevalue.Marshal(*update.Tags)
		if err != nil {
			return model.ConversationItem{}, err
		}
		updateExpr += ", ticketTags = :tags"
		values[":tags"] = av
	}
	if update.Notes != nil {
		updateExpr += ", ticketNotes = :notes"
		values[":notes"] = database.AttrString(*update.Notes)
	}
	return r.updateConversation(ctx, organizationID, conversationID, updateExpr, values,
		&database.Condition{Expression: "attribute_exists(pk)"})
}

func (r *DynamoRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	err := r.db.Client.TransactWrite(ctx,
		[]database.TransactPut{{
			TableName: model.MessagesTable,
			Item:      message,
			Condition: &database.Condition{Expression: "attribute_not_exists(pk)"},
		}},
		[]database.TransactCheck{{
			TableName: model.ConversationsTable,
			Key:       database.Key(model.ConversationPK(message.OrganizationID, message.ConversationID)),
			Condition: *notClosed(),
		}},
	)
	if database.IsConditionFailed(err) {
		return ErrConflict
	}
	return err
}

func (r *DynamoRepository) GetMessage(ctx context.Context, conversationID, messageID string) (model.MessageItem, error) {
	var message model.MessageItem
	err := r.db.Client.GetItem(ctx, model.MessagesTable, database.Key(model.MessagePK(conversationID, messageID)), &message)
	if err != nil {
		return model.MessageItem{}, notFound(err)
	}
	return message, nil
}

func (r *DynamoRepository) ListMessages(ctx context.Context, conversationID string) ([]model.MessageItem, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		model.MessagesTable,
		aws.String(model.IndexByConversation),
		"conversationId = :conversationId",
		nil,
		map[string]types.AttributeValue{
			":conversationId": database.AttrString(conversationID),
		},
		nil,
	)
	if err != nil {
		return nil, err
	}

	messages, err := database.UnmarshalAll[model.MessageItem](items)
	if err != nil {
		return nil, err
	}
	SortMessages(messages)
	return messages, nil
}

func (r *DynamoRepository) UpdateMessageStatus(ctx context.Context, conversationID, messageID string, status model.MessageStatus) (model.MessageItem, error) {
	lower := make([]types.AttributeValue, 0, 2)
	for _, s := range []model.MessageStatus{model.MessageStatusSent, model.MessageStatusDelivered} {
		if s.Rank() < status.Rank() {
			lower = append(lower, database.AttrString(string(s)))
		}
	}
	if len(lower) == 0 {
		return model.MessageItem{}, ErrConflict
	}

	cond := &database.Condition{
		Expression: "attribute_exists(pk) AND #status IN (:s0)",
		Values:     map[string]types.AttributeValue{":s0": lower[0]},
		Names:      statusName,
	}
	if len(lower) == 2 {
		cond.Expression = "attribute_exists(pk) AND #status IN (:s0, :s1)"
		cond.Values[":s1"] = lower[1]
	}

	var message model.MessageItem
	err := r.db.Client.UpdateItemIf(
		ctx,
		model.MessagesTable,
		database.Key(model.MessagePK(conversationID, messageID)),
		"SET #status = :status",
		map[string]types.AttributeValue{
			":status": database.AttrString(string(status)),
		},
		statusName,
		cond,
		&message,
	)
	if database.IsConditionFailed(err) {
		return model.MessageItem{}, ErrConflict
	}
	if err != nil {
		return model.MessageItem{}, err
	}
	return message, nil
}

func (r *DynamoRepository) updateConversation(ctx context.Context, organizationID, conversationID, updateExpr string, values map[string]types.AttributeValue, cond *database.Condition) (model.ConversationItem, error) {
	var conversation model.ConversationItem
	err := r.db.Client.UpdateItemIf(
		ctx,
		model.ConversationsTable,
		database.Key(model.ConversationPK(organizationID, conversationID)),
		updateExpr,
		values,
		nil,
		cond,
		&conversation,
	)
	if database.IsConditionFailed(err) {
		return model.ConversationItem{}, ErrConflict
	}
	if err != nil {
		return model.ConversationItem{}, err
	}
	return conversation, nil
}

func notClosed() *database.Condition {
	return &database.Condition{
		Expression: "attribute_exists(pk) AND #status <> :closed",
		Values: map[string]types.AttributeValue{
			":closed": database.AttrString(string(model.ConversationStatusClosed)),
		},
		Names: statusName,
	}
}

// SortMessages orders by creation time, then insertion sequence, then id.
func SortMessages(messages []model.MessageItem) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.MessageID < b.MessageID
	})
}

func notFound(err error) error {
	if database.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
