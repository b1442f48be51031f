package model

type PreChatFieldType string

const (
	FieldText     PreChatFieldType = "text"
	FieldEmail    PreChatFieldType = "email"
	FieldPhone    PreChatFieldType = "phone"
	FieldSelect   PreChatFieldType = "select"
	FieldCheckbox PreChatFieldType = "checkbox"
	FieldTextarea PreChatFieldType = "textarea"
)

type PreChatFormField struct {
	ID          string           `dynamodbav:"id" json:"id"`
	Type        PreChatFieldType `dynamodbav:"type" json:"type"`
	Label       string           `dynamodbav:"label" json:"label"`
	Placeholder string           `dynamodbav:"placeholder,omitempty" json:"placeholder,omitempty"`
	Required    bool             `dynamodbav:"required" json:"required"`
	Options     []string         `dynamodbav:"options,omitempty" json:"options,omitempty"`
	Validation  string           `dynamodbav:"validation,omitempty" json:"validation,omitempty"`
	Order       int              `dynamodbav:"order" json:"order"`
}

type DepartmentItem struct {
	PK             string             `dynamodbav:"pk" json:"-"`
	DepartmentID   string             `dynamodbav:"departmentId" json:"id"`
	OrganizationID string             `dynamodbav:"organizationId" json:"organization_id"`
	Name           string             `dynamodbav:"name" json:"name"`
	Description    string             `dynamodbav:"description,omitempty" json:"description,omitempty"`
	IsActive       bool               `dynamodbav:"isActive" json:"is_active"`
	PreChatForm    []PreChatFormField `dynamodbav:"preChatForm,omitempty" json:"pre_chat_form,omitempty"`
}

func DepartmentPK(organizationID, departmentID string) string {
	return OrganizationScopedPK(organizationID, departmentID)
}
