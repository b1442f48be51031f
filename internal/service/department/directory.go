package department

import (
	"context"
	"errors"
	"fmt"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/env"
	"chatdesk-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/supabase-community/supabase-go"
)

var ErrNotFound = errors.New("department directory: not found")

const (
	SourceDynamoDB = "dynamodb"
	SourceSupabase = "supabase"
)

// Directory is the read-only source of departments and their pre-chat forms.
type Directory interface {
	List(ctx context.Context, organizationID string) ([]model.DepartmentItem, error)
	Get(ctx context.Context, organizationID, departmentID string) (model.DepartmentItem, error)
}

// NewDirectory picks the backing store named by cfg.Source.
func NewDirectory(cfg env.DepartmentsConfig, db *database.Database) (Directory, error) {
	switch cfg.Source {
	case "", SourceDynamoDB:
		return NewDynamoDirectory(db), nil
	case SourceSupabase:
		return NewSupabaseDirectory(cfg.SupabaseURL, cfg.SupabaseKey)
	default:
		return nil, fmt.Errorf("unknown departments source %q", cfg.Source)
	}
}

type DynamoDirectory struct {
	db *database.Database
}

func NewDynamoDirectory(db *database.Database) *DynamoDirectory {
	return &DynamoDirectory{db: db}
}

func (d *DynamoDirectory) List(ctx context.Context, organizationID string) ([]model.DepartmentItem, error) {
	items, err := d.db.Client.QueryAll(
		ctx,
		model.DepartmentsTable,
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
	return database.UnmarshalAll[model.DepartmentItem](items)
}

func (d *DynamoDirectory) Get(ctx context.Context, organizationID, departmentID string) (model.DepartmentItem, error) {
	var department model.DepartmentItem
	err := d.db.Client.GetItem(ctx, model.DepartmentsTable, database.Key(model.DepartmentPK(organizationID, departmentID)), &department)
	if err != nil {
		if database.IsNotFound(err) {
			return model.DepartmentItem{}, ErrNotFound
		}
		return model.DepartmentItem{}, err
	}
	return department, nil
}

// SupabaseDirectory reads the dashboard's departments table directly.
type SupabaseDirectory struct {
	client *supabase.Client
}

func NewSupabaseDirectory(url, key string) (*SupabaseDirectory, error) {
	if url == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if key == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseDirectory{client: client}, nil
}

func (d *SupabaseDirectory) List(ctx context.Context, organizationID string) ([]model.DepartmentItem, error) {
	var departments []model.DepartmentItem
	_, err := d.client.From("departments").
		Select("*", "", false).
		Eq("organization_id", organizationID).
		ExecuteTo(&departments)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return departments, nil
}

func (d *SupabaseDirectory) Get(ctx context.Context, organizationID, departmentID string) (model.DepartmentItem, error) {
	var departments []model.DepartmentItem
	_, err := d.client.From("departments").
		Select("*", "", false).
		Eq("id", departmentID).
		Eq("organization_id", organizationID).
		ExecuteTo(&departments)
	if err != nil {
		return model.DepartmentItem{}, fmt.Errorf("failed to get department: %w", err)
	}
	if len(departments) == 0 {
		return model.DepartmentItem{}, ErrNotFound
	}
	return departments[0], nil
}
