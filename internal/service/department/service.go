package department

import (
	"context"
	"errors"
	"sort"
	"strings"

	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/prechat"
)

var ErrInactive = errors.New("department is not active")

type Service struct {
	dir Directory
}

func New(dir Directory) *Service {
	return &Service{dir: dir}
}

// ListActive returns the organization's active departments ordered by name,
// each with its pre-chat form in display order.
func (s *Service) ListActive(ctx context.Context, organizationID string) ([]model.DepartmentItem, error) {
	departments, err := s.dir.List(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	active := make([]model.DepartmentItem, 0, len(departments))
	for _, dept := range departments {
		if !dept.IsActive {
			continue
		}
		dept.PreChatForm = prechat.Sorted(dept.PreChatForm)
		active = append(active, dept)
	}
	sort.SliceStable(active, func(i, j int) bool {
		return strings.ToLower(active[i].Name) < strings.ToLower(active[j].Name)
	})
	return active, nil
}

// Active loads one department and fails with ErrNotFound or ErrInactive.
func (s *Service) Active(ctx context.Context, organizationID, departmentID string) (model.DepartmentItem, error) {
	dept, err := s.dir.Get(ctx, organizationID, departmentID)
	if err != nil {
		return model.DepartmentItem{}, err
	}
	if dept.OrganizationID != "" && dept.OrganizationID != organizationID {
		return model.DepartmentItem{}, ErrNotFound
	}
	if !dept.IsActive {
		return model.DepartmentItem{}, ErrInactive
	}
	dept.PreChatForm = prechat.Sorted(dept.PreChatForm)
	return dept, nil
}
