package api

import (
	"fmt"
	"time"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/env"
	"chatdesk-backend/internal/service/conversation"
	"chatdesk-backend/internal/service/department"
	"chatdesk-backend/internal/service/session"
	"chatdesk-backend/internal/service/typing"

	"github.com/prometheus/client_golang/prometheus"
)

// Services holds the domain services shared by every route of a server.
type Services struct {
	Sessions      *session.Service
	Departments   *department.Service
	Conversations *conversation.Service
	Typing        *typing.Service
}

// Repositories are the storage backends behind Services.
type Repositories struct {
	Sessions      session.Repository
	Conversations conversation.Repository
	Typing        typing.Repository
	Departments   department.Directory
}

func NewServices(cfg *env.Config, db *database.Database, reg prometheus.Registerer) (*Services, error) {
	directory, err := department.NewDirectory(cfg.Departments, db)
	if err != nil {
		return nil, fmt.Errorf("department directory: %w", err)
	}

	sessions := session.New(db, sessionOptions(cfg, reg))
	departments := department.New(directory)

	return &Services{
		Sessions:      sessions,
		Departments:   departments,
		Conversations: conversation.New(db, departments, sessions),
		Typing:        typing.New(db, cfg.Typing.Freshness),
	}, nil
}

// NewServicesWithRepositories wires the services over caller-provided
// storage, as the tests do with memstore.
func NewServicesWithRepositories(cfg *env.Config, repos Repositories, reg prometheus.Registerer, now func() time.Time) *Services {
	sessions := session.NewWithRepository(repos.Sessions, now, sessionOptions(cfg, reg))
	departments := department.New(repos.Departments)

	return &Services{
		Sessions:      sessions,
		Departments:   departments,
		Conversations: conversation.NewWithRepository(repos.Conversations, departments, sessions, now),
		Typing:        typing.NewWithRepository(repos.Typing, now, cfg.Typing.Freshness),
	}
}

func sessionOptions(cfg *env.Config, reg prometheus.Registerer) session.Options {
	return session.Options{
		TTL:            cfg.Session.TTL,
		RefreshOnReuse: cfg.Session.RefreshOnReuse,
		Registerer:     reg,
	}
}
