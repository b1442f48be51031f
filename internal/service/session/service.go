package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/utils"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Path names the branch of Resolve that produced a session.
type Path string

const (
	PathToken    Path = "token"
	PathVisitor  Path = "visitor"
	PathCreated  Path = "created"
	PathConflict Path = "conflict"
)

const (
	DefaultTTL = 24 * time.Hour

	conflictAttempts = 3
	conflictBackoff  = 20 * time.Millisecond
)

type Options struct {
	TTL            time.Duration
	RefreshOnReuse bool
	// Registerer receives chatdesk_session_resolutions_total when set.
	Registerer prometheus.Registerer
}

type Service struct {
	repo           Repository
	now            func() time.Time
	ttl            time.Duration
	refreshOnReuse bool
	resolutions    *prometheus.CounterVec
}

type ResolveParams struct {
	WidgetKey    string
	VisitorID    string
	SessionToken string
	Origin       string
	UserAgent    string
	IPAddress    string
	Referrer     string
	CurrentURL   string
}

type ResolveResult struct {
	Session  model.WidgetSessionItem
	Widget   model.WidgetItem
	Settings WidgetSettings
	// Resumed is true when an existing session was reused.
	Resumed bool
	Path    Path
}

func New(db *database.Database, opts Options) *Service {
	return NewWithRepository(NewDynamoRepository(db), time.Now, opts)
}

func NewWithRepository(repo Repository, now func() time.Time, opts Options) *Service {
	if now == nil {
		now = time.Now
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	s := &Service{
		repo:           repo,
		now:            now,
		ttl:            opts.TTL,
		refreshOnReuse: opts.RefreshOnReuse,
	}
	if opts.Registerer != nil {
		s.resolutions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatdesk_session_resolutions_total",
				Help: "Widget session resolutions by outcome.",
			},
			[]string{"path"},
		)
		opts.Registerer.MustRegister(s.resolutions)
	}
	return s
}

// Resolve reuses the caller's session when one is still valid and creates a
// new one otherwise. At most one live session exists per widget and visitor.
func (s *Service) Resolve(ctx context.Context, params ResolveParams) (ResolveResult, error) {
	params.WidgetKey = strings.TrimSpace(params.WidgetKey)
	params.VisitorID = strings.TrimSpace(params.VisitorID)
	params.SessionToken = strings.TrimSpace(params.SessionToken)

	if params.WidgetKey == "" {
		return ResolveResult{}, newError(ErrorCodeValidation, "widgetKey is required", nil)
	}
	if params.VisitorID == "" {
		return ResolveResult{}, newError(ErrorCodeValidation, "visitorId is required", nil)
	}

	widget, err := s.repo.GetWidget(ctx, params.WidgetKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ResolveResult{}, newError(ErrorCodeNotFound, "Invalid widget key", err)
		}
		return ResolveResult{}, newError(ErrorCodeInternal, "failed to load widget", err)
	}
	if !widget.Enabled {
		return ResolveResult{}, newError(ErrorCodeNotFound, "Invalid widget key", nil)
	}
	if !DomainAllowed(widget.AllowedDomains, params.Origin) {
		return ResolveResult{}, newError(ErrorCodeForbidden, "Domain not allowed", nil)
	}

	now := s.now().UTC()
	result := ResolveResult{Widget: widget, Settings: WidgetSettingsFromWidget(widget)}

	if params.SessionToken != "" {
		session, ok, err := s.resumeByToken(ctx, params, now)
		if err != nil {
			return ResolveResult{}, err
		}
		if ok {
			return s.finish(result, session, PathToken), nil
		}
	}

	session, stale, ok, err := s.resumeByVisitor(ctx, params, now)
	if err != nil {
		return ResolveResult{}, err
	}
	if ok {
		return s.finish(result, session, PathVisitor), nil
	}

	session, path, err := s.create(ctx, widget, params, now, stale)
	if err != nil {
		return ResolveResult{}, err
	}
	if path == PathCreated && stale != "" {
		if err := s.repo.DeactivateSession(ctx, stale); err != nil && !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("session_id", stale).Msg("failed to deactivate superseded session")
		}
	}
	return s.finish(result, session, path), nil
}

// Authenticate returns the live session behind a widget session token.
func (s *Service) Authenticate(ctx context.Context, token string) (model.WidgetSessionItem, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.WidgetSessionItem{}, newError(ErrorCodeUnauthorized, "Missing session token", nil)
	}

	session, err := s.repo.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.WidgetSessionItem{}, newError(ErrorCodeUnauthorized, "Invalid or expired session", err)
		}
		return model.WidgetSessionItem{}, newError(ErrorCodeInternal, "failed to load session", err)
	}
	if !s.live(session, s.now().UTC()) {
		return model.WidgetSessionItem{}, newError(ErrorCodeUnauthorized, "Invalid or expired session", nil)
	}
	return session, nil
}

// Widget loads the widget a session belongs to.
func (s *Service) Widget(ctx context.Context, widgetKey string) (model.WidgetItem, error) {
	widget, err := s.repo.GetWidget(ctx, widgetKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.WidgetItem{}, newError(ErrorCodeNotFound, "Invalid widget key", err)
		}
		return model.WidgetItem{}, newError(ErrorCodeInternal, "failed to load widget", err)
	}
	return widget, nil
}

// Session loads a session by id without touching it.
func (s *Service) Session(ctx context.Context, sessionID string) (model.WidgetSessionItem, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.WidgetSessionItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return model.WidgetSessionItem{}, newError(ErrorCodeInternal, "failed to load session", err)
	}
	return session, nil
}

// AttachConversation binds a conversation to the session. replacing names
// a closed conversation the new one supersedes and may be empty.
func (s *Service) AttachConversation(ctx context.Context, sessionID, conversationID, replacing string) (model.WidgetSessionItem, error) {
	session, err := s.repo.AttachConversation(ctx, sessionID, conversationID, replacing)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return model.WidgetSessionItem{}, newError(ErrorCodeConflict, "session already has a conversation", err)
		}
		return model.WidgetSessionItem{}, newError(ErrorCodeInternal, "failed to attach conversation", err)
	}
	return session, nil
}

func (s *Service) resumeByToken(ctx context.Context, params ResolveParams, now time.Time) (model.WidgetSessionItem, bool, error) {
	session, err := s.repo.GetSessionByToken(ctx, params.SessionToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.WidgetSessionItem{}, false, nil
		}
		return model.WidgetSessionItem{}, false, newError(ErrorCodeInternal, "failed to load session", err)
	}
	if session.WidgetKey != params.WidgetKey || !s.live(session, now) {
		return model.WidgetSessionItem{}, false, nil
	}
	return s.touch(ctx, session, params, now)
}

// resumeByVisitor follows the visitor's slot to its session. When the slot
// points at a session that can no longer be used, that id is returned as
// stale so a replacement may take over the slot and retire it.
func (s *Service) resumeByVisitor(ctx context.Context, params ResolveParams, now time.Time) (model.WidgetSessionItem, string, bool, error) {
	slot, err := s.repo.GetSlot(ctx, params.WidgetKey, params.VisitorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.WidgetSessionItem{}, "", false, nil
		}
		return model.WidgetSessionItem{}, "", false, newError(ErrorCodeInternal, "failed to load session slot", err)
	}

	session, err := s.repo.GetSession(ctx, slot.SessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.WidgetSessionItem{}, slot.SessionID, false, nil
		}
		return model.WidgetSessionItem{}, "", false, newError(ErrorCodeInternal, "failed to load session", err)
	}

	if !s.live(session, now) {
		return model.WidgetSessionItem{}, session.SessionID, false, nil
	}

	touched, ok, err := s.touch(ctx, session, params, now)
	if !ok && err == nil {
		return model.WidgetSessionItem{}, session.SessionID, false, nil
	}
	return touched, "", ok, err
}

func (s *Service) create(ctx context.Context, widget model.WidgetItem, params ResolveParams, now time.Time, replacing string) (model.WidgetSessionItem, Path, error) {
	nowStr := model.FormatTime(now)
	expiresAt := model.FormatTime(now.Add(s.ttl))

	session := model.WidgetSessionItem{
		SessionID:      uuid.NewString(),
		SessionToken:   utils.CreateToken(),
		OrganizationID: widget.OrganizationID,
		WidgetKey:      params.WidgetKey,
		VisitorID:      params.VisitorID,
		DeviceType:     utils.DeviceType(params.UserAgent),
		IPAddress:      params.IPAddress,
		UserAgent:      params.UserAgent,
		Referrer:       params.Referrer,
		CurrentURL:     params.CurrentURL,
		IsActive:       true,
		LastSeenAt:     nowStr,
		CreatedAt:      nowStr,
		ExpiresAt:      expiresAt,
	}
	slot := model.SessionSlotItem{
		PK:        model.SessionSlotPK(params.WidgetKey, params.VisitorID),
		SessionID: session.SessionID,
		ExpiresAt: expiresAt,
	}

	err := s.repo.CreateSession(ctx, session, slot, nowStr, replacing)
	if err == nil {
		return session, PathCreated, nil
	}
	if !errors.Is(err, ErrConflict) {
		return model.WidgetSessionItem{}, "", newError(ErrorCodeInternal, "failed to create session", err)
	}

	winner, err := s.awaitWinner(ctx, params)
	if err != nil {
		return model.WidgetSessionItem{}, "", err
	}
	return winner, PathConflict, nil
}

// awaitWinner re-reads the slot after a lost creation race and adopts the
// session that won it.
func (s *Service) awaitWinner(ctx context.Context, params ResolveParams) (model.WidgetSessionItem, error) {
	for attempt := 0; attempt < conflictAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return model.WidgetSessionItem{}, newError(ErrorCodeInternal, "session resolution cancelled", ctx.Err())
			case <-time.After(conflictBackoff * time.Duration(attempt)):
			}
		}

		session, _, ok, err := s.resumeByVisitor(ctx, params, s.now().UTC())
		if err != nil {
			return model.WidgetSessionItem{}, err
		}
		if ok {
			return session, nil
		}
	}
	return model.WidgetSessionItem{}, newError(ErrorCodeConflict, "session is being created, retry", ErrConflict)
}

func (s *Service) touch(ctx context.Context, session model.WidgetSessionItem, params ResolveParams, now time.Time) (model.WidgetSessionItem, bool, error) {
	touch := TouchParams{
		SessionID:  session.SessionID,
		SlotPK:     model.SessionSlotPK(session.WidgetKey, session.VisitorID),
		LastSeenAt: model.FormatTime(now),
		CurrentURL: params.CurrentURL,
	}
	if s.refreshOnReuse {
		touch.ExpiresAt = model.FormatTime(now.Add(s.ttl))
	}

	updated, err := s.repo.TouchSession(ctx, touch)
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			// deactivated between read and write
			return model.WidgetSessionItem{}, false, nil
		}
		return model.WidgetSessionItem{}, false, newError(ErrorCodeInternal, "failed to update session", err)
	}
	return updated, true, nil
}

func (s *Service) live(session model.WidgetSessionItem, now time.Time) bool {
	if !session.IsActive {
		return false
	}
	expires := model.ParseTime(session.ExpiresAt)
	return !expires.IsZero() && now.Before(expires)
}

func (s *Service) finish(result ResolveResult, session model.WidgetSessionItem, path Path) ResolveResult {
	result.Session = session
	result.Path = path
	result.Resumed = path == PathToken || path == PathVisitor
	if s.resolutions != nil {
		s.resolutions.WithLabelValues(string(path)).Inc()
	}
	log.Debug().
		Str("widget_key", session.WidgetKey).
		Str("session_id", session.SessionID).
		Str("path", string(path)).
		Msg("widget session resolved")
	return result
}
