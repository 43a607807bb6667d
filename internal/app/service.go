package app

import (
	"context"
	"strings"
	"time"

	"qero/api/internal/auth"
	"qero/api/internal/config"
	"qero/api/internal/dedupe"
	"qero/api/internal/identity"
	"qero/api/internal/search"
	"qero/api/internal/store"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	Role      string
	TeamID    string
	JTI       string
	ExpiresAt time.Time
}

func (s Session) actor() dedupe.Actor {
	return dedupe.Actor{ID: s.UserID, Name: s.UserName, Role: s.Role}
}

// cleanupEngine is the part of dedupe.Service the transport calls.
type cleanupEngine interface {
	Preview(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope) (dedupe.Preview, error)
	LastPreview(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope) (dedupe.Preview, error)
	Apply(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope) (dedupe.Summary, error)
	Restore(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope, archiveID string) (dedupe.RestoreResult, error)
	ListArchived(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope, page dedupe.Page) ([]store.ArchiveSummary, error)
	CheckCandidates(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope, candidates []identity.Candidate) ([]identity.Decision, error)
	Import(ctx context.Context, actor dedupe.Actor, scope dedupe.Scope, records []dedupe.ImportRecord) (dedupe.ImportResult, error)
}

type contactSearcher interface {
	Search(q search.Query) search.Response
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	cfg    config.Config
	engine cleanupEngine
	search contactSearcher
	checks map[string]Pinger
}

// New wires the transport service. checks are probed by the readiness
// endpoint; "database" should always be present.
func New(cfg config.Config, engine cleanupEngine, searcher contactSearcher, checks map[string]Pinger) *Service {
	if checks == nil {
		checks = map[string]Pinger{}
	}
	return &Service{cfg: cfg, engine: engine, search: searcher, checks: checks}
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		TeamID:    claims.TeamID,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Readiness probes every registered dependency and returns the failures by name.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	failures := map[string]error{}
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			failures[name] = err
		}
	}
	return failures
}

func (s *Service) CheckNames() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	return names
}

func (s *Service) PreviewDedupe(ctx context.Context, session Session, teamID string) (dedupe.Preview, error) {
	scope, err := scopeFor(session, teamID)
	if err != nil {
		return dedupe.Preview{}, err
	}
	preview, err := s.engine.Preview(ctx, session.actor(), scope)
	if err != nil {
		return dedupe.Preview{}, fromDedupe(err)
	}
	return preview, nil
}

func (s *Service) LastPreview(ctx context.Context, session Session, teamID string) (dedupe.Preview, error) {
	scope, err := scopeFor(session, teamID)
	if err != nil {
		return dedupe.Preview{}, err
	}
	preview, err := s.engine.LastPreview(ctx, session.actor(), scope)
	if err != nil {
		return dedupe.Preview{}, fromDedupe(err)
	}
	return preview, nil
}

func (s *Service) ApplyDedupe(ctx context.Context, session Session, teamID string) (dedupe.Summary, error) {
	scope, err := scopeFor(session, teamID)
	if err != nil {
		return dedupe.Summary{}, err
	}
	summary, err := s.engine.Apply(ctx, session.actor(), scope)
	if err != nil {
		return dedupe.Summary{}, fromDedupe(err)
	}
	return summary, nil
}

func (s *Service) RestoreArchive(ctx context.Context, session Session, archiveID string) (dedupe.RestoreResult, error) {
	scope, err := scopeFor(session, "")
	if err != nil {
		return dedupe.RestoreResult{}, err
	}
	result, err := s.engine.Restore(ctx, session.actor(), scope, strings.TrimSpace(archiveID))
	if err != nil {
		return dedupe.RestoreResult{}, fromDedupe(err)
	}
	return result, nil
}

func (s *Service) ListArchived(ctx context.Context, session Session, teamID string, page dedupe.Page) ([]store.ArchiveSummary, error) {
	scope, err := scopeFor(session, teamID)
	if err != nil {
		return nil, err
	}
	items, err := s.engine.ListArchived(ctx, session.actor(), scope, page)
	if err != nil {
		return nil, fromDedupe(err)
	}
	return items, nil
}

func (s *Service) CheckImport(ctx context.Context, session Session, teamID string, candidates []identity.Candidate) ([]identity.Decision, error) {
	scope, err := scopeFor(session, teamID)
	if err != nil {
		return nil, err
	}
	decisions, err := s.engine.CheckCandidates(ctx, session.actor(), scope, candidates)
	if err != nil {
		return nil, fromDedupe(err)
	}
	return decisions, nil
}

func (s *Service) Import(ctx context.Context, session Session, teamID string, records []dedupe.ImportRecord) (dedupe.ImportResult, error) {
	scope, err := scopeFor(session, teamID)
	if err != nil {
		return dedupe.ImportResult{}, err
	}
	result, err := s.engine.Import(ctx, session.actor(), scope, records)
	if err != nil {
		return dedupe.ImportResult{}, fromDedupe(err)
	}
	return result, nil
}

func (s *Service) SearchContacts(session Session, text string, limit, offset int) (search.Response, error) {
	if err := requireAction(session, actionRead); err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:   text,
		TeamID: session.TeamID,
		Limit:  limit,
		Offset: offset,
	}), nil
}
