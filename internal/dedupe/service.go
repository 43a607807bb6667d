package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qero/api/internal/identity"
	"qero/api/internal/store"
)

const (
	maxPreviewExamples = 10
	runTypeDedupe      = "contact_dedupe"
)

// Scope bounds the contacts an operation looks at. An empty TeamID covers
// every team.
type Scope struct {
	TeamID string
}

func (s Scope) validate(op string) error {
	if s.TeamID == "" {
		return nil
	}
	if _, err := uuid.Parse(s.TeamID); err != nil {
		return validationError(op, "team id must be a uuid")
	}
	return nil
}

// ContactSummary is the part of a contact shown in previews.
type ContactSummary struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"companyName"`
	ContactName string    `json:"contactName,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	City        string    `json:"city,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func summarize(c store.Contact) ContactSummary {
	return ContactSummary{
		ID:          c.ID,
		CompanyName: c.CompanyName,
		ContactName: c.ContactName,
		Phone:       c.Phone,
		Email:       c.Email,
		City:        c.City,
		CreatedAt:   c.CreatedAt,
	}
}

type PreviewExample struct {
	Primary     ContactSummary   `json:"primary"`
	Duplicates  []ContactSummary `json:"duplicates"`
	MatchReason identity.Reason  `json:"matchReason"`
}

// Preview is the read-only result of grouping a scope.
type Preview struct {
	TeamID         string           `json:"teamId,omitempty"`
	GroupCount     int              `json:"groupCount"`
	DuplicateCount int              `json:"duplicateCount"`
	Examples       []PreviewExample `json:"examples"`
	GeneratedAt    time.Time        `json:"generatedAt"`
}

// RunReport is the full record of an apply run kept in object storage.
type RunReport struct {
	Summary    Summary           `json:"summary"`
	ExecutedBy string            `json:"executedBy"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Groups     []Group           `json:"groups"`
	Duplicates []DuplicateResult `json:"duplicates"`
}

// Service runs contact cleanups.
type Service struct {
	store     Store
	auth      Authorizer
	archiver  *Archiver
	relations []Relation
	index     Indexer
	cache     PreviewCache
	reports   ReportSink
	metrics   Recorder
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithIndexer(index Indexer) Option {
	return func(s *Service) { s.index = index }
}

func WithPreviewCache(cache PreviewCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithReportSink(sink ReportSink) Option {
	return func(s *Service) { s.reports = sink }
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) { s.metrics = recorder }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRelations replaces the relation list. Used by tests.
func WithRelations(relations []Relation) Option {
	return func(s *Service) { s.relations = relations }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService builds a cleanup service. A nil authorizer denies everything.
func NewService(st Store, auth Authorizer, opts ...Option) *Service {
	s := &Service{
		store:     st,
		auth:      auth,
		relations: DefaultRelations(),
		index:     noopIndexer{},
		metrics:   noopRecorder{},
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.archiver = NewArchiver(st, s.relations)
	s.archiver.newID = s.newID
	return s
}

func (s *Service) authorize(ctx context.Context, actor Actor, op string) error {
	if s.auth == nil || !s.auth.AllowCleanup(ctx, actor) {
		return newError(ErrAuthorization, op, actor.label(), nil)
	}
	return nil
}

func (s *Service) begin(ctx context.Context, actor Actor, scope Scope, op string) error {
	if err := scope.validate(op); err != nil {
		return err
	}
	return s.authorize(ctx, actor, op)
}

// Preview groups the scope without writing anything.
func (s *Service) Preview(ctx context.Context, actor Actor, scope Scope) (Preview, error) {
	const op = "preview dedupe"
	if err := s.begin(ctx, actor, scope, op); err != nil {
		return Preview{}, err
	}

	contacts, err := s.store.ListContacts(ctx, scope.TeamID)
	if err != nil {
		return Preview{}, newError(ErrPersistence, op, scope.TeamID, err)
	}
	byID := make(map[string]store.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	groups := BuildGroups(contacts)
	preview := Preview{
		TeamID:      scope.TeamID,
		GroupCount:  len(groups),
		Examples:    []PreviewExample{},
		GeneratedAt: s.now().UTC(),
	}
	for _, g := range groups {
		preview.DuplicateCount += len(g.DuplicateIDs)
		if len(preview.Examples) >= maxPreviewExamples {
			continue
		}
		example := PreviewExample{Primary: summarize(byID[g.PrimaryID]), MatchReason: g.MatchReason}
		for _, id := range g.DuplicateIDs {
			example.Duplicates = append(example.Duplicates, summarize(byID[id]))
		}
		preview.Examples = append(preview.Examples, example)
	}

	if s.cache != nil {
		if err := s.cache.SavePreview(ctx, scope.TeamID, preview); err != nil {
			s.logger.Warn("dedupe: cache preview failed", zap.String("team_id", scope.TeamID), zap.Error(err))
		}
	}
	s.metrics.RecordPreview(preview)
	return preview, nil
}

// LastPreview returns the most recent cached preview for the scope.
func (s *Service) LastPreview(ctx context.Context, actor Actor, scope Scope) (Preview, error) {
	const op = "load preview"
	if err := s.begin(ctx, actor, scope, op); err != nil {
		return Preview{}, err
	}
	if s.cache == nil {
		return Preview{}, newError(ErrNotFound, op, scope.TeamID, errors.New("preview cache disabled"))
	}
	preview, err := s.cache.LookupPreview(ctx, scope.TeamID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Preview{}, newError(ErrNotFound, op, scope.TeamID, nil)
		}
		return Preview{}, newError(ErrPersistence, op, scope.TeamID, err)
	}
	return preview, nil
}

// Apply merges every duplicate group in the scope and writes one audit run.
// Failures on single duplicates are collected in the summary; only
// validation, authorization and the initial listing abort the run.
func (s *Service) Apply(ctx context.Context, actor Actor, scope Scope) (Summary, error) {
	const op = "apply dedupe"
	if err := s.begin(ctx, actor, scope, op); err != nil {
		return Summary{}, err
	}

	startedAt := s.now().UTC()
	runID := s.newID()
	log := s.logger.With(zap.String("run_id", runID), zap.String("team_id", scope.TeamID))

	contacts, err := s.store.ListContacts(ctx, scope.TeamID)
	if err != nil {
		return Summary{}, newError(ErrPersistence, op, scope.TeamID, err)
	}
	groups := BuildGroups(contacts)
	log.Info("dedupe: run started", zap.Int("contacts", len(contacts)), zap.Int("groups", len(groups)))

	r := newRun(runID, scope.TeamID, actor, s.relations)
	orch := &orchestrator{
		store:     s.store,
		archiver:  s.archiver,
		relations: s.relations,
		index:     s.index,
		logger:    s.logger,
	}
	for _, g := range groups {
		orch.processGroup(ctx, r, g)
	}

	s.audit(ctx, r, actor)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, scope.TeamID); err != nil {
			log.Warn("dedupe: invalidate preview failed", zap.Error(err))
		}
	}
	finishedAt := s.now().UTC()
	s.metrics.RecordRun(r.summary, finishedAt.Sub(startedAt))

	if s.reports != nil {
		report := RunReport{
			Summary:    r.summary,
			ExecutedBy: actor.label(),
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Groups:     groups,
			Duplicates: r.results,
		}
		if err := s.reports.PutRunReport(ctx, report); err != nil {
			log.Warn("dedupe: upload run report failed", zap.Error(err))
		}
	}

	log.Info("dedupe: run finished",
		zap.String("status", string(r.summary.Status)),
		zap.Int("archived", r.summary.ArchivedCount),
		zap.Int("deleted", r.summary.DeletedCount),
		zap.Int("errors", len(r.summary.Errors)),
	)
	return r.summary, nil
}

func (s *Service) audit(ctx context.Context, r *run, actor Actor) {
	payload, err := json.Marshal(r.summary)
	if err == nil {
		err = s.store.InsertCleanupRun(ctx, store.CleanupRun{
			ID:         r.id,
			Type:       runTypeDedupe,
			TeamID:     r.teamID,
			ExecutedBy: actor.label(),
			Summary:    payload,
			Status:     string(r.summary.Status),
		})
	}
	if err != nil {
		s.logger.Error("dedupe: write cleanup run failed", zap.String("run_id", r.id), zap.Error(err))
		r.fail(StepAudit, "", "", "", fmt.Errorf("write cleanup run: %w", err))
		return
	}
	r.summary.AuditPersisted = true
}

// Restore brings an archived contact of the scope back under its original id.
func (s *Service) Restore(ctx context.Context, actor Actor, scope Scope, archiveID string) (RestoreResult, error) {
	if err := s.begin(ctx, actor, scope, "restore archive"); err != nil {
		return RestoreResult{}, err
	}
	result, err := s.archiver.Restore(ctx, scope.TeamID, archiveID)
	s.metrics.RecordRestore(err)
	if err != nil {
		return RestoreResult{}, err
	}

	if contact, err := s.store.GetContact(ctx, result.ContactID); err == nil {
		s.index.IndexContact(contact)
	} else {
		s.logger.Warn("dedupe: reload restored contact failed", zap.String("contact_id", result.ContactID), zap.Error(err))
	}
	s.logger.Info("dedupe: archive restored",
		zap.String("archive_id", result.ArchiveID),
		zap.String("contact_id", result.ContactID),
		zap.String("actor", actor.label()),
	)
	return result, nil
}

// ListArchived pages through archived contacts of the scope, newest first.
func (s *Service) ListArchived(ctx context.Context, actor Actor, scope Scope, page Page) ([]store.ArchiveSummary, error) {
	if err := s.begin(ctx, actor, scope, "list archives"); err != nil {
		return nil, err
	}
	return s.archiver.List(ctx, scope.TeamID, page)
}
