package dedupe

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"qero/api/internal/store"
)

// Step names the stage of the per-duplicate pipeline.
type Step string

const (
	StepArchive     Step = "archive"
	StepMergeFields Step = "merge_fields"
	StepRepoint     Step = "repoint"
	StepDelete      Step = "delete"
	StepAudit       Step = "audit"
)

// Outcome is the terminal state of one duplicate.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// RunStatus is completed when no step failed, partial otherwise.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
)

// RunError records one failed step.
type RunError struct {
	Step      Step   `json:"step"`
	ContactID string `json:"contactId"`
	PrimaryID string `json:"primaryId,omitempty"`
	Relation  string `json:"relation,omitempty"`
	Message   string `json:"message"`
}

// Summary is the outcome of an apply run.
type Summary struct {
	RunID                string         `json:"runId"`
	TeamID               string         `json:"teamId,omitempty"`
	Status               RunStatus      `json:"status"`
	GroupCount           int            `json:"groupCount"`
	DuplicateCount       int            `json:"duplicateCount"`
	ArchivedCount        int            `json:"archivedCount"`
	DeletedCount         int            `json:"deletedCount"`
	SkippedCount         int            `json:"skippedCount"`
	FieldsMergedCount    int            `json:"fieldsMergedCount"`
	MergedByRelationType map[string]int `json:"mergedByRelationType"`
	Errors               []RunError     `json:"errors"`
	AuditPersisted       bool           `json:"auditPersisted"`
}

// DuplicateResult is the per-duplicate line of a run report.
type DuplicateResult struct {
	ContactID    string  `json:"contactId"`
	PrimaryID    string  `json:"primaryId"`
	ArchiveID    string  `json:"archiveId,omitempty"`
	Outcome      Outcome `json:"outcome"`
	FieldsMerged int     `json:"fieldsMerged"`
}

type run struct {
	id      string
	teamID  string
	actor   Actor
	summary Summary
	results []DuplicateResult
}

func newRun(id, teamID string, actor Actor, relations []Relation) *run {
	merged := make(map[string]int, len(relations))
	for _, rel := range relations {
		merged[rel.ref().Table] = 0
	}
	return &run{
		id:     id,
		teamID: teamID,
		actor:  actor,
		summary: Summary{
			RunID:                id,
			TeamID:               teamID,
			Status:               RunCompleted,
			MergedByRelationType: merged,
			Errors:               []RunError{},
		},
	}
}

func (r *run) fail(step Step, contactID, primaryID, relation string, err error) {
	r.summary.Errors = append(r.summary.Errors, RunError{
		Step:      step,
		ContactID: contactID,
		PrimaryID: primaryID,
		Relation:  relation,
		Message:   err.Error(),
	})
	r.summary.Status = RunPartial
}

type orchestrator struct {
	store     Store
	archiver  *Archiver
	relations []Relation
	index     Indexer
	logger    *zap.Logger
}

// processGroup folds every duplicate of g into the primary. A failure is
// confined to the duplicate it happened on.
func (o *orchestrator) processGroup(ctx context.Context, r *run, g Group) {
	r.summary.GroupCount++
	log := o.logger.With(zap.String("run_id", r.id), zap.String("primary_id", g.PrimaryID))

	primary, err := o.store.GetContact(ctx, g.PrimaryID)
	if err != nil {
		if store.IsNotFound(err) {
			log.Warn("dedupe: primary vanished, skipping group")
			r.summary.DuplicateCount += len(g.DuplicateIDs)
			r.summary.SkippedCount += len(g.DuplicateIDs)
			for _, dupID := range g.DuplicateIDs {
				r.results = append(r.results, DuplicateResult{ContactID: dupID, PrimaryID: g.PrimaryID, Outcome: OutcomeSkipped})
			}
			return
		}
		log.Warn("dedupe: load primary failed", zap.Error(err))
		for _, dupID := range g.DuplicateIDs {
			r.summary.DuplicateCount++
			r.fail(StepArchive, dupID, g.PrimaryID, "", err)
			r.results = append(r.results, DuplicateResult{ContactID: dupID, PrimaryID: g.PrimaryID, Outcome: OutcomeFailed})
		}
		return
	}

	changed := false
	for _, dupID := range g.DuplicateIDs {
		r.summary.DuplicateCount++
		result, merged := o.processDuplicate(ctx, r, log, &primary, dupID, g)
		r.results = append(r.results, result)
		changed = changed || merged
	}
	if changed {
		o.index.IndexContact(primary)
	}
}

// processDuplicate walks ARCHIVE, MERGE_FIELDS, REPOINT and DELETE for one
// duplicate. It reports whether the primary's fields changed.
func (o *orchestrator) processDuplicate(ctx context.Context, r *run, log *zap.Logger, primary *store.Contact, dupID string, g Group) (DuplicateResult, bool) {
	log = log.With(zap.String("contact_id", dupID))
	result := DuplicateResult{ContactID: dupID, PrimaryID: primary.ID, Outcome: OutcomeFailed}

	archive, err := o.archiver.Archive(ctx, ArchiveRequest{
		ContactID:  dupID,
		MergedInto: primary.ID,
		Reason:     archiveReason(g.MatchReason),
		RunID:      r.id,
		DeletedBy:  r.actor.label(),
		TeamID:     r.teamID,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Info("dedupe: duplicate vanished, skipping")
			r.summary.SkippedCount++
			result.Outcome = OutcomeSkipped
			return result, false
		}
		log.Warn("dedupe: archive failed", zap.Error(err))
		r.fail(StepArchive, dupID, primary.ID, "", err)
		return result, false
	}
	r.summary.ArchivedCount++
	result.ArchiveID = archive.ID

	patch := MergeContactFields(*primary, archive.Contact)
	merged := false
	if len(patch) > 0 {
		if err := o.store.UpdateContactFields(ctx, primary.ID, patch); err != nil {
			log.Warn("dedupe: merge fields failed", zap.Error(err))
			r.fail(StepMergeFields, dupID, primary.ID, "", err)
			return result, false
		}
		*primary = patch.Apply(*primary)
		r.summary.FieldsMergedCount += len(patch)
		result.FieldsMerged = len(patch)
		merged = true
	}

	repointFailed := false
	for _, rel := range o.relations {
		table := rel.ref().Table
		n, err := repoint(ctx, o.store, rel, dupID, primary.ID)
		r.summary.MergedByRelationType[table] += n
		if err != nil {
			log.Warn("dedupe: repoint failed", zap.String("relation", table), zap.Error(err))
			r.fail(StepRepoint, dupID, primary.ID, table, err)
			repointFailed = true
		}
	}
	if repointFailed {
		return result, merged
	}

	if err := o.store.DeleteContact(ctx, dupID); err != nil {
		log.Warn("dedupe: delete failed", zap.Error(err))
		r.fail(StepDelete, dupID, primary.ID, "", err)
		return result, merged
	}
	r.summary.DeletedCount++
	o.index.DeleteContact(dupID)

	result.Outcome = OutcomeDone
	return result, merged
}
