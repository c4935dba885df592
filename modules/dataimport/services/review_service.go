package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/entities/alias"
	payrollservices "github.com/iota-uz/payroll-reconciler/modules/payroll/services"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	pkgoutbox "github.com/iota-uz/payroll-reconciler/pkg/outbox"
)

// Suggestion is an existing alias a reviewer may match a candidate to.
type Suggestion struct {
	AliasID   int64
	OwnerID   int64
	Name      string
	Preferred bool
	Distance  int
}

// Decision reports the outcome of resolving one review item.
type Decision struct {
	Kind      review.Kind
	Name      string
	OwnerID   int64
	Merged    bool
	Rewritten int64
	Remaining int64
	Fired     bool
}

type FlushResult struct {
	Resolved  int
	Remaining int64
	Fired     bool
}

// ReviewService applies reviewer decisions to the canonical graph and the
// file's raw rows, and advances the file once a review queue empties.
type ReviewService struct {
	files       upload.Repository
	stage       *persistence.StageRepository
	aliases     *payrollservices.AliasService
	transitions *TransitionService
	queues      review.Queues
	tasks       pgx.Identifier
}

func NewReviewService(
	files upload.Repository,
	stage *persistence.StageRepository,
	aliases *payrollservices.AliasService,
	transitions *TransitionService,
	queues review.Queues,
	tasks pgx.Identifier,
) *ReviewService {
	return &ReviewService{
		files:       files,
		stage:       stage,
		aliases:     aliases,
		transitions: transitions,
		queues:      queues,
		tasks:       tasks,
	}
}

func (s *ReviewService) Checkout(ctx context.Context, fileID int64, kind review.Kind, timeout time.Duration) (review.Item, bool, error) {
	return s.queues.Queue(fileID, kind).Checkout(ctx, timeout)
}

func (s *ReviewService) Requeue(ctx context.Context, fileID int64, kind review.Kind, id string) error {
	return s.queues.Queue(fileID, kind).Requeue(ctx, id)
}

func (s *ReviewService) Remaining(ctx context.Context, fileID int64, kind review.Kind) (int64, error) {
	n, err := s.queues.Queue(fileID, kind).RemainingCount(ctx)
	if err != nil {
		return 0, err
	}
	recordReviewDepth(kind, n)
	return n, nil
}

// scope returns the alias namespace a candidate is matched in.
func (s *ReviewService) scope(ctx context.Context, c review.Candidate) (alias.Scope, error) {
	switch c := c.(type) {
	case review.RespondingAgencyCandidate:
		return alias.Scope{Owner: alias.OwnerAgency}, nil
	case review.ParentEmployerCandidate:
		return alias.Scope{Owner: alias.OwnerEmployer}, nil
	case review.ChildEmployerCandidate:
		unit, err := s.aliases.FindUnit(ctx, c.Parent)
		if err != nil {
			return alias.Scope{}, fmt.Errorf("unit %q of department %q: %w", c.Parent, c.Name, err)
		}
		return alias.Scope{Owner: alias.OwnerEmployer, ParentKey: unit.ID()}, nil
	default:
		return alias.Scope{}, fmt.Errorf("%w: %T", review.ErrUnknownKind, c)
	}
}

// Suggest ranks the aliases in the candidate's namespace by similarity.
// Aliases containing the candidate's letters in order rank first.
func (s *ReviewService) Suggest(ctx context.Context, item review.Item, limit int) ([]Suggestion, error) {
	sc, err := s.scope(ctx, item.Candidate)
	if err != nil {
		return nil, err
	}
	aliases, err := s.aliases.Namespace(ctx, sc)
	if err != nil {
		return nil, err
	}
	return rankSuggestions(candidateName(item.Candidate), aliases, limit), nil
}

func rankSuggestions(name string, aliases []alias.Alias, limit int) []Suggestion {
	if len(aliases) == 0 {
		return nil
	}
	names := make([]string, len(aliases))
	for i, a := range aliases {
		names[i] = a.Name
	}

	ranks := fuzzy.RankFindNormalizedFold(name, names)
	sort.Sort(ranks)

	out := make([]Suggestion, 0, len(aliases))
	seen := make(map[int]bool, len(ranks))
	for _, r := range ranks {
		a := aliases[r.OriginalIndex]
		seen[r.OriginalIndex] = true
		out = append(out, Suggestion{AliasID: a.ID, OwnerID: a.OwnerID, Name: a.Name, Preferred: a.Preferred, Distance: r.Distance})
	}

	rest := make([]Suggestion, 0, len(aliases)-len(ranks))
	lower := strings.ToLower(name)
	for i, a := range aliases {
		if seen[i] {
			continue
		}
		d := fuzzy.LevenshteinDistance(lower, strings.ToLower(a.Name))
		rest = append(rest, Suggestion{AliasID: a.ID, OwnerID: a.OwnerID, Name: a.Name, Preferred: a.Preferred, Distance: d})
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Distance < rest[j].Distance })
	out = append(out, rest...)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func candidateName(c review.Candidate) string {
	switch c := c.(type) {
	case review.RespondingAgencyCandidate:
		return c.Name
	case review.ParentEmployerCandidate:
		return c.Name
	case review.ChildEmployerCandidate:
		return c.Name
	default:
		return ""
	}
}

// Resolve matches the candidate to the entity owning alias match, or
// creates a new entity when match is nil, then acknowledges the item. The
// last decision of a queue advances the file.
func (s *ReviewService) Resolve(ctx context.Context, fileID int64, item review.Item, match *int64) (Decision, error) {
	kind := item.Candidate.Kind()
	d, err := inTx(ctx, func(txCtx context.Context) (Decision, error) {
		if err := lockFile(txCtx, fileID); err != nil {
			return Decision{}, err
		}
		file, err := s.files.GetFile(txCtx, fileID)
		if err != nil {
			return Decision{}, err
		}
		if match != nil {
			return s.merge(txCtx, file, item.Candidate, *match)
		}
		return s.create(txCtx, file, item.Candidate)
	})
	if err != nil {
		return Decision{}, err
	}
	recordDecision(kind, d.Merged)

	// Acknowledged after commit: a lost ack re-delivers an item whose
	// decision is already applied, and applying it again is a no-op.
	q := s.queues.Queue(fileID, kind)
	if err := q.Acknowledge(ctx, item.ID); err != nil {
		return d, err
	}
	d.Remaining, err = q.RemainingCount(ctx)
	if err != nil {
		return d, err
	}
	recordReviewDepth(kind, d.Remaining)
	if d.Remaining == 0 {
		d.Fired, err = s.finishReview(ctx, fileID, kind)
		if err != nil {
			return d, err
		}
	}

	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component": "review",
		"file_id":   fileID,
		"kind":      kind,
		"name":      d.Name,
		"owner_id":  d.OwnerID,
		"merged":    d.Merged,
		"remaining": d.Remaining,
		"fired":     d.Fired,
	}).Info("review item resolved")
	return d, nil
}

func (s *ReviewService) merge(ctx context.Context, file *upload.File, c review.Candidate, match int64) (Decision, error) {
	sc, err := s.scope(ctx, c)
	if err != nil {
		return Decision{}, err
	}
	name := candidateName(c)
	matched, err := s.aliases.Merge(ctx, sc, match, name)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Kind: c.Kind(), Name: name, OwnerID: matched.OwnerID, Merged: true}
	if matched.Name == name {
		return d, nil
	}

	switch c.(type) {
	case review.RespondingAgencyCandidate:
		d.Rewritten, err = s.stage.RewriteAgency(ctx, file.ID, name, matched.Name)
	case review.ParentEmployerCandidate:
		d.Rewritten, err = s.stage.RewriteUnit(ctx, file.ID, name, matched.Name)
	case review.ChildEmployerCandidate:
		d.Rewritten, err = s.stage.RewriteDepartment(ctx, file.ID, sc.ParentKey, name, matched.Name)
	}
	if err != nil {
		return Decision{}, mapPgErrorToServiceError(err)
	}
	return d, nil
}

func (s *ReviewService) create(ctx context.Context, file *upload.File, c review.Candidate) (Decision, error) {
	d := Decision{Kind: c.Kind(), Name: candidateName(c)}
	switch c := c.(type) {
	case review.RespondingAgencyCandidate:
		a, err := s.aliases.CreateAgency(ctx, c.Name)
		if err != nil {
			return Decision{}, err
		}
		d.OwnerID = a.ID()
	case review.ParentEmployerCandidate:
		e, err := s.aliases.CreateUnit(ctx, c.Name, file.UploadID)
		if err != nil {
			return Decision{}, err
		}
		d.OwnerID = e.ID()
	case review.ChildEmployerCandidate:
		unit, err := s.aliases.FindUnit(ctx, c.Parent)
		if err != nil {
			return Decision{}, fmt.Errorf("unit %q of department %q: %w", c.Parent, c.Name, err)
		}
		e, err := s.aliases.CreateDepartment(ctx, unit.ID(), c.Name, file.UploadID)
		if err != nil {
			return Decision{}, err
		}
		d.OwnerID = e.ID()
	default:
		return Decision{}, fmt.Errorf("%w: %T", review.ErrUnknownKind, c)
	}
	return d, nil
}

// finishReview fires the transition that follows the review of kind when the
// file is still waiting for it.
func (s *ReviewService) finishReview(ctx context.Context, fileID int64, kind review.Kind) (bool, error) {
	t, err := reviewTransition(kind)
	if err != nil {
		return false, err
	}
	return s.transitions.FireFrom(ctx, fileID, t)
}

// Flush resolves every pending item of the queue as a new entity and then
// finishes the review. Items checked out by someone else are left alone.
// On an empty queue the review is finished only when no stage of the file is
// queued, running or dead, so a flush cannot overtake the select step.
func (s *ReviewService) Flush(ctx context.Context, fileID int64, kind review.Kind) (FlushResult, error) {
	q := s.queues.Queue(fileID, kind)
	before, err := q.RemainingCount(ctx)
	if err != nil {
		return FlushResult{}, err
	}

	var res FlushResult
	for {
		item, ok, err := q.Checkout(ctx, 0)
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}
		d, err := s.Resolve(ctx, fileID, item, nil)
		if err != nil {
			if rqErr := q.Requeue(ctx, item.ID); rqErr != nil {
				composables.UseLogger(ctx).WithError(rqErr).Warn("failed to requeue review item")
			}
			return res, err
		}
		res.Resolved++
		res.Remaining = d.Remaining
		res.Fired = res.Fired || d.Fired
	}
	if res.Resolved > 0 {
		return res, nil
	}

	res.Remaining = before
	if before > 0 {
		return res, nil
	}
	res.Fired, err = inTx(ctx, func(txCtx context.Context) (bool, error) {
		if err := lockFile(txCtx, fileID); err != nil {
			return false, err
		}
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return false, err
		}
		state, err := pkgoutbox.State(txCtx, tx, s.tasks, upload.FileKey(fileID))
		if err != nil {
			return false, err
		}
		if state.Pending > 0 || state.Failed > 0 {
			composables.UseLogger(txCtx).WithFields(logrus.Fields{
				"file_id": fileID,
				"kind":    kind,
				"pending": state.Pending,
				"failed":  state.Failed,
			}).Info("flush deferred: file has unfinished stages")
			return false, nil
		}
		return s.finishReview(txCtx, fileID, kind)
	})
	return res, err
}
