package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
	"github.com/iota-uz/payroll-reconciler/pkg/application"
)

type reviewTarget struct {
	fileID int64
	kind   string
}

func (o *reviewTarget) bind(cmd *cobra.Command, withKind bool) {
	cmd.Flags().Int64Var(&o.fileID, "file", 0, "Standardized file id (required)")
	_ = cmd.MarkFlagRequired("file")
	if withKind {
		cmd.Flags().StringVar(&o.kind, "kind", "", "Queue: responding_agency, parent_employer or child_employer (required)")
		_ = cmd.MarkFlagRequired("kind")
	}
}

func (o *reviewTarget) parseKind() (review.Kind, error) {
	k, err := review.ParseKind(strings.TrimSpace(o.kind))
	if err != nil {
		return "", withCode(exitUsage, fmt.Errorf("invalid --kind: %w", err))
	}
	return k, nil
}

// itemView carries enough to hand an item back to resolve or requeue.
type itemView struct {
	Found       bool             `json:"found"`
	ID          string           `json:"id,omitempty"`
	Kind        string           `json:"kind,omitempty"`
	Label       string           `json:"label,omitempty"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Suggestions []suggestionView `json:"suggestions,omitempty"`
}

type suggestionView struct {
	AliasID   int64  `json:"alias_id"`
	OwnerID   int64  `json:"owner_id"`
	Name      string `json:"name"`
	Preferred bool   `json:"preferred"`
	Distance  int    `json:"distance"`
}

func newSuggestionViews(in []services.Suggestion) []suggestionView {
	out := make([]suggestionView, 0, len(in))
	for _, s := range in {
		out = append(out, suggestionView{
			AliasID:   s.AliasID,
			OwnerID:   s.OwnerID,
			Name:      s.Name,
			Preferred: s.Preferred,
			Distance:  s.Distance,
		})
	}
	return out
}

func newItemView(item review.Item) (itemView, error) {
	payload, err := review.Encode(item.Candidate)
	if err != nil {
		return itemView{}, err
	}
	return itemView{
		Found:   true,
		ID:      item.ID,
		Kind:    string(item.Candidate.Kind()),
		Label:   item.Candidate.Label(),
		Payload: payload,
	}, nil
}

// parseItem rebuilds a checked-out item from its printed payload. The id is
// derived from the candidate when omitted.
func parseItem(id, payload string) (review.Item, error) {
	c, err := review.Decode([]byte(payload))
	if err != nil {
		return review.Item{}, withCode(exitUsage, fmt.Errorf("invalid --payload: %w", err))
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = review.ItemID(c)
	}
	return review.Item{ID: id, Candidate: c}, nil
}

type decisionView struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	OwnerID   int64  `json:"owner_id"`
	Merged    bool   `json:"merged"`
	Rewritten int64  `json:"rewritten"`
	Remaining int64  `json:"remaining"`
	Fired     bool   `json:"fired"`
}

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work a file's review queues",
	}
	cmd.AddCommand(newReviewCheckoutCmd())
	cmd.AddCommand(newReviewSuggestCmd())
	cmd.AddCommand(newReviewResolveCmd())
	cmd.AddCommand(newReviewRequeueCmd())
	cmd.AddCommand(newReviewFlushCmd())
	cmd.AddCommand(newReviewRemainingCmd())
	return cmd
}

func reviewService(rt *runtime) *services.ReviewService {
	return application.GetService[services.ReviewService](rt.app)
}

func newReviewCheckoutCmd() *cobra.Command {
	var (
		target reviewTarget
		wait   time.Duration
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Check out the next review item, with match suggestions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := target.parseKind()
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				svc := reviewService(rt)
				item, ok, err := svc.Checkout(ctx, target.fileID, kind, wait)
				if err != nil {
					return err
				}
				if !ok {
					return writeJSONLine(itemView{Found: false})
				}
				view, err := newItemView(item)
				if err != nil {
					return err
				}
				if limit > 0 {
					suggestions, err := svc.Suggest(ctx, item, limit)
					if err != nil {
						return err
					}
					view.Suggestions = newSuggestionViews(suggestions)
				}
				return writeJSONLine(view)
			})
		},
	}
	target.bind(cmd, true)
	cmd.Flags().DurationVar(&wait, "wait", 0, "How long to wait for an item")
	cmd.Flags().IntVar(&limit, "suggestions", 5, "Number of match suggestions (0 disables)")
	return cmd
}

func newReviewSuggestCmd() *cobra.Command {
	var (
		payload string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Rank existing aliases a candidate could match",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := parseItem("", payload)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				suggestions, err := reviewService(rt).Suggest(ctx, item, limit)
				if err != nil {
					return err
				}
				return writeJSONLine(newSuggestionViews(suggestions))
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "Item payload as printed by checkout (required)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of suggestions")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func newReviewResolveCmd() *cobra.Command {
	var (
		target  reviewTarget
		id      string
		payload string
		match   int64
		create  bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Match a checked-out item to an alias, or create a new entity",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if create == cmd.Flags().Changed("match") {
				return withCode(exitUsage, fmt.Errorf("exactly one of --match or --create is required"))
			}
			if !create && match <= 0 {
				return withCode(exitUsage, fmt.Errorf("invalid --match: %d", match))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := parseItem(id, payload)
			if err != nil {
				return err
			}
			var matchID *int64
			if !create {
				matchID = &match
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				d, err := reviewService(rt).Resolve(ctx, target.fileID, item, matchID)
				if err != nil {
					return err
				}
				return writeJSONLine(decisionView{
					Kind:      string(d.Kind),
					Name:      d.Name,
					OwnerID:   d.OwnerID,
					Merged:    d.Merged,
					Rewritten: d.Rewritten,
					Remaining: d.Remaining,
					Fired:     d.Fired,
				})
			})
		},
	}
	target.bind(cmd, false)
	cmd.Flags().StringVar(&id, "id", "", "Item id as printed by checkout")
	cmd.Flags().StringVar(&payload, "payload", "", "Item payload as printed by checkout (required)")
	cmd.Flags().Int64Var(&match, "match", 0, "Alias id of the existing entity to match")
	cmd.Flags().BoolVar(&create, "create", false, "Create a new entity for the candidate")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func newReviewRequeueCmd() *cobra.Command {
	var (
		target reviewTarget
		id     string
	)

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Return a checked-out item to the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := target.parseKind()
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if err := reviewService(rt).Requeue(ctx, target.fileID, kind, id); err != nil {
					return err
				}
				return writeJSONLine(map[string]string{"requeued": id})
			})
		},
	}
	target.bind(cmd, true)
	cmd.Flags().StringVar(&id, "id", "", "Item id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newReviewFlushCmd() *cobra.Command {
	var target reviewTarget

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Create a new entity for every pending item and finish the review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := target.parseKind()
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				res, err := reviewService(rt).Flush(ctx, target.fileID, kind)
				if err != nil {
					return err
				}
				return writeJSONLine(map[string]any{
					"resolved":  res.Resolved,
					"remaining": res.Remaining,
					"fired":     res.Fired,
				})
			})
		},
	}
	target.bind(cmd, true)
	return cmd
}

func newReviewRemainingCmd() *cobra.Command {
	var target reviewTarget

	cmd := &cobra.Command{
		Use:   "remaining",
		Short: "Count pending and checked-out items per queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := review.Kinds()
			if target.kind != "" {
				k, err := target.parseKind()
				if err != nil {
					return err
				}
				kinds = []review.Kind{k}
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				svc := reviewService(rt)
				out := make(map[string]int64, len(kinds))
				for _, k := range kinds {
					n, err := svc.Remaining(ctx, target.fileID, k)
					if err != nil {
						return err
					}
					out[string(k)] = n
				}
				return writeJSONLine(out)
			})
		},
	}
	target.bind(cmd, false)
	cmd.Flags().StringVar(&target.kind, "kind", "", "Limit to one queue")
	return cmd
}
