// Package review defines the candidates awaiting a human match-or-create
// decision and the queue contract that holds them.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-reconciler/pkg/serrors"
)

type Kind string

const (
	KindRespondingAgency Kind = "responding_agency"
	KindParentEmployer   Kind = "parent_employer"
	KindChildEmployer    Kind = "child_employer"
)

func Kinds() []Kind {
	return []Kind{KindRespondingAgency, KindParentEmployer, KindChildEmployer}
}

var (
	ErrUnknownKind        = serrors.NewError("REVIEW_UNKNOWN_KIND", "unknown review kind")
	ErrUnsupportedVersion = serrors.NewError("REVIEW_UNSUPPORTED_VERSION", "unsupported review item version")
	ErrMalformedItem      = serrors.NewError("REVIEW_MALFORMED_ITEM", "malformed review item")
	ErrItemNotFound       = serrors.NewError("REVIEW_ITEM_NOT_FOUND", "review item not found")
)

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Candidate is a closed set: RespondingAgencyCandidate, ParentEmployerCandidate
// and ChildEmployerCandidate.
type Candidate interface {
	Kind() Kind
	// Label is the candidate as shown to a reviewer.
	Label() string
	candidate()
}

type RespondingAgencyCandidate struct {
	Name string `json:"name"`
}

type ParentEmployerCandidate struct {
	Name string `json:"name"`
}

// ChildEmployerCandidate is a department name under the unit aliased Parent.
type ChildEmployerCandidate struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

func (RespondingAgencyCandidate) Kind() Kind { return KindRespondingAgency }
func (ParentEmployerCandidate) Kind() Kind   { return KindParentEmployer }
func (ChildEmployerCandidate) Kind() Kind    { return KindChildEmployer }

func (c RespondingAgencyCandidate) Label() string { return c.Name }
func (c ParentEmployerCandidate) Label() string   { return c.Name }
func (c ChildEmployerCandidate) Label() string    { return c.Parent + " / " + c.Name }

func (RespondingAgencyCandidate) candidate() {}
func (ParentEmployerCandidate) candidate()   {}
func (ChildEmployerCandidate) candidate()    {}

// Item is a queued candidate.
type Item struct {
	ID        string
	Candidate Candidate
}

const envelopeVersion = 1

type envelope struct {
	V       int             `json:"v"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(c Candidate) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil candidate", ErrMalformedItem)
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{V: envelopeVersion, Kind: c.Kind(), Payload: payload})
}

func Decode(b []byte) (Candidate, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}
	if env.V != envelopeVersion {
		return nil, fmt.Errorf("%w: v=%d", ErrUnsupportedVersion, env.V)
	}

	var (
		c   Candidate
		err error
	)
	switch env.Kind {
	case KindRespondingAgency:
		var p RespondingAgencyCandidate
		err = json.Unmarshal(env.Payload, &p)
		c = p
	case KindParentEmployer:
		var p ParentEmployerCandidate
		err = json.Unmarshal(env.Payload, &p)
		c = p
	case KindChildEmployer:
		var p ChildEmployerCandidate
		err = json.Unmarshal(env.Payload, &p)
		c = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}
	return c, nil
}

var itemNamespace = uuid.MustParse("8f2d7c1e-3b4a-5c6d-9e0f-a1b2c3d4e5f6")

// ItemID is stable for equal candidates, so re-enqueueing is idempotent.
func ItemID(c Candidate) string {
	b, err := Encode(c)
	if err != nil {
		return ""
	}
	return uuid.NewSHA1(itemNamespace, b).String()
}

// Queue holds the candidates of one (file, kind). Delivery is at least once:
// an item checked out longer than the autoclean interval returns to pending.
type Queue interface {
	Enqueue(ctx context.Context, c Candidate) (string, error)
	// Checkout waits up to timeout for a pending item; zero does not wait.
	Checkout(ctx context.Context, timeout time.Duration) (Item, bool, error)
	Acknowledge(ctx context.Context, id string) error
	Requeue(ctx context.Context, id string) error
	// RemainingCount counts pending and checked-out items.
	RemainingCount(ctx context.Context) (int64, error)
	Purge(ctx context.Context) error
}

// Queues hands out the queue of a (file, kind).
type Queues interface {
	Queue(fileID int64, kind Kind) Queue
}
