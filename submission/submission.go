package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtgban/go-buyback/buyback"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

var ErrNotFound = errors.New("submission not found")
var ErrInvalidTransition = errors.New("invalid status transition")
var ErrInvalidStatus = errors.New("invalid status")

// Allowed moves from each status, statuses not listed are final
var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected},
	StatusAccepted: {StatusPaid},
}

func ParseStatus(str string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(str)))
	switch status {
	case StatusPending, StatusAccepted, StatusRejected, StatusPaid:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, str)
}

// CanTransition reports whether a submission can move to the next status.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

type Submission struct {
	Id        uuid.UUID              `json:"id"`
	Customer  string                 `json:"customer"`
	Items     []buyback.SellListItem `json:"items"`
	Status    Status                 `json:"status"`
	Notes     string                 `json:"notes,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// New creates a pending submission with a copy of the items in list.
func New(customer string, list SellList) (*Submission, error) {
	if len(list.Items) == 0 {
		return nil, ErrEmpty
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	sub := Submission{
		Id:        uuid.New(),
		Customer:  strings.TrimSpace(customer),
		Items:     make([]buyback.SellListItem, len(list.Items)),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	copy(sub.Items, list.Items)
	return &sub, nil
}

func (sub *Submission) Summary() Summary {
	return Summarize(sub.Items)
}

func (sub Submission) clone() Submission {
	items := make([]buyback.SellListItem, len(sub.Items))
	copy(items, sub.Items)
	sub.Items = items
	return sub
}

// Store persists submissions
type Store interface {
	Create(ctx context.Context, sub *Submission) error
	Get(ctx context.Context, id uuid.UUID) (Submission, error)

	// List submissions from the most recent, an empty status lists all
	List(ctx context.Context, status Status) ([]Submission, error)

	// Move the submission to a new status, replacing its notes
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, notes string) (Submission, error)
}
