package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"memochain/internal/domain"
)

type StudentLookupResult struct {
	Found   bool                `json:"found"`
	Message string              `json:"message"`
	Student *domain.RosterEntry `json:"student,omitempty"`
	Verdict domain.MatchVerdict `json:"verdict"`
}

// StudentLookup merges the roster entry for an id with the on-chain verdict
// for that student. The roster's own name and college are the claim, so any
// disagreement shows up on the ledger source.
type StudentLookup struct {
	Roster     Roster
	Reconciler *Reconciler
}

func (uc *StudentLookup) Execute(ctx context.Context, studentID string) (*StudentLookupResult, error) {
	if uc.Reconciler == nil {
		return nil, errors.New("reconciler required")
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, fmt.Errorf("%w: %w: %s", domain.ErrValidation, domain.ErrMissingField, domain.FieldStudentID)
	}

	claim := Claim{StudentID: studentID}
	var entry *domain.RosterEntry
	if uc.Roster != nil {
		e, err := uc.Roster.Get(ctx, studentID)
		switch {
		case err == nil:
			entry = &e
			claim.Name = e.Name
			claim.College = e.College
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	verdict, err := uc.Reconciler.Verify(ctx, StudentQuery{Claim: claim})
	if err != nil {
		return nil, err
	}
	out := &StudentLookupResult{
		Found:   entry != nil || verdict.Exists,
		Message: verdict.Message,
		Student: entry,
		Verdict: verdict,
	}
	return out, nil
}
