package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"memochain/internal/domain"
)

type MatchMode string

const (
	MatchNormalized MatchMode = "normalized"
	MatchStrict     MatchMode = "strict"
)

func ParseMatchMode(v string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(v))) {
	case "", MatchNormalized:
		return MatchNormalized, nil
	case MatchStrict:
		return MatchStrict, nil
	default:
		return "", fmt.Errorf("%w: unknown match mode %q", domain.ErrValidation, v)
	}
}

const (
	probeNegative      = "negative"
	probeConfirmed     = "confirmed"
	probeFalsePositive = "false_positive"
)

const (
	msgHashFound         = "Hash found in blockchain"
	msgHashNotFound      = "Hash not found in blockchain"
	msgStudentOnChain    = "Student record found in blockchain"
	msgStudentRosterOnly = "Student found in roster but not in blockchain"
	msgStudentNotFound   = "Student not found"
	msgClaimMatches      = "claimed details match"
	msgClaimMismatch     = "claimed details do not match"
)

// Reconciler answers whether a document was recorded and how a claimed
// identity compares with the roster and the ledger. Roster and Metrics are
// optional.
type Reconciler struct {
	Ledger  LedgerReader
	Roster  Roster
	Mode    MatchMode
	Metrics VerificationRecorder
}

func (r *Reconciler) Verify(ctx context.Context, q Query) (domain.MatchVerdict, error) {
	if r.Ledger == nil {
		return domain.MatchVerdict{}, errors.New("ledger required")
	}
	doc, claimIn, err := documentAndClaim(q)
	if err != nil {
		return domain.MatchVerdict{}, err
	}
	var claim *Claim
	if claimIn != nil {
		c, err := claimIn.normalized()
		if err != nil {
			return domain.MatchVerdict{}, err
		}
		claim = &c
	}

	var verdict domain.MatchVerdict
	var docTx *domain.Transaction
	if doc != nil {
		hash, err := doc.digest()
		if err != nil {
			return domain.MatchVerdict{}, err
		}
		verdict.Hash = hash
		block, tx, found, err := r.lookupHash(ctx, hash)
		if err != nil {
			return domain.MatchVerdict{}, err
		}
		if found {
			setLocation(&verdict, block, tx)
			docTx = &tx
			verdict.Message = msgHashFound
		} else {
			verdict.Message = msgHashNotFound
		}
	}

	if claim != nil {
		if err := r.reconcileClaim(ctx, &verdict, *claim, doc != nil, docTx); err != nil {
			return domain.MatchVerdict{}, err
		}
	}

	if r.Metrics != nil {
		r.Metrics.ObserveVerification(q.kind(), verdict.Exists)
	}
	return verdict, nil
}

// lookupHash probes the membership index and confirms positives against the
// ledger. A positive the ledger cannot confirm is reported as absent.
func (r *Reconciler) lookupHash(ctx context.Context, hash string) (domain.Block, domain.Transaction, bool, error) {
	if !r.Ledger.MayContain(hash) {
		r.observeProbe(probeNegative)
		return domain.Block{}, domain.Transaction{}, false, nil
	}
	block, tx, err := r.Ledger.FindTransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.observeProbe(probeFalsePositive)
			return domain.Block{}, domain.Transaction{}, false, nil
		}
		return domain.Block{}, domain.Transaction{}, false, err
	}
	r.observeProbe(probeConfirmed)
	return block, tx, true, nil
}

func (r *Reconciler) reconcileClaim(ctx context.Context, verdict *domain.MatchVerdict, claim Claim, hasDocument bool, docTx *domain.Transaction) error {
	var entry *domain.RosterEntry
	if r.Roster != nil {
		e, err := r.Roster.Get(ctx, claim.StudentID)
		switch {
		case err == nil:
			entry = &e
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("roster lookup: %w", err)
		}
	}
	verdict.Student = entry

	// Without a located document the claim is checked against the student's
	// latest transaction. Its location is only reported for student queries;
	// an unknown document stays absent.
	ledgerTx := docTx
	if docTx == nil {
		block, tx, err := r.Ledger.FindLatestTransactionByStudent(ctx, claim.StudentID)
		switch {
		case err == nil:
			ledgerTx = &tx
			if !hasDocument {
				setLocation(verdict, block, tx)
			}
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("ledger lookup: %w", err)
		}
	}
	if !hasDocument {
		switch {
		case ledgerTx != nil:
			verdict.Message = msgStudentOnChain
		case entry != nil:
			verdict.Message = msgStudentRosterOnly
		default:
			verdict.Message = msgStudentNotFound
		}
	}

	var idSource *string
	if docTx != nil {
		idSource = &docTx.StudentID
	}
	verdict.Match = r.compareClaim(claim, entry, ledgerTx, idSource)
	if verdict.AllMatch() {
		verdict.Message += "; " + msgClaimMatches
	} else if hasMismatch(verdict.Match) {
		verdict.Message += "; " + msgClaimMismatch
	}
	return nil
}

// compareClaim builds the per-field verdicts. The student id is only compared
// against a transaction located by document hash; the roster and a
// by-student lookup match it by construction.
func (r *Reconciler) compareClaim(claim Claim, entry *domain.RosterEntry, tx *domain.Transaction, docStudentID *string) map[string]domain.FieldVerdict {
	var rosterName, rosterCollege, txName, txCollege *string
	if entry != nil {
		rosterName, rosterCollege = &entry.Name, &entry.College
	}
	if tx != nil {
		txName, txCollege = &tx.StudentName, &tx.College
	}
	id := r.compareField(claim.StudentID, source{domain.SourceLedger, docStudentID})
	name := r.compareField(claim.Name, source{domain.SourceRoster, rosterName}, source{domain.SourceLedger, txName})
	college := r.compareField(claim.College, source{domain.SourceRoster, rosterCollege}, source{domain.SourceLedger, txCollege})
	return map[string]domain.FieldVerdict{
		domain.FieldStudentID:   id,
		domain.FieldStudentName: name,
		domain.FieldCollege:     college,
	}
}

type source struct {
	name  string
	value *string
}

// compareField checks provided against each source. The combined status is
// mismatch if any source disagrees, match if at least one agrees and unknown
// otherwise. Expected is the first disagreeing value, else the agreeing one.
func (r *Reconciler) compareField(provided string, sources ...source) domain.FieldVerdict {
	out := domain.FieldVerdict{Status: domain.FieldUnknown, Provided: provided}
	var matched, mismatched bool
	for _, src := range sources {
		if src.value == nil {
			continue
		}
		expected := strings.TrimSpace(*src.value)
		check := domain.SourceCheck{Source: src.name, Status: domain.FieldUnknown, Expected: expected}
		if provided != "" && expected != "" {
			if r.equal(provided, expected) {
				check.Status = domain.FieldMatch
				if !matched && !mismatched {
					out.Expected = expected
				}
				matched = true
			} else {
				check.Status = domain.FieldMismatch
				if !mismatched {
					out.Expected = expected
				}
				mismatched = true
			}
		}
		out.Sources = append(out.Sources, check)
	}
	switch {
	case mismatched:
		out.Status = domain.FieldMismatch
	case matched:
		out.Status = domain.FieldMatch
	}
	return out
}

func (r *Reconciler) equal(a, b string) bool {
	if r.Mode == MatchStrict {
		return a == b
	}
	return strings.EqualFold(collapseSpaces(a), collapseSpaces(b))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasMismatch(fields map[string]domain.FieldVerdict) bool {
	for _, f := range fields {
		if f.Status == domain.FieldMismatch {
			return true
		}
	}
	return false
}

func setLocation(v *domain.MatchVerdict, block domain.Block, tx domain.Transaction) {
	idx := block.Index
	v.Exists = true
	v.BlockIndex = &idx
	v.BlockHash = block.Hash
	v.Block = &block
	v.Transaction = &tx
	if v.Hash == "" {
		v.Hash = tx.Hash
	}
}

func (r *Reconciler) observeProbe(result string) {
	if r.Metrics != nil {
		r.Metrics.ObserveIndexProbe(result)
	}
}
