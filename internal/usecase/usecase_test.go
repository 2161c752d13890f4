package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"memochain/internal/domain"
	"memochain/internal/infra/ledger"
	"memochain/internal/infra/logging"
	"memochain/internal/infra/roster"
)

var janeHash = strings.Repeat("aa", 32)

func newLedger(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(context.Background(), ledger.Options{
		Difficulty:    1,
		MiningTimeout: 10 * time.Second,
		Logger:        logging.Discard(),
	})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedJane(t *testing.T, store *ledger.Store) {
	t.Helper()
	index, _, err := store.AppendTransaction(context.Background(), domain.Transaction{
		Hash:        janeHash,
		StudentID:   "7",
		StudentName: "Jane Doe",
		College:     "Eng",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if index != 1 {
		t.Fatalf("expected block 1, got %d", index)
	}
}

// fakeLedger answers every index probe positively but holds no transactions.
type fakeLedger struct{}

func (fakeLedger) MayContain(string) bool { return true }

func (fakeLedger) FindTransactionByHash(context.Context, string) (domain.Block, domain.Transaction, error) {
	return domain.Block{}, domain.Transaction{}, domain.ErrNotFound
}

func (fakeLedger) FindLatestTransactionByStudent(context.Context, string) (domain.Block, domain.Transaction, error) {
	return domain.Block{}, domain.Transaction{}, domain.ErrNotFound
}

type recorder struct {
	probes        map[string]int
	verifications int
}

func (r *recorder) ObserveVerification(string, bool) { r.verifications++ }

func (r *recorder) ObserveIndexProbe(result string) {
	if r.probes == nil {
		r.probes = make(map[string]int)
	}
	r.probes[result]++
}

func TestVerifyNameMismatchAgainstLedger(t *testing.T) {
	store := newLedger(t)
	seedJane(t, store)
	rec := &Reconciler{Ledger: store}

	verdict, err := rec.Verify(context.Background(), StudentQuery{Claim: Claim{StudentID: "7", Name: "Jane D.", College: "Eng"}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !verdict.Exists {
		t.Fatal("expected exists")
	}
	name := verdict.Match[domain.FieldStudentName]
	if name.Status != domain.FieldMismatch || name.Expected != "Jane Doe" || name.Provided != "Jane D." {
		t.Fatalf("unexpected name verdict: %+v", name)
	}
	if college := verdict.Match[domain.FieldCollege]; college.Status != domain.FieldMatch {
		t.Fatalf("unexpected college verdict: %+v", college)
	}
	if verdict.AllMatch() {
		t.Fatal("expected AllMatch false")
	}
	if !strings.Contains(verdict.Message, "do not match") {
		t.Fatalf("unexpected message %q", verdict.Message)
	}
}

func TestVerifyUnknownHash(t *testing.T) {
	store := newLedger(t)
	seedJane(t, store)
	rec := &Reconciler{Ledger: store}

	verdict, err := rec.Verify(context.Background(), HashQuery{Hash: strings.Repeat("0f", 32)})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verdict.Exists || verdict.Block != nil || verdict.BlockIndex != nil {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if verdict.Message != msgHashNotFound {
		t.Fatalf("unexpected message %q", verdict.Message)
	}
}

func TestVerifyKnownHashAndFile(t *testing.T) {
	store := newLedger(t)
	content := []byte("%PDF-1.4 memo")
	hash := strings.ToUpper(digestOf(t, content))
	if _, _, err := store.AppendTransaction(context.Background(), domain.Transaction{Hash: hash, StudentID: "9"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	rec := &Reconciler{Ledger: store}

	byHash, err := rec.Verify(context.Background(), HashQuery{Hash: hash})
	if err != nil {
		t.Fatalf("verify hash: %v", err)
	}
	byFile, err := rec.Verify(context.Background(), FileQuery{Content: content})
	if err != nil {
		t.Fatalf("verify file: %v", err)
	}
	if !byHash.Exists || !byFile.Exists {
		t.Fatal("expected both lookups to find the memo")
	}
	if *byHash.BlockIndex != *byFile.BlockIndex || byHash.Hash != byFile.Hash {
		t.Fatalf("hash and file lookups disagree: %+v vs %+v", byHash, byFile)
	}
}

func TestVerifyFalsePositiveIsNotFound(t *testing.T) {
	rec := &recorder{}
	r := &Reconciler{Ledger: fakeLedger{}, Metrics: rec}

	verdict, err := r.Verify(context.Background(), HashQuery{Hash: strings.Repeat("ab", 32)})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verdict.Exists {
		t.Fatal("filter positive must not imply existence")
	}
	if rec.probes[probeFalsePositive] != 1 || rec.verifications != 1 {
		t.Fatalf("unexpected metrics: %+v", rec)
	}
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	r := &Reconciler{Ledger: fakeLedger{}}
	ctx := context.Background()

	cases := []Query{
		HashQuery{Hash: "xyz"},
		FileQuery{},
		StudentQuery{Claim: Claim{Name: "Jane"}},
		DocumentClaimQuery{Claim: Claim{StudentID: "7"}},
		nil,
	}
	for _, q := range cases {
		if _, err := r.Verify(ctx, q); err == nil || !errorsIsValidation(err) {
			t.Fatalf("query %#v: expected validation error, got %v", q, err)
		}
	}
}

func TestVerifyDocumentClaimUsesDocumentTransaction(t *testing.T) {
	store := newLedger(t)
	seedJane(t, store)
	later := strings.Repeat("bb", 32)
	if _, _, err := store.AppendTransaction(context.Background(), domain.Transaction{Hash: later, StudentID: "7", StudentName: "Jane Q. Doe", College: "Eng"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	idx := roster.New([]domain.RosterEntry{{ID: "7", Name: "Jane Doe", College: "Engineering"}})
	r := &Reconciler{Ledger: store, Roster: idx}

	verdict, err := r.Verify(context.Background(), DocumentClaimQuery{
		Document: ByHash{Hash: janeHash},
		Claim:    Claim{StudentID: "7", Name: "  jane   DOE ", College: "Eng"},
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if *verdict.BlockIndex != 1 {
		t.Fatalf("expected the document's block, got %d", *verdict.BlockIndex)
	}
	if got := verdict.Match[domain.FieldStudentName].Status; got != domain.FieldMatch {
		t.Fatalf("normalized name should match, got %s", got)
	}
	if got := verdict.Match[domain.FieldStudentID].Status; got != domain.FieldMatch {
		t.Fatalf("student id should match the document, got %s", got)
	}
	college := verdict.Match[domain.FieldCollege]
	if college.Status != domain.FieldMismatch || college.Expected != "Engineering" {
		t.Fatalf("roster college should disagree: %+v", college)
	}
	if len(college.Sources) != 2 || college.Sources[1].Status != domain.FieldMatch {
		t.Fatalf("ledger source should agree: %+v", college.Sources)
	}
}

func TestVerifyUnknownDocumentChecksClaimAgainstStudentLedger(t *testing.T) {
	store := newLedger(t)
	seedJane(t, store)
	r := &Reconciler{Ledger: store}

	verdict, err := r.Verify(context.Background(), DocumentClaimQuery{
		Document: ByHash{Hash: strings.Repeat("0f", 32)},
		Claim:    Claim{StudentID: "7", Name: "Jane D.", College: "Eng"},
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verdict.Exists || verdict.BlockIndex != nil || verdict.Transaction != nil {
		t.Fatalf("unknown document must stay absent: %+v", verdict)
	}
	name := verdict.Match[domain.FieldStudentName]
	if name.Status != domain.FieldMismatch || name.Expected != "Jane Doe" {
		t.Fatalf("expected ledger name mismatch, got %+v", name)
	}
	if len(name.Sources) != 1 || name.Sources[0].Source != domain.SourceLedger || name.Sources[0].Status != domain.FieldMismatch {
		t.Fatalf("unexpected name sources: %+v", name.Sources)
	}
	if got := verdict.Match[domain.FieldCollege].Status; got != domain.FieldMatch {
		t.Fatalf("college should match the ledger, got %s", got)
	}
	if !strings.HasPrefix(verdict.Message, msgHashNotFound) {
		t.Fatalf("unexpected message %q", verdict.Message)
	}
}

func TestVerifyStrictMode(t *testing.T) {
	store := newLedger(t)
	seedJane(t, store)
	r := &Reconciler{Ledger: store, Mode: MatchStrict}

	verdict, err := r.Verify(context.Background(), StudentQuery{Claim: Claim{StudentID: "7", Name: "jane doe"}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := verdict.Match[domain.FieldStudentName].Status; got != domain.FieldMismatch {
		t.Fatalf("strict mode should be case sensitive, got %s", got)
	}
	if got := verdict.Match[domain.FieldCollege].Status; got != domain.FieldUnknown {
		t.Fatalf("unclaimed college should be unknown, got %s", got)
	}
}

func TestVerifyStudentRosterOnly(t *testing.T) {
	store := newLedger(t)
	r := &Reconciler{Ledger: store, Roster: roster.New([]domain.RosterEntry{{ID: "3", Name: "Ana", College: "Arts"}})}

	verdict, err := r.Verify(context.Background(), StudentQuery{Claim: Claim{StudentID: "3", Name: "Ana"}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verdict.Exists || verdict.Student == nil {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if !strings.HasPrefix(verdict.Message, msgStudentRosterOnly) {
		t.Fatalf("unexpected message %q", verdict.Message)
	}
	if !verdict.AllMatch() {
		t.Fatalf("expected roster match: %+v", verdict.Match)
	}
}

func TestParseMatchMode(t *testing.T) {
	if m, err := ParseMatchMode(""); err != nil || m != MatchNormalized {
		t.Fatalf("default: %v %v", m, err)
	}
	if m, err := ParseMatchMode("STRICT"); err != nil || m != MatchStrict {
		t.Fatalf("strict: %v %v", m, err)
	}
	if _, err := ParseMatchMode("fuzzy"); err == nil {
		t.Fatal("expected error")
	}
}

func newRosterFor(t *testing.T, entries ...domain.RosterEntry) *roster.Index {
	t.Helper()
	return roster.New(entries)
}
