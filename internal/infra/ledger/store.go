// Package ledger owns the sealed block sequence. Appends are serialised and
// mined one block per transaction; reads see only published blocks and never
// wait on mining.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"memochain/internal/domain"
	"memochain/internal/infra/bloom"
	"memochain/internal/infra/chain"
	"memochain/internal/infra/crypto"
	"memochain/internal/infra/merkle"
	"memochain/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

const (
	DefaultDifficulty    = 4
	DefaultMiningTimeout = 30 * time.Second
)

// fieldNames are the transaction fields that may be listed as required.
var fieldNames = map[string]bool{
	domain.FieldStudentID:   true,
	domain.FieldStudentName: true,
	domain.FieldCollege:     true,
	"uploader":              true,
	"original_filename":     true,
}

// Backend persists sealed blocks. LoadBlocks returns them in index order.
type Backend interface {
	LoadBlocks(ctx context.Context) ([]domain.Block, error)
	AppendBlock(ctx context.Context, block domain.Block) error
	Close() error
}

type Options struct {
	Difficulty    int
	MinDifficulty int
	MiningTimeout time.Duration

	// Backend is optional; without one the ledger lives in memory only.
	Backend Backend

	ExpectedItems     uint64
	FalsePositiveRate float64

	Admission      domain.AdmissionPolicy
	RequiredFields []string

	Clock   func() time.Time
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

type Store struct {
	difficulty    int
	minDifficulty int
	miningTimeout time.Duration
	backend       Backend
	admission     domain.AdmissionPolicy
	required      []string
	clock         func() time.Time
	log           logrus.FieldLogger
	metrics       *metrics.Metrics

	// appendSem serialises appends and index rebuilds.
	appendSem chan struct{}

	mu        sync.RWMutex
	blocks    []domain.Block
	byHash    map[string]domain.TxLocation
	byStudent map[string][]domain.TxLocation
	leaves    merkle.Accumulator
	txCount   int64
	index     *bloom.Filter
}

// Open restores the ledger from opts.Backend, validating the restored chain,
// or mines and persists a genesis block when the backend is empty.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s, err := newStore(opts)
	if err != nil {
		return nil, err
	}

	var restored []domain.Block
	if s.backend != nil {
		restored, err = s.backend.LoadBlocks(ctx)
		if err != nil {
			return nil, fmt.Errorf("load blocks: %w", err)
		}
	}

	if len(restored) == 0 {
		genesis, err := s.seal(ctx, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("mine genesis: %w", err)
		}
		if s.backend != nil {
			if err := s.backend.AppendBlock(ctx, genesis); err != nil {
				return nil, fmt.Errorf("persist genesis: %w", err)
			}
		}
		restored = []domain.Block{genesis}
		s.log.WithField("hash", genesis.Hash).Info("genesis block sealed")
	} else {
		report := chain.Validate(restored, s.minDifficulty)
		s.metrics.ObserveValidation(report.Valid)
		if !report.Valid {
			return nil, report.Err()
		}
		s.log.WithField("blocks", len(restored)).Info("ledger restored")
	}

	for _, b := range restored {
		if err := s.publish(b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newStore(opts Options) (*Store, error) {
	difficulty := opts.Difficulty
	if difficulty < 0 || difficulty > chain.MaxDifficulty {
		return nil, fmt.Errorf("invalid difficulty %d", difficulty)
	}
	minDifficulty := opts.MinDifficulty
	if minDifficulty < 0 || minDifficulty > difficulty {
		return nil, fmt.Errorf("invalid minimum difficulty %d", minDifficulty)
	}
	timeout := opts.MiningTimeout
	if timeout <= 0 {
		timeout = DefaultMiningTimeout
	}
	for _, field := range opts.RequiredFields {
		if !fieldNames[field] {
			return nil, fmt.Errorf("unknown required field %q", field)
		}
	}
	expected := opts.ExpectedItems
	if expected == 0 {
		expected = bloom.DefaultExpectedItems
	}
	fpRate := opts.FalsePositiveRate
	if fpRate == 0 {
		fpRate = bloom.DefaultFalsePositiveRate
	}
	index, err := bloom.New(expected, fpRate)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	var log logrus.FieldLogger = logrus.StandardLogger()
	if opts.Logger != nil {
		log = opts.Logger
	}
	return &Store{
		difficulty:    difficulty,
		minDifficulty: minDifficulty,
		miningTimeout: timeout,
		backend:       opts.Backend,
		admission:     opts.Admission,
		required:      append([]string(nil), opts.RequiredFields...),
		clock:         clock,
		log:           log.WithField("component", "ledger"),
		metrics:       opts.Metrics,
		appendSem:     make(chan struct{}, 1),
		byHash:        make(map[string]domain.TxLocation),
		byStudent:     make(map[string][]domain.TxLocation),
		index:         index,
	}, nil
}

func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// AppendTransaction validates tx, seals it into a new block and publishes it.
// A hash that is already recorded returns its existing location together with
// domain.ErrAlreadyRecorded.
func (s *Store) AppendTransaction(ctx context.Context, tx domain.Transaction) (int64, string, error) {
	index, blockHash, err := s.appendTransaction(ctx, tx)
	s.metrics.ObserveAppend(err)
	return index, blockHash, err
}

func (s *Store) appendTransaction(ctx context.Context, tx domain.Transaction) (int64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	tx, err := s.admit(ctx, tx)
	if err != nil {
		return 0, "", err
	}

	if err := s.lock(ctx); err != nil {
		return 0, "", err
	}
	defer s.unlock()

	s.mu.RLock()
	if loc, ok := s.byHash[tx.Hash]; ok {
		existing := s.blocks[loc.BlockIndex].Hash
		s.mu.RUnlock()
		return loc.BlockIndex, existing, domain.ErrAlreadyRecorded
	}
	tip := s.blocks[len(s.blocks)-1]
	s.mu.RUnlock()

	block, err := s.seal(ctx, &tip, []domain.Transaction{tx})
	if err != nil {
		return 0, "", err
	}
	if s.backend != nil {
		if err := s.backend.AppendBlock(ctx, block); err != nil {
			return 0, "", fmt.Errorf("persist block %d: %w", block.Index, err)
		}
	}
	if err := s.publish(block); err != nil {
		return 0, "", err
	}

	s.log.WithFields(logrus.Fields{
		"block_index": block.Index,
		"block_hash":  block.Hash,
		"nonce":       block.Nonce,
		"student_id":  tx.StudentID,
	}).Info("block sealed")
	return block.Index, block.Hash, nil
}

// admit normalises tx and runs the required-field and admission checks.
func (s *Store) admit(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	hash, err := crypto.ParseDigest(tx.Hash)
	if err != nil {
		return tx, err
	}
	tx.Hash = hash
	tx.StudentID = strings.TrimSpace(tx.StudentID)
	tx.StudentName = strings.TrimSpace(tx.StudentName)
	tx.College = strings.TrimSpace(tx.College)
	if tx.Timestamp == "" {
		tx.Timestamp = s.clock().UTC().Format(time.RFC3339Nano)
	} else if _, err := time.Parse(time.RFC3339Nano, tx.Timestamp); err != nil {
		return tx, fmt.Errorf("%w: tx_timestamp must be RFC3339", domain.ErrValidation)
	}

	for _, field := range s.required {
		if fieldValue(tx, field) == "" {
			return tx, fmt.Errorf("%w: %w: %s", domain.ErrValidation, domain.ErrMissingField, field)
		}
	}

	if s.admission != nil {
		result, err := s.admission.Evaluate(ctx, domain.AdmissionInput{
			Transaction:    tx,
			RequiredFields: s.required,
			FromContent:    tx.MediaType != "",
		})
		if err != nil {
			return tx, fmt.Errorf("admission policy: %w", err)
		}
		if !result.Allow {
			return tx, denyError(result.Deny)
		}
	}
	tx.Verified = true
	return tx, nil
}

func denyError(denies []domain.PolicyDeny) error {
	if len(denies) == 0 {
		return domain.ErrPolicyDenied
	}
	reasons := make([]string, 0, len(denies))
	for _, d := range denies {
		if d.Message != "" {
			reasons = append(reasons, d.Code+": "+d.Message)
		} else {
			reasons = append(reasons, d.Code)
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrPolicyDenied, strings.Join(reasons, "; "))
}

func fieldValue(tx domain.Transaction, field string) string {
	switch field {
	case domain.FieldStudentID:
		return tx.StudentID
	case domain.FieldStudentName:
		return tx.StudentName
	case domain.FieldCollege:
		return tx.College
	case "uploader":
		return strings.TrimSpace(tx.Uploader)
	case "original_filename":
		return strings.TrimSpace(tx.OriginalFilename)
	default:
		return ""
	}
}

func (s *Store) seal(ctx context.Context, prev *domain.Block, txs []domain.Transaction) (domain.Block, error) {
	block, err := chain.NewBlock(prev, txs, s.clock(), s.difficulty)
	if err != nil {
		return domain.Block{}, err
	}
	mineCtx, cancel := context.WithTimeout(ctx, s.miningTimeout)
	defer cancel()
	start := time.Now()
	sealed, err := chain.Mine(mineCtx, block)
	s.metrics.ObserveMining(time.Since(start), err)
	if err != nil {
		if errors.Is(err, domain.ErrMiningTimeout) {
			s.log.WithFields(logrus.Fields{
				"block_index": block.Index,
				"difficulty":  block.Difficulty,
				"timeout":     s.miningTimeout.String(),
			}).Warn("mining timed out")
		}
		return domain.Block{}, err
	}
	return sealed, nil
}

// publish makes b visible to readers. Callers hold appendSem or own the
// store exclusively.
func (s *Store) publish(b domain.Block) error {
	leaves, err := chain.LeafHashes(b.Transactions)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for i, tx := range b.Transactions {
		leafIndex, err := s.leaves.Append(leaves[i])
		if err != nil {
			s.mu.Unlock()
			return err
		}
		loc := domain.TxLocation{BlockIndex: b.Index, TxIndex: i, LeafIndex: leafIndex}
		if _, ok := s.byHash[tx.Hash]; !ok {
			s.byHash[tx.Hash] = loc
		}
		if tx.StudentID != "" {
			s.byStudent[tx.StudentID] = append(s.byStudent[tx.StudentID], loc)
		}
		s.index.Add(tx.Hash)
	}
	s.blocks = append(s.blocks, b.Clone())
	s.txCount += int64(len(b.Transactions))
	blocks, txs := int64(len(s.blocks)), s.txCount
	s.mu.Unlock()

	s.metrics.SetLedgerSize(blocks, txs)
	return nil
}

func (s *Store) lock(ctx context.Context) error {
	select {
	case s.appendSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock() {
	<-s.appendSem
}

func (s *Store) GetBlock(ctx context.Context, index int64) (domain.Block, error) {
	if err := ctx.Err(); err != nil {
		return domain.Block{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= int64(len(s.blocks)) {
		return domain.Block{}, domain.ErrNotFound
	}
	return s.blocks[index].Clone(), nil
}

// FindTransactionByHash is the authoritative lookup behind a positive index probe.
func (s *Store) FindTransactionByHash(ctx context.Context, hash string) (domain.Block, domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Block{}, domain.Transaction{}, err
	}
	hash, err := crypto.ParseDigest(hash)
	if err != nil {
		return domain.Block{}, domain.Transaction{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.byHash[hash]
	if !ok {
		return domain.Block{}, domain.Transaction{}, domain.ErrNotFound
	}
	b := s.blocks[loc.BlockIndex]
	return b.Clone(), b.Transactions[loc.TxIndex], nil
}

func (s *Store) FindLatestTransactionByStudent(ctx context.Context, studentID string) (domain.Block, domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Block{}, domain.Transaction{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	locs := s.byStudent[strings.TrimSpace(studentID)]
	if len(locs) == 0 {
		return domain.Block{}, domain.Transaction{}, domain.ErrNotFound
	}
	loc := locs[len(locs)-1]
	b := s.blocks[loc.BlockIndex]
	return b.Clone(), b.Transactions[loc.TxIndex], nil
}

func (s *Store) LatestBlock(ctx context.Context) (domain.Block, error) {
	if err := ctx.Err(); err != nil {
		return domain.Block{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[len(s.blocks)-1].Clone(), nil
}

func (s *Store) Stats(ctx context.Context) (domain.LedgerStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := s.blocks[len(s.blocks)-1].Clone()
	return domain.LedgerStats{
		TotalBlocks:       int64(len(s.blocks)),
		TotalTransactions: s.txCount,
		LatestBlock:       &latest,
	}, nil
}

// Snapshot returns a consistent copy of every published block.
func (s *Store) Snapshot(ctx context.Context) ([]domain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Block, len(s.blocks))
	for i, b := range s.blocks {
		out[i] = b.Clone()
	}
	return out, nil
}

// Range returns up to limit blocks starting at from, plus the ledger height.
func (s *Store) Range(ctx context.Context, from int64, limit int) ([]domain.Block, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if from < 0 || limit < 0 {
		return nil, 0, fmt.Errorf("%w: invalid range", domain.ErrValidation)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := int64(len(s.blocks))
	if from >= total {
		return []domain.Block{}, total, nil
	}
	end := from + int64(limit)
	if end > total {
		end = total
	}
	out := make([]domain.Block, 0, end-from)
	for _, b := range s.blocks[from:end] {
		out = append(out, b.Clone())
	}
	return out, total, nil
}

// MayContain probes the membership index. A false answer is definitive.
func (s *Store) MayContain(hash string) bool {
	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()
	return index.MayContain(strings.ToLower(strings.TrimSpace(hash)))
}

func (s *Store) IndexStats() domain.IndexStats {
	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()
	return index.Stats()
}

// RebuildIndex replays every recorded hash into a fresh filter and swaps it in.
func (s *Store) RebuildIndex(ctx context.Context) (int64, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	s.mu.RLock()
	fresh := s.index.CloneEmpty()
	var added int64
	for _, b := range s.blocks {
		for _, tx := range b.Transactions {
			fresh.Add(tx.Hash)
			added++
		}
	}
	s.mu.RUnlock()

	s.mu.Lock()
	s.index = fresh
	s.mu.Unlock()

	s.metrics.ObserveIndexRebuild()
	s.log.WithField("items", added).Info("membership index rebuilt")
	return added, nil
}

// Validate runs the chain validator over a snapshot.
func (s *Store) Validate(ctx context.Context) (chain.Report, error) {
	blocks, err := s.Snapshot(ctx)
	if err != nil {
		return chain.Report{}, err
	}
	report := chain.Validate(blocks, s.minDifficulty)
	s.metrics.ObserveValidation(report.Valid)
	if !report.Valid {
		s.log.WithFields(logrus.Fields{
			"failed_index": *report.FailedIndex,
			"check":        report.Check,
		}).Error(report.Reason)
	}
	return report, nil
}

// InclusionProof proves the transaction leaf for hash against the current
// ledger-wide Merkle root.
func (s *Store) InclusionProof(ctx context.Context, hash string) (domain.LedgerProof, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerProof{}, err
	}
	hash, err := crypto.ParseDigest(hash)
	if err != nil {
		return domain.LedgerProof{}, err
	}

	s.mu.RLock()
	loc, ok := s.byHash[hash]
	if !ok {
		s.mu.RUnlock()
		return domain.LedgerProof{}, domain.ErrNotFound
	}
	size := s.leaves.Size()
	leaves := s.leaves.Leaves(size)
	s.mu.RUnlock()

	path, err := merkle.InclusionProof(leaves, int(loc.LeafIndex))
	if err != nil {
		return domain.LedgerProof{}, err
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return domain.LedgerProof{}, err
	}
	encoded := make([]string, 0, len(path))
	for _, p := range path {
		encoded = append(encoded, hex.EncodeToString(p))
	}
	return domain.LedgerProof{
		Hash:       hash,
		LeafHash:   hex.EncodeToString(leaves[loc.LeafIndex]),
		LeafIndex:  loc.LeafIndex,
		TreeSize:   size,
		RootHash:   hex.EncodeToString(root),
		Path:       encoded,
		BlockIndex: loc.BlockIndex,
	}, nil
}

func (s *Store) Difficulty() int {
	return s.difficulty
}
