// Package ledgerfile persists sealed blocks as JSON lines, one block per line,
// synced to disk after every append.
package ledgerfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"memochain/internal/domain"
)

const maxLineBytes = 16 << 20

// file is the subset of *os.File the log uses.
type file interface {
	io.ReadWriteSeeker
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Close() error
}

type Log struct {
	path string
	mu   sync.Mutex
	f    file
	// failed is set when a torn append could not be rolled back; the file
	// refuses further appends until it is reopened.
	failed error
}

// Open creates or opens the file at path, creating parent directories.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Log{path: path, f: f}, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) LoadBlocks(ctx context.Context) ([]domain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil, os.ErrClosed
	}
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return Decode(l.f)
}

func (l *Log) AppendBlock(ctx context.Context, block domain.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return os.ErrClosed
	}
	if l.failed != nil {
		return l.failed
	}
	info, err := l.f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if _, err := l.f.Write(data); err != nil {
		return l.rollback(size, err)
	}
	if err := l.f.Sync(); err != nil {
		return l.rollback(size, err)
	}
	return nil
}

// rollback truncates a partially written line so the next append starts on a
// clean line boundary.
func (l *Log) rollback(size int64, cause error) error {
	if err := l.f.Truncate(size); err != nil {
		l.failed = fmt.Errorf("ledger file %s left with a partial line: %w", l.path, errors.Join(cause, err))
		return l.failed
	}
	if err := l.f.Sync(); err != nil {
		l.failed = fmt.Errorf("ledger file %s: sync after rollback: %w", l.path, errors.Join(cause, err))
		return l.failed
	}
	return fmt.Errorf("append block: %w", cause)
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ReadFile decodes every block in the file at path without opening it for writing.
func ReadFile(path string) ([]domain.Block, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads JSON-lines blocks from r. Blank lines are skipped; a line that
// does not decode is reported as an integrity failure.
func Decode(r io.Reader) ([]domain.Block, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var blocks []domain.Block
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var b domain.Block
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrIntegrity, line, err)
		}
		blocks = append(blocks, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}
