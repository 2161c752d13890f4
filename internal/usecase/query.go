package usecase

import (
	"fmt"
	"strings"

	"memochain/internal/domain"
	"memochain/internal/infra/crypto"
)

// Query is one of HashQuery, FileQuery, StudentQuery or DocumentClaimQuery.
type Query interface {
	kind() string
}

type HashQuery struct {
	Hash string
}

type FileQuery struct {
	Content []byte
}

// Claim is an asserted identity. StudentID is required; empty Name or
// College are not compared.
type Claim struct {
	StudentID string
	Name      string
	College   string
}

type StudentQuery struct {
	Claim Claim
}

type DocumentClaimQuery struct {
	Document DocumentRef
	Claim    Claim
}

func (HashQuery) kind() string          { return "hash" }
func (FileQuery) kind() string          { return "file" }
func (StudentQuery) kind() string       { return "student" }
func (DocumentClaimQuery) kind() string { return "document_claim" }

// DocumentRef names a document either by its digest or by its bytes.
type DocumentRef interface {
	digest() (string, error)
}

type ByHash struct {
	Hash string
}

type ByFile struct {
	Content []byte
}

func (d ByHash) digest() (string, error) {
	return crypto.ParseDigest(d.Hash)
}

func (d ByFile) digest() (string, error) {
	if len(d.Content) == 0 {
		return "", fmt.Errorf("%w: empty file", domain.ErrValidation)
	}
	return crypto.Digest(d.Content), nil
}

func (c Claim) normalized() (Claim, error) {
	c.StudentID = strings.TrimSpace(c.StudentID)
	c.Name = strings.TrimSpace(c.Name)
	c.College = strings.TrimSpace(c.College)
	if c.StudentID == "" {
		return c, fmt.Errorf("%w: %w: %s", domain.ErrValidation, domain.ErrMissingField, domain.FieldStudentID)
	}
	return c, nil
}

// documentAndClaim splits q into its optional document and optional claim.
func documentAndClaim(q Query) (DocumentRef, *Claim, error) {
	switch v := q.(type) {
	case HashQuery:
		return ByHash(v), nil, nil
	case FileQuery:
		return ByFile(v), nil, nil
	case StudentQuery:
		return nil, &v.Claim, nil
	case DocumentClaimQuery:
		if v.Document == nil {
			return nil, nil, fmt.Errorf("%w: document is required", domain.ErrValidation)
		}
		return v.Document, &v.Claim, nil
	case nil:
		return nil, nil, fmt.Errorf("%w: empty query", domain.ErrValidation)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported query %T", domain.ErrValidation, q)
	}
}
