package policyopa

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"memochain/internal/domain"
)

func baseInput() domain.AdmissionInput {
	return domain.AdmissionInput{
		Transaction: domain.Transaction{
			Hash:        "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			StudentID:   "S1",
			StudentName: "Jane Doe",
			College:     "Engineering",
			MediaType:   "application/pdf",
			SizeBytes:   2048,
		},
		RequiredFields: []string{"student_id", "college"},
		FromContent:    true,
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewDefaultEngine(context.Background())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestDefaultPolicyAllows(t *testing.T) {
	engine := newEngine(t)
	first, err := engine.Evaluate(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := engine.Evaluate(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("evaluate again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected deterministic evaluation")
	}
	if !first.Allow || len(first.Deny) != 0 {
		t.Fatalf("expected allow, got %+v", first)
	}
	if engine.PolicyHash() == "" {
		t.Fatal("expected policy hash")
	}
}

func TestDefaultPolicyDenies(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name   string
		mutate func(input *domain.AdmissionInput)
		want   []string
	}{
		{
			name: "missing student id",
			mutate: func(input *domain.AdmissionInput) {
				input.Transaction.StudentID = ""
			},
			want: []string{"MISSING_FIELD"},
		},
		{
			name: "blank college",
			mutate: func(input *domain.AdmissionInput) {
				input.Transaction.College = "  "
			},
			want: []string{"MISSING_FIELD"},
		},
		{
			name: "media type",
			mutate: func(input *domain.AdmissionInput) {
				input.Transaction.MediaType = "application/zip"
			},
			want: []string{"MEDIA_TYPE_NOT_ALLOWED"},
		},
		{
			name: "empty upload",
			mutate: func(input *domain.AdmissionInput) {
				input.Transaction.SizeBytes = 0
			},
			want: []string{"EMPTY_CONTENT"},
		},
		{
			name: "several",
			mutate: func(input *domain.AdmissionInput) {
				input.Transaction.StudentID = ""
				input.Transaction.MediaType = "text/plain"
			},
			want: []string{"MEDIA_TYPE_NOT_ALLOWED", "MISSING_FIELD"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			input := baseInput()
			tt.mutate(&input)
			out, err := engine.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if out.Allow {
				t.Fatal("expected deny")
			}
			got := make([]string, 0, len(out.Deny))
			for _, d := range out.Deny {
				got = append(got, d.Code)
			}
			if !reflect.DeepEqual(tt.want, got) {
				t.Fatalf("deny codes: want %v got %v", tt.want, got)
			}
		})
	}
}

func TestHashOnlyInputSkipsMediaChecks(t *testing.T) {
	engine := newEngine(t)
	input := baseInput()
	input.FromContent = false
	input.Transaction.MediaType = ""
	input.Transaction.SizeBytes = 0
	out, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Allow {
		t.Fatalf("expected allow, got %+v", out.Deny)
	}
}

func TestEngineFromPath(t *testing.T) {
	dir := t.TempDir()
	policy := `package memochain.admission
result := {"allow": false, "deny": [{"code": "CLOSED", "message": "uploads closed"}]}`
	if err := os.WriteFile(filepath.Join(dir, "closed.rego"), []byte(policy), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	engine, err := NewEngineFromPath(context.Background(), dir)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	out, err := engine.Evaluate(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Allow || len(out.Deny) != 1 || out.Deny[0].Code != "CLOSED" {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestEngineRejectsTimeBuiltin(t *testing.T) {
	rejectBuiltin(t, "time.now_ns()")
}

func TestEngineRejectsHttpSend(t *testing.T) {
	rejectBuiltin(t, "http.send({\"method\": \"get\", \"url\": \"https://example.com\"})")
}

func rejectBuiltin(t *testing.T, expr string) {
	t.Helper()
	dir := t.TempDir()
	content := `package memochain.admission
result := {"allow": true, "deny": []} {
  ` + expr + `
}`
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(content), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	if _, err := NewEngineFromPath(context.Background(), dir); err == nil {
		t.Fatal("expected builtin to be rejected")
	}
}

func TestBundleHashIgnoresNoise(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(`package memochain.admission`), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	before, err := ComputeBundleHashFromPath(dir)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("noise"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden.rego"), []byte("noise"), 0o644); err != nil {
		t.Fatalf("write hidden: %v", err)
	}
	after, err := ComputeBundleHashFromPath(dir)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if before != after {
		t.Fatal("expected hash to ignore non-policy files")
	}

	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(`package memochain.admission2`), 0o644); err != nil {
		t.Fatalf("rewrite rego: %v", err)
	}
	changed, err := ComputeBundleHashFromPath(dir)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if changed == before {
		t.Fatal("expected hash to change with policy")
	}
}
