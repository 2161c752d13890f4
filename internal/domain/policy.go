package domain

import "context"

// AdmissionInput is evaluated before a transaction is sealed.
type AdmissionInput struct {
	Transaction    Transaction `json:"transaction"`
	RequiredFields []string    `json:"required_fields,omitempty"`
	FromContent    bool        `json:"from_content"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type AdmissionPolicy interface {
	Evaluate(ctx context.Context, input AdmissionInput) (PolicyResult, error)
}
