package domain

type FieldStatus string

const (
	FieldMatch    FieldStatus = "match"
	FieldMismatch FieldStatus = "mismatch"
	FieldUnknown  FieldStatus = "unknown"
)

const (
	FieldStudentID   = "student_id"
	FieldStudentName = "student_name"
	FieldCollege     = "college"
)

const (
	SourceRoster = "roster"
	SourceLedger = "ledger"
)

// SourceCheck is the comparison of one claimed field against one source.
type SourceCheck struct {
	Source   string      `json:"source"`
	Status   FieldStatus `json:"status"`
	Expected string      `json:"expected,omitempty"`
}

type FieldVerdict struct {
	Status   FieldStatus   `json:"status"`
	Expected string        `json:"expected,omitempty"`
	Provided string        `json:"provided,omitempty"`
	Sources  []SourceCheck `json:"sources,omitempty"`
}

// MatchVerdict is built fresh for every reconciliation call and never persisted.
type MatchVerdict struct {
	Exists      bool                    `json:"exists"`
	Message     string                  `json:"message"`
	Hash        string                  `json:"hash,omitempty"`
	BlockIndex  *int64                  `json:"block_index,omitempty"`
	BlockHash   string                  `json:"block_hash,omitempty"`
	Block       *Block                  `json:"block,omitempty"`
	Transaction *Transaction            `json:"transaction,omitempty"`
	Student     *RosterEntry            `json:"student,omitempty"`
	Match       map[string]FieldVerdict `json:"match,omitempty"`
}

// AllMatch reports whether every compared field matched. Unknown fields do not count.
func (v MatchVerdict) AllMatch() bool {
	compared := false
	for _, f := range v.Match {
		switch f.Status {
		case FieldMismatch:
			return false
		case FieldMatch:
			compared = true
		}
	}
	return compared
}
