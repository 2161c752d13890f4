package domain

type RosterEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	College    string `json:"college"`
	NationalID string `json:"national_id,omitempty"`
}
