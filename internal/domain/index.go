package domain

// IndexStats describes the membership index geometry and fill.
type IndexStats struct {
	Bits            uint64  `json:"size"`
	HashCount       uint64  `json:"hash_count"`
	SetBits         uint64  `json:"set_bits"`
	LoadFactor      float64 `json:"load_factor"`
	ItemsAdded      uint64  `json:"items_added"`
	ExpectedItems   uint64  `json:"expected_items"`
	TargetFPRate    float64 `json:"target_false_positive_rate"`
	EstimatedFPRate float64 `json:"estimated_false_positive_rate"`
}
