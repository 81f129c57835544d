package models

// MatchStats summarizes a user's receipts by matching status.
type MatchStats struct {
	Total       int64   `json:"total"`
	TotalAmount float64 `json:"total_amount"`

	UploadedCount int64   `json:"uploaded_count"`
	UploadedSum   float64 `json:"uploaded_sum"`

	ProcessedCount int64   `json:"processed_count"`
	ProcessedSum   float64 `json:"processed_sum"`

	MatchedCount int64   `json:"matched_count"`
	MatchedSum   float64 `json:"matched_sum"`
}
