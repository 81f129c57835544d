package matching

import (
	"math"
	"regexp"
	"strings"
	"time"

	"tax-receipt-backend/internal/models"

	"github.com/google/uuid"
)

// Field weights. They sum to 1.0 when amount, date and a structured
// merchant name are all present; otherwise the confidence is renormalized
// over whichever weights were actually applied.
const (
	amountWeight      = 0.4
	dateWeight        = 0.3
	merchantWeight    = 0.3
	descriptionWeight = 0.2 // free-text descriptions carry less signal
)

// Per-field thresholds deciding whether a field counts as "matched".
const (
	amountMatchedMin   = 0.99
	dateMatchedMin     = 0.9
	merchantMatchedMin = 0.8
)

// Decision thresholds.
const (
	// ExactConfidenceMin is the floor above which a match may be
	// classified EXACT, provided amount and date both matched.
	ExactConfidenceMin = 0.95

	// MatchThreshold is the minimum confidence for a single lookup to
	// report a match at all (inclusive).
	MatchThreshold = 0.7

	// AutoMatchThreshold is the stricter bar applied by the bulk sweep
	// before persisting a match without human review.
	AutoMatchThreshold = 0.8

	// DefaultDateRangeDays bounds candidate retrieval around the
	// receipt date.
	DefaultDateRangeDays = 7
)

const (
	amountTolerance = 0.01
	dateDecayDays   = 7.0
)

type MatchType string

const (
	MatchTypeExact  MatchType = "EXACT"
	MatchTypeFuzzy  MatchType = "FUZZY"
	MatchTypeManual MatchType = "MANUAL"
)

type MatchResult struct {
	TransactionID uuid.UUID          `json:"transaction_id"`
	Confidence    float64            `json:"confidence"`
	MatchType     MatchType          `json:"match_type"`
	MatchedFields []string           `json:"matched_fields"`
	FieldScores   map[string]float64 `json:"field_scores"`
}

// ScorePair compares one receipt against one candidate transaction and
// returns the weighted confidence with its classification.
func ScorePair(receipt *models.Receipt, tx *models.BankTransaction) *MatchResult {
	result := &MatchResult{
		TransactionID: tx.ID,
		FieldScores:   map[string]float64{},
	}

	totalScore := 0.0
	totalWeight := 0.0

	// Amount
	amountScore := scoreAmount(receipt.TotalAmount, tx.Amount)
	totalScore += amountScore * amountWeight
	totalWeight += amountWeight
	result.FieldScores["amount"] = amountScore
	if amountScore > amountMatchedMin {
		result.MatchedFields = append(result.MatchedFields, "amount")
	}

	// Date
	dateScore := scoreDate(receipt.ReceiptDate, tx.TransactionDate)
	totalScore += dateScore * dateWeight
	totalWeight += dateWeight
	result.FieldScores["date"] = dateScore
	if dateScore > dateMatchedMin {
		result.MatchedFields = append(result.MatchedFields, "date")
	}

	// Merchant: prefer the structured merchant name, fall back to the
	// statement description, omit the term entirely when neither exists.
	if receipt.Merchant != "" {
		switch {
		case tx.MerchantName != "":
			sim := MerchantSimilarity(receipt.Merchant, tx.MerchantName)
			totalScore += sim * merchantWeight
			totalWeight += merchantWeight
			result.FieldScores["merchant"] = sim
			if sim > merchantMatchedMin {
				result.MatchedFields = append(result.MatchedFields, "merchant")
			}
		case tx.Description != "":
			sim := MerchantSimilarity(receipt.Merchant, tx.Description)
			totalScore += sim * descriptionWeight
			totalWeight += descriptionWeight
			result.FieldScores["description"] = sim
			if sim > merchantMatchedMin {
				result.MatchedFields = append(result.MatchedFields, "description")
			}
		}
	}

	if totalWeight > 0 {
		result.Confidence = totalScore / totalWeight
	}
	result.MatchType = classify(result.Confidence, result.MatchedFields)

	return result
}

// BestMatch scores every candidate in retrieval order and keeps the
// highest confidence, stopping early on the first EXACT match. Returns
// nil when nothing reaches MatchThreshold.
func BestMatch(receipt *models.Receipt, candidates []models.BankTransaction) *MatchResult {
	var best *MatchResult

	for i := range candidates {
		result := ScorePair(receipt, &candidates[i])
		if best == nil || result.Confidence > best.Confidence {
			best = result
		}
		if result.MatchType == MatchTypeExact {
			best = result
			break
		}
	}

	if best == nil || best.Confidence < MatchThreshold {
		return nil
	}
	return best
}

func classify(confidence float64, matchedFields []string) MatchType {
	switch {
	case confidence > ExactConfidenceMin && contains(matchedFields, "amount") && contains(matchedFields, "date"):
		return MatchTypeExact
	case confidence > MatchThreshold:
		return MatchTypeFuzzy
	default:
		return MatchTypeManual
	}
}

func scoreAmount(receiptAmount, txAmount float64) float64 {
	diff := math.Abs(receiptAmount - math.Abs(txAmount))
	if diff < amountTolerance {
		return 1.0
	}
	// Non-positive totals make the relative difference meaningless
	// (and a negative divisor would push the score past 1).
	if receiptAmount <= 0 {
		return 0
	}
	return math.Max(0, 1-diff/receiptAmount)
}

func scoreDate(receiptDate, txDate time.Time) float64 {
	r := truncateToDay(receiptDate)
	t := truncateToDay(txDate)
	if r.Equal(t) {
		return 1.0
	}
	daysApart := math.Abs(r.Sub(t).Hours() / 24)
	return math.Max(0, 1-daysApart/dateDecayDays)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// MerchantSimilarity scores two merchant strings in [0,1]. Exact
// normalized equality wins outright and containment beats the generic
// edit-distance measure, which would otherwise penalize the length
// difference of statement suffixes like store numbers.
func MerchantSimilarity(a, b string) float64 {
	na := NormalizeMerchant(a)
	nb := NormalizeMerchant(b)

	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.9
	}

	dist := levenshtein(na, nb)
	maxLen := math.Max(float64(len(na)), float64(len(nb)))
	return math.Max(0, 1-float64(dist)/maxLen)
}

var (
	nonAlphanumRe = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)

	companySuffixes = map[string]bool{
		"pty":     true,
		"ltd":     true,
		"limited": true,
		"inc":     true,
		"corp":    true,
		"co":      true,
		"company": true,
	}
)

// NormalizeMerchant strips the formatting noise bank statements add to
// merchant names. Idempotent.
func NormalizeMerchant(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if !companySuffixes[w] {
			kept = append(kept, w)
		}
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}

	for i := 0; i <= len(a); i++ {
		dp[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		dp[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			dp[i][j] = min(
				dp[i-1][j]+1,
				dp[i][j-1]+1,
				dp[i-1][j-1]+cost,
			)
		}
	}
	return dp[len(a)][len(b)]
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
