package pattern

import (
	"github.com/Veraticus/finrules/internal/model"
)

// DefaultSampleSize is the number of matched transactions returned by Test.
const DefaultSampleSize = 10

// TestResult summarizes how a draft rule would apply to existing transactions.
type TestResult struct {
	Sample  []model.Transaction `json:"sample"`
	Matched int                 `json:"matched"`
	Scanned int                 `json:"scanned"`
}

// Test evaluates a single draft rule against txns, ignoring its enabled flag.
// The draft must already have passed Validate.
func Test(draft model.Rule, txns []model.Transaction, sampleSize int) TestResult {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	draft.Enabled = true
	m := NewMatcher([]model.Rule{draft})

	result := TestResult{Sample: []model.Transaction{}}
	for _, txn := range txns {
		if txn.IsDeleted() {
			continue
		}
		result.Scanned++
		if m.Match(txn) == nil {
			continue
		}
		result.Matched++
		if len(result.Sample) < sampleSize {
			result.Sample = append(result.Sample, txn)
		}
	}

	return result
}
