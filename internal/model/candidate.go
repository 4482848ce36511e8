package model

import (
	"fmt"
	"sort"
)

// Candidate is a ranked category suggestion for a single transaction.
// Candidates are computed per request and never persisted.
type Candidate struct {
	Category    string   `json:"category"`
	Reasons     []string `json:"reasons"`
	Confidence  float64  `json:"confidence"`
	AcceptCount int      `json:"accept_count"`
	RejectCount int      `json:"reject_count"`
	FromRule    bool     `json:"from_rule"`
}

// Validate ensures the Candidate has valid data.
func (c *Candidate) Validate() error {
	if !IsLabel(c.Category) {
		return fmt.Errorf("candidate category %q is not a label", c.Category)
	}
	if c.Confidence < 0.0 || c.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %.2f", c.Confidence)
	}
	if c.AcceptCount < 0 || c.RejectCount < 0 {
		return fmt.Errorf("feedback counts must be non-negative")
	}
	return nil
}

// Candidates is a slice of Candidate that supports sorting and utility methods.
type Candidates []Candidate

// Len implements sort.Interface.
func (c Candidates) Len() int {
	return len(c)
}

// Less implements sort.Interface - higher confidence first, then label order.
func (c Candidates) Less(i, j int) bool {
	if c[i].Confidence != c[j].Confidence {
		return c[i].Confidence > c[j].Confidence
	}
	return c[i].Category < c[j].Category
}

// Swap implements sort.Interface.
func (c Candidates) Swap(i, j int) {
	c[i], c[j] = c[j], c[i]
}

// Sort sorts the candidates by confidence in descending order.
func (c Candidates) Sort() {
	sort.Sort(c)
}

// Top returns the highest-confidence candidate, or nil if empty.
func (c Candidates) Top() *Candidate {
	if len(c) == 0 {
		return nil
	}
	c.Sort()
	return &c[0]
}

// TopN returns the N highest-confidence candidates.
func (c Candidates) TopN(n int) Candidates {
	if n <= 0 {
		return Candidates{}
	}

	c.Sort()

	if n > len(c) {
		n = len(c)
	}

	result := make(Candidates, n)
	copy(result, c[:n])
	return result
}

// Validate ensures all candidates are valid and unique by category.
func (c Candidates) Validate() error {
	seen := make(map[string]bool)

	for i, candidate := range c {
		if err := candidate.Validate(); err != nil {
			return fmt.Errorf("invalid candidate at index %d: %w", i, err)
		}
		if seen[candidate.Category] {
			return fmt.Errorf("duplicate category %q in candidates", candidate.Category)
		}
		seen[candidate.Category] = true
	}

	return nil
}
