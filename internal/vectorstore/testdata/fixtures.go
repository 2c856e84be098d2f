// Package testdata provides retrieval fixtures shared by the vector store
// tests.
//
// Each case stores a small set of chunk vectors with their text, a query
// vector, and the expected ranking by cosine similarity. All vectors are
// unit length, so similarity scores reduce to plain dot products and every
// expectation can be checked by hand.
package testdata

import "fmt"

// RetrievalCase is one stored corpus plus a query with known ranking.
type RetrievalCase struct {
	// Name is a descriptive identifier for the case.
	Name string

	// Query is the unit-length query vector.
	Query []float32

	// Chunks are the stored records the query runs against.
	Chunks []Chunk

	// ExpectedRanking lists chunk IDs by descending similarity to Query.
	ExpectedRanking []string

	// ExpectedScores bounds the similarity score per chunk ID.
	ExpectedScores map[string]ScoreRange

	// Description says what the case exercises.
	Description string
}

// Chunk is one stored record: an ID, its unit-length vector, and the chunk
// text carried in metadata.
type Chunk struct {
	ID     string
	Vector []float32
	Text   string
}

// ScoreRange bounds an expected similarity score, inclusive on both ends.
type ScoreRange struct {
	Min float32
	Max float32
}

// RetrievalCases returns all retrieval fixtures.
func RetrievalCases() []RetrievalCase {
	return []RetrievalCase{
		ExactChunkMatch(),
		RelevanceDecay(),
		OffTopicCorpus(),
	}
}

// ExactChunkMatch checks that a query identical to a stored vector ranks
// that chunk first with a score of ~1.
func ExactChunkMatch() RetrievalCase {
	return RetrievalCase{
		Name:  "exact_chunk_match",
		Query: []float32{1, 0, 0, 0},
		Chunks: []Chunk{
			{
				ID:     "refund_policy",
				Vector: []float32{1, 0, 0, 0},
				Text:   "Refunds are issued within 14 days of a returned purchase.",
			},
			{
				ID:     "return_receipt",
				Vector: []float32{0.70710677, 0.70710677, 0, 0},
				Text:   "Returned items must include the original receipt to qualify.",
			},
			{
				ID:     "shipping_times",
				Vector: []float32{0.33333334, 0.6666667, 0.6666667, 0},
				Text:   "Shipping times vary between three and ten business days.",
			},
		},
		ExpectedRanking: []string{"refund_policy", "return_receipt", "shipping_times"},
		ExpectedScores: map[string]ScoreRange{
			"refund_policy":  {Min: 0.99, Max: 1.0},
			"return_receipt": {Min: 0.6, Max: 0.8},
			"shipping_times": {Min: 0.2, Max: 0.45},
		},
		Description: "identical vector wins, partial overlaps follow in order",
	}
}

// RelevanceDecay checks a strictly decreasing score sequence across four
// chunks, down to an orthogonal one at zero.
func RelevanceDecay() RetrievalCase {
	return RetrievalCase{
		Name:  "relevance_decay",
		Query: []float32{0.70710677, 0.70710677, 0, 0},
		Chunks: []Chunk{
			{
				ID:     "vacation_request",
				Vector: []float32{0.70710677, 0.70710677, 0, 0},
				Text:   "Vacation requests need manager approval two weeks ahead.",
			},
			{
				ID:     "vacation_carryover",
				Vector: []float32{1, 0, 0, 0},
				Text:   "Unused vacation days carry over until the end of March.",
			},
			{
				ID:     "sick_leave",
				Vector: []float32{0, 0.70710677, 0, 0.70710677},
				Text:   "Sick leave does not require advance notice.",
			},
			{
				ID:     "parking_rules",
				Vector: []float32{0, 0, 1, 0},
				Text:   "Visitor parking is limited to the north lot.",
			},
		},
		ExpectedRanking: []string{"vacation_request", "vacation_carryover", "sick_leave", "parking_rules"},
		ExpectedScores: map[string]ScoreRange{
			"vacation_request":   {Min: 0.99, Max: 1.0},
			"vacation_carryover": {Min: 0.6, Max: 0.8},
			"sick_leave":         {Min: 0.4, Max: 0.6},
			"parking_rules":      {Min: 0, Max: 0.05},
		},
		Description: "scores decay with topical distance, orthogonal chunk scores zero",
	}
}

// OffTopicCorpus checks ranking when no stored chunk is a strong match:
// retrieval still orders by similarity rather than failing.
func OffTopicCorpus() RetrievalCase {
	return RetrievalCase{
		Name:  "off_topic_corpus",
		Query: []float32{0, 0, 0, 1},
		Chunks: []Chunk{
			{
				ID:     "expense_deadline",
				Vector: []float32{0, 0, 0.6, 0.8},
				Text:   "Expense reports are due by the fifth business day.",
			},
			{
				ID:     "expense_receipts",
				Vector: []float32{0, 0.8, 0, 0.6},
				Text:   "Receipts above 25 euros must be attached as PDFs.",
			},
			{
				ID:     "office_hours",
				Vector: []float32{1, 0, 0, 0},
				Text:   "The office is staffed between eight and six on weekdays.",
			},
		},
		ExpectedRanking: []string{"expense_deadline", "expense_receipts", "office_hours"},
		ExpectedScores: map[string]ScoreRange{
			"expense_deadline": {Min: 0.7, Max: 0.9},
			"expense_receipts": {Min: 0.5, Max: 0.7},
			"office_hours":     {Min: 0, Max: 0.05},
		},
		Description: "weak matches keep their relative order",
	}
}

// ValidateCase checks a case's internal consistency: unit vectors, unique
// IDs, a ranking that covers every chunk, and expected score ranges that
// agree with the actual dot products in strictly decreasing order.
func ValidateCase(c RetrievalCase) error {
	if c.Name == "" {
		return fmt.Errorf("case has no name")
	}
	if len(c.Chunks) < 2 {
		return fmt.Errorf("%s: need at least 2 chunks, got %d", c.Name, len(c.Chunks))
	}
	if err := checkUnit(c.Query); err != nil {
		return fmt.Errorf("%s: query: %w", c.Name, err)
	}

	byID := make(map[string][]float32, len(c.Chunks))
	for _, ch := range c.Chunks {
		if ch.ID == "" {
			return fmt.Errorf("%s: chunk has no ID", c.Name)
		}
		if ch.Text == "" {
			return fmt.Errorf("%s: chunk %s has no text", c.Name, ch.ID)
		}
		if _, dup := byID[ch.ID]; dup {
			return fmt.Errorf("%s: duplicate chunk ID %s", c.Name, ch.ID)
		}
		if len(ch.Vector) != len(c.Query) {
			return fmt.Errorf("%s: chunk %s has %d values, query has %d", c.Name, ch.ID, len(ch.Vector), len(c.Query))
		}
		if err := checkUnit(ch.Vector); err != nil {
			return fmt.Errorf("%s: chunk %s: %w", c.Name, ch.ID, err)
		}
		byID[ch.ID] = ch.Vector
	}

	if len(c.ExpectedRanking) != len(c.Chunks) {
		return fmt.Errorf("%s: ranking covers %d of %d chunks", c.Name, len(c.ExpectedRanking), len(c.Chunks))
	}
	prev := float32(2)
	for _, id := range c.ExpectedRanking {
		vec, ok := byID[id]
		if !ok {
			return fmt.Errorf("%s: ranking references unknown chunk %s", c.Name, id)
		}
		score := Dot(c.Query, vec)
		if score >= prev {
			return fmt.Errorf("%s: ranking not strictly decreasing at %s (%.4f >= %.4f)", c.Name, id, score, prev)
		}
		prev = score
		if r, ok := c.ExpectedScores[id]; ok {
			if r.Min > r.Max {
				return fmt.Errorf("%s: chunk %s has inverted score range", c.Name, id)
			}
			if score < r.Min || score > r.Max {
				return fmt.Errorf("%s: chunk %s scores %.4f outside [%.2f, %.2f]", c.Name, id, score, r.Min, r.Max)
			}
		}
	}
	for id := range c.ExpectedScores {
		if _, ok := byID[id]; !ok {
			return fmt.Errorf("%s: score range references unknown chunk %s", c.Name, id)
		}
	}
	return nil
}

// Dot returns the dot product of two equal-length vectors. For unit vectors
// this is the cosine similarity.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func checkUnit(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector")
	}
	norm := Dot(v, v)
	if norm < 0.999 || norm > 1.001 {
		return fmt.Errorf("vector is not unit length (norm² = %.4f)", norm)
	}
	return nil
}
