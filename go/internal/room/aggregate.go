package room

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

// numericPrefix matches the leading decimal number of a card value, so "3" and
// "0.5" count as numeric while "?", "XS" and "coffee" do not.
var numericPrefix = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Summary is the numeric aggregate of a set of revealed votes.
type Summary struct {
	Average      float64 `json:"average"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Range        string  `json:"range"`
	Consensus    bool    `json:"consensus"`
	NumericVotes int     `json:"numericVotes"`
}

// CardValue parses the numeric value of a card.
func CardValue(card string) (float64, bool) {
	m := numericPrefix.FindString(card)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func numericValues(votes map[string]models.Vote) []float64 {
	values := make([]float64, 0, len(votes))
	for _, v := range votes {
		if f, ok := CardValue(v.Card); ok {
			values = append(values, f)
		}
	}
	return values
}

// Aggregate summarizes the numeric subset of votes. It reports false when no
// vote is numeric.
func Aggregate(votes map[string]models.Vote) (Summary, bool) {
	values := numericValues(votes)
	if len(values) == 0 {
		return Summary{}, false
	}

	sum, lo, hi := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	avg := sum / float64(len(values))

	return Summary{
		Average:      math.Round(avg*10) / 10,
		Min:          lo,
		Max:          hi,
		Range:        formatNumber(lo) + "-" + formatNumber(hi),
		Consensus:    lo == hi,
		NumericVotes: len(values),
	}, true
}

// SuggestEstimate computes the estimate a client submits on story completion:
// the rounded mean of numeric votes, or "?" when there are none.
func SuggestEstimate(votes map[string]models.Vote) (string, bool) {
	values := numericValues(votes)
	if len(values) == 0 {
		return "?", false
	}

	sum, lo, hi := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	rounded := math.Floor(sum/float64(len(values)) + 0.5)
	return strconv.FormatFloat(rounded, 'f', -1, 64), lo == hi
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
