// Package voc turns SGP40 raw signals into an air quality index and a
// human readable classification.
package voc

// Algorithm maps successive raw signals to a VOC index where 100 is the
// neutral baseline.
type Algorithm interface {
	Process(sraw uint16) int
}

// Classification is the display form of a VOC index.
type Classification struct {
	Label  string `json:"label"`
	Rating string `json:"rating"`
}

// Tier labels, from best to worst.
const (
	Excellent     = "Excellent"
	Good          = "Good"
	Moderate      = "Moderate"
	Unhealthy     = "Unhealthy"
	VeryUnhealthy = "Very Unhealthy"
)

// tiers are ordered by upper bound; the last one is unbounded.
var tiers = []struct {
	below int
	Classification
}{
	{80, Classification{Excellent, "*****"}},
	{120, Classification{Good, "****"}},
	{160, Classification{Moderate, "***"}},
	{220, Classification{Unhealthy, "**"}},
}

var veryUnhealthy = Classification{VeryUnhealthy, "*"}

// Classify returns the tier containing index. Each tier includes its lower
// bound and excludes its upper bound. Negative indices are Excellent.
func Classify(index int) Classification {
	for _, t := range tiers {
		if index < t.below {
			return t.Classification
		}
	}
	return veryUnhealthy
}
