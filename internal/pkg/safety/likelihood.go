// Package safety classifies uploaded images for unsafe content and applies
// the moderation policy to the result.
package safety

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Likelihood is an ordinal rating: Unknown < VeryUnlikely < ... < VeryLikely.
type Likelihood int

const (
	Unknown Likelihood = iota
	VeryUnlikely
	Unlikely
	Possible
	Likely
	VeryLikely
)

var likelihoodNames = [...]string{
	Unknown:      "UNKNOWN",
	VeryUnlikely: "VERY_UNLIKELY",
	Unlikely:     "UNLIKELY",
	Possible:     "POSSIBLE",
	Likely:       "LIKELY",
	VeryLikely:   "VERY_LIKELY",
}

func (l Likelihood) String() string {
	if l < Unknown || l > VeryLikely {
		return likelihoodNames[Unknown]
	}
	return likelihoodNames[l]
}

// ParseLikelihood maps a rating name to its Likelihood. Unrecognized names
// are reported as an error and map to Unknown.
func ParseLikelihood(s string) (Likelihood, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range likelihoodNames {
		if n == name {
			return Likelihood(i), nil
		}
	}
	return Unknown, fmt.Errorf("safety: unknown likelihood %q", s)
}

func (l Likelihood) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Likelihood) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	// Unknown names degrade to Unknown rather than failing the whole response
	*l, _ = ParseLikelihood(s)
	return nil
}

// Category is a rated content category.
type Category string

const (
	CategoryAdult    Category = "adult"
	CategoryViolence Category = "violence"
	CategoryRacy     Category = "racy"
	CategorySpoof    Category = "spoof"
	CategoryMedical  Category = "medical"
)

// Categories lists every rated category.
var Categories = []Category{CategoryAdult, CategoryViolence, CategoryRacy, CategorySpoof, CategoryMedical}

// Result holds per-category ratings for one image.
type Result struct {
	Adult    Likelihood `json:"adult"`
	Violence Likelihood `json:"violence"`
	Racy     Likelihood `json:"racy"`
	Spoof    Likelihood `json:"spoof"`
	Medical  Likelihood `json:"medical"`
}

// Rating returns the rating for a category.
func (r Result) Rating(c Category) Likelihood {
	switch c {
	case CategoryAdult:
		return r.Adult
	case CategoryViolence:
		return r.Violence
	case CategoryRacy:
		return r.Racy
	case CategorySpoof:
		return r.Spoof
	case CategoryMedical:
		return r.Medical
	default:
		return Unknown
	}
}

// IsUnsafe applies the default policy: adult or violence at LIKELY or above.
func (r Result) IsUnsafe() bool {
	return DefaultPolicy().IsUnsafe(r)
}
