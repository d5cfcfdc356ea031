package safety

import (
	"fmt"
	"strings"
)

// Policy decides which ratings make an image unsafe.
type Policy struct {
	Threshold Likelihood
	Gated     []Category
}

// DefaultPolicy rejects adult or violence content rated LIKELY or above.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: Likely,
		Gated:     []Category{CategoryAdult, CategoryViolence},
	}
}

// NewPolicy builds a policy from configuration values.
func NewPolicy(threshold string, gated []string) (Policy, error) {
	p := DefaultPolicy()

	if strings.TrimSpace(threshold) != "" {
		l, err := ParseLikelihood(threshold)
		if err != nil {
			return Policy{}, err
		}
		if l == Unknown {
			return Policy{}, fmt.Errorf("safety: threshold UNKNOWN would reject every image")
		}
		p.Threshold = l
	}

	if len(gated) > 0 {
		p.Gated = p.Gated[:0:0]
		for _, name := range gated {
			c := Category(strings.ToLower(strings.TrimSpace(name)))
			if c == "" {
				continue
			}
			if !knownCategory(c) {
				return Policy{}, fmt.Errorf("safety: unknown category %q", name)
			}
			p.Gated = append(p.Gated, c)
		}
		if len(p.Gated) == 0 {
			return Policy{}, fmt.Errorf("safety: at least one gated category is required")
		}
	}

	return p, nil
}

// IsUnsafe reports whether any gated category meets the threshold.
func (p Policy) IsUnsafe(r Result) bool {
	for _, c := range p.Gated {
		if r.Rating(c) >= p.Threshold {
			return true
		}
	}
	return false
}

// Triggered returns the gated categories that meet the threshold.
func (p Policy) Triggered(r Result) []Category {
	var out []Category
	for _, c := range p.Gated {
		if r.Rating(c) >= p.Threshold {
			out = append(out, c)
		}
	}
	return out
}

func knownCategory(c Category) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}
