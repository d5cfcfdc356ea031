package safety

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks any failure to obtain a classification. It is always
// retriable: an unclassified image is neither approved nor rejected.
var ErrUnavailable = errors.New("safety: classification unavailable")

// Locator addresses the image to classify.
type Locator struct {
	Bucket string
	Key    string
}

func (l Locator) String() string {
	return l.Bucket + "/" + l.Key
}

// Classifier rates an image.
type Classifier interface {
	Classify(ctx context.Context, loc Locator) (Result, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, loc Locator) (Result, error)

func (f ClassifierFunc) Classify(ctx context.Context, loc Locator) (Result, error) {
	return f(ctx, loc)
}

// Verdict is a classification with the policy applied.
type Verdict struct {
	Result    Result
	Unsafe    bool
	Triggered []Category
}

// Checker combines a classifier with a policy.
type Checker struct {
	classifier Classifier
	policy     Policy
}

// NewChecker creates a Checker
func NewChecker(classifier Classifier, policy Policy) *Checker {
	return &Checker{classifier: classifier, policy: policy}
}

// Assess classifies an image and applies the policy. Every classifier error
// is returned wrapped in ErrUnavailable.
func (c *Checker) Assess(ctx context.Context, loc Locator) (Verdict, error) {
	result, err := c.classifier.Classify(ctx, loc)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return Verdict{}, err
		}
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Verdict{
		Result:    result,
		Unsafe:    c.policy.IsUnsafe(result),
		Triggered: c.policy.Triggered(result),
	}, nil
}

// Static always returns the same result. Useful for local development.
type Static struct {
	Result Result
}

func (s Static) Classify(_ context.Context, _ Locator) (Result, error) {
	return s.Result, nil
}
