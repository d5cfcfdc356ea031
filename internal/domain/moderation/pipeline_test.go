package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyProviderRetriesFailedBuild(t *testing.T) {
	f := newFixture(safeResult)
	builds := 0
	closed := 0

	p := NewLazyProvider(func(context.Context) (*Pipeline, func(), error) {
		builds++
		if builds == 1 {
			return nil, nil, errors.New("DATABASE_URL: required")
		}
		return f.pipeline, func() { closed++ }, nil
	})

	_, err := p.Pipeline(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConfigured)

	got, err := p.Pipeline(context.Background())
	require.NoError(t, err)
	assert.Same(t, f.pipeline, got)

	got, err = p.Pipeline(context.Background())
	require.NoError(t, err)
	assert.Same(t, f.pipeline, got)
	assert.Equal(t, 2, builds)

	p.Close()
	assert.Equal(t, 1, closed)
}

func TestStaticProviderWithoutPipeline(t *testing.T) {
	_, err := StaticProvider{}.Pipeline(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOutcomeStatusCode(t *testing.T) {
	assert.Equal(t, 200, Ack(ResolutionApproved).StatusCode())
	assert.Equal(t, 500, Retry(errBoom).StatusCode())
}
