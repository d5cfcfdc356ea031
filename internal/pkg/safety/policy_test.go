package safety

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		unsafe bool
	}{
		{"all clear", Result{Adult: VeryUnlikely, Violence: Unlikely}, false},
		{"adult possible", Result{Adult: Possible}, false},
		{"adult likely", Result{Adult: Likely}, true},
		{"violence very likely", Result{Violence: VeryLikely}, true},
		{"racy only", Result{Racy: VeryLikely, Spoof: VeryLikely, Medical: VeryLikely}, false},
		{"unknown ratings", Result{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unsafe, tt.result.IsUnsafe())
		})
	}
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy("possible", []string{"Adult", " racy "})
	require.NoError(t, err)
	assert.Equal(t, Possible, p.Threshold)
	assert.Equal(t, []Category{CategoryAdult, CategoryRacy}, p.Gated)

	assert.True(t, p.IsUnsafe(Result{Racy: Possible}))
	assert.False(t, p.IsUnsafe(Result{Violence: VeryLikely}))
	assert.Equal(t, []Category{CategoryRacy}, p.Triggered(Result{Racy: Likely}))
}

func TestNewPolicyDefaults(t *testing.T) {
	p, err := NewPolicy("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestNewPolicyRejectsBadInput(t *testing.T) {
	_, err := NewPolicy("SOMETIMES", nil)
	assert.Error(t, err)

	_, err = NewPolicy("UNKNOWN", nil)
	assert.Error(t, err)

	_, err = NewPolicy("LIKELY", []string{"gore"})
	assert.Error(t, err)

	_, err = NewPolicy("LIKELY", []string{" ", ""})
	assert.Error(t, err)
}

func TestLikelihoodJSON(t *testing.T) {
	var r Result
	err := json.Unmarshal([]byte(`{"adult":"VERY_LIKELY","violence":"UNLIKELY","racy":"SOMETHING_NEW"}`), &r)
	require.NoError(t, err)

	assert.Equal(t, VeryLikely, r.Adult)
	assert.Equal(t, Unlikely, r.Violence)
	assert.Equal(t, Unknown, r.Racy)
	assert.Equal(t, Unknown, r.Medical)

	out, err := json.Marshal(Likely)
	require.NoError(t, err)
	assert.JSONEq(t, `"LIKELY"`, string(out))
}

func TestLikelihoodOrdering(t *testing.T) {
	order := []Likelihood{Unknown, VeryUnlikely, Unlikely, Possible, Likely, VeryLikely}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i])
	}
	assert.Equal(t, "UNKNOWN", Likelihood(42).String())
}
