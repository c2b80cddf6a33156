package youtube

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBernoulliBounds(t *testing.T) {
	require.False(t, bernoulli(0))
	require.False(t, bernoulli(-5))
	require.True(t, bernoulli(100))
}

func TestBernoulliDistributionRoughlyMatchesProbability(t *testing.T) {
	hits := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		if bernoulli(30) {
			hits++
		}
	}
	ratio := float64(hits) / float64(trials)
	require.InDelta(t, 0.30, ratio, 0.03)
}

func TestAdSkipperStatsStartAtZero(t *testing.T) {
	var a AdSkipper
	require.Equal(t, Stats{AdsDetected: 0, AdsSkipped: 0}, a.Stats())
}

func TestCommentTemplatesNonEmpty(t *testing.T) {
	require.NotEmpty(t, CommentTemplates)
	for _, tmpl := range CommentTemplates {
		require.NotEmpty(t, tmpl)
	}
}
