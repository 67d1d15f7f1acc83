package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierRankOrdersBetterHigher(t *testing.T) {
	assert.Greater(t, TierA.Rank(), TierB.Rank())
	assert.Greater(t, TierB.Rank(), TierC.Rank())
	assert.Greater(t, TierC.Rank(), TierNone.Rank())
	assert.Zero(t, TierNone.Rank())
	assert.Zero(t, Tier("D").Rank())
}
