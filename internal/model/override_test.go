package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverrideCategoryRankOrdering(t *testing.T) {
	assert.Greater(t, CategoryEmergency.Rank(), CategoryMaintenance.Rank())
	assert.Greater(t, CategoryMaintenance.Rank(), CategoryScheduled.Rank())
	assert.Greater(t, CategoryScheduled.Rank(), CategoryManual.Rank())
	assert.Greater(t, CategoryManual.Rank(), CategoryUserIntent.Rank())
}

func TestOverrideIsExpired(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	t.Run("no expiry never expires", func(t *testing.T) {
		ov := Override{}
		assert.False(t, ov.IsExpired(now))
	})

	t.Run("future expiry not expired", func(t *testing.T) {
		future := now.Add(time.Hour)
		ov := Override{ExpiresAt: &future}
		assert.False(t, ov.IsExpired(now))
	})

	t.Run("exact boundary counts as expired", func(t *testing.T) {
		ov := Override{ExpiresAt: &now}
		assert.True(t, ov.IsExpired(now))
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		past := now.Add(-time.Hour)
		ov := Override{ExpiresAt: &past}
		assert.True(t, ov.IsExpired(now))
	})
}
