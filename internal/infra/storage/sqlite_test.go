package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal", "trader.db"))
	require.NoError(t, err, "nested directories are created on demand")
	return j
}

func TestJournal_SaveOrder(t *testing.T) {
	j := newTestJournal(t)

	rec := &OrderRecord{
		UUID:        "u-1",
		Market:      "KRW-BTC",
		Side:        "BUY",
		OrdType:     "limit",
		Price:       50_000_000,
		Volume:      0.001,
		SubmittedAt: time.Now(),
	}
	require.NoError(t, j.SaveOrder(rec))
	assert.NotZero(t, rec.ID)

	// uuid is unique
	dup := &OrderRecord{UUID: "u-1", Market: "KRW-BTC"}
	assert.Error(t, j.SaveOrder(dup))
}

func TestJournal_RecentExecutions(t *testing.T) {
	j := newTestJournal(t)

	base := time.Now().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.SaveExecution(&ExecutionRecord{
			UUID:           "u-" + string(rune('a'+i)),
			Market:         "KRW-BTC",
			IsBuy:          i%2 == 0,
			AvgFillPrice:   50_000_000,
			FilledVolume:   1,
			FillRate:       1,
			AvgSlippageBps: float64(i),
			CompletedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	out, err := j.RecentExecutions(3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "u-e", out[0].UUID, "newest first")
	assert.Equal(t, "u-c", out[2].UUID)
}
