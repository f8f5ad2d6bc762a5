package reputation

import (
	"io"
	"sync"
	"testing"
	"time"

	"inidars/internal/audit"
	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCounts map[string]int

func (s staticCounts) CountBySource() map[string]int { return s }

type recordingMirror struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingMirror) Blocked(entry model.BlockedIP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "block "+entry.IP)
}

func (r *recordingMirror) Unblocked(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "unblock "+ip)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestManager(t *testing.T, counts staticCounts) (*Manager, *audit.Log, *fakeClock) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	met := metrics.NewMetrics(prometheus.NewRegistry())
	log := audit.NewLog(met, logger)
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(counts, log, met, logger)
	m.now = clock.now
	return m, log, clock
}

func TestParseBlockDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"permanent", 0, false},
		{"PERMANENT", 0, false},
		{"90m", 90 * time.Minute, false},
		{"24h", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"0d", 0, true},
		{"-1h", 0, true},
		{"forever", 0, true},
		{"106751d", 106751 * 24 * time.Hour, false},
		{"106752d", 0, true},
		{"200000d", 0, true},
		{"9999999999d", 0, true},
		{"99999999999999999999d", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBlockDuration(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, model.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatBlockDuration(t *testing.T) {
	assert.Equal(t, "permanent", formatBlockDuration(0))
	assert.Equal(t, "2d", formatBlockDuration(48*time.Hour))
	assert.Equal(t, "1h30m0s", formatBlockDuration(90*time.Minute))
}

func TestBlockIsIdempotentUpsert(t *testing.T) {
	m, log, clock := newTestManager(t, staticCounts{"10.0.0.5": 3})

	first, created, err := m.Block("10.0.0.5", "brute force", "1h", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "brute force", first.Reason)
	assert.Equal(t, 3, first.AlertCount)
	require.NotNil(t, first.ExpiresAt)

	clock.t = clock.t.Add(10 * time.Minute)
	second, created, err := m.Block("10.0.0.5", "escalated", "permanent", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.BlockedAt, second.BlockedAt)
	assert.Equal(t, "escalated", second.Reason)
	assert.Nil(t, second.ExpiresAt)

	assert.Len(t, m.List(), 1)
	actions := log.List(audit.Filter{Target: "10.0.0.5", Kind: model.ActionBlock}, 0)
	require.Len(t, actions, 2)
	assert.Equal(t, "false", actions[0].Metadata["created"])
	assert.Equal(t, model.ActorOperator, actions[0].Actor)
}

func TestBlockRejectsInvalidInput(t *testing.T) {
	m, log, _ := newTestManager(t, staticCounts{})

	_, _, err := m.Block("not-an-ip", "x", "", "")
	assert.True(t, model.IsValidation(err))

	_, _, err = m.Block("10.0.0.1", "x", "soon", "")
	assert.True(t, model.IsValidation(err))

	assert.Equal(t, 0, log.Len())
	assert.Equal(t, 0, m.Count())
}

func TestBlockDefaultsReasonAndCanonicalizes(t *testing.T) {
	m, _, _ := newTestManager(t, staticCounts{})

	entry, _, err := m.Block(" ::ffff:192.168.1.9 ", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.9", entry.IP)
	assert.Equal(t, "Manual block", entry.Reason)
	assert.Equal(t, model.PermanentBlock, entry.Duration)
	assert.True(t, m.IsBlocked("192.168.1.9"))
}

func TestUnblock(t *testing.T) {
	m, log, _ := newTestManager(t, staticCounts{})

	err := m.Unblock("10.0.0.9", "")
	assert.ErrorIs(t, err, model.ErrNotBlocked)

	_, _, err = m.Block("10.0.0.9", "scan", "", "")
	require.NoError(t, err)
	require.NoError(t, m.Unblock("10.0.0.9", ""))
	assert.False(t, m.IsBlocked("10.0.0.9"))

	_, err = m.Get("10.0.0.9")
	assert.ErrorIs(t, err, model.ErrNotBlocked)

	actions := log.List(audit.Filter{Target: "10.0.0.9"}, 0)
	require.Len(t, actions, 2)
	assert.Equal(t, model.ActionUnblock, actions[0].Kind)
	assert.Equal(t, model.ActionBlock, actions[1].Kind)
	assert.Equal(t, "scan", actions[0].Metadata["reason"])
}

func TestExpiryIsLazy(t *testing.T) {
	m, log, clock := newTestManager(t, staticCounts{})

	_, _, err := m.Block("10.0.0.7", "temp", "30m", "")
	require.NoError(t, err)
	assert.True(t, m.IsBlocked("10.0.0.7"))

	clock.t = clock.t.Add(29 * time.Minute)
	assert.True(t, m.IsBlocked("10.0.0.7"))

	clock.t = clock.t.Add(time.Minute)
	assert.False(t, m.IsBlocked("10.0.0.7"))
	assert.Empty(t, m.List())
	assert.ErrorIs(t, m.Unblock("10.0.0.7", ""), model.ErrNotBlocked)

	// Expiry is not an operator action.
	assert.Len(t, log.List(audit.Filter{Target: "10.0.0.7"}, 0), 1)

	_, created, err := m.Block("10.0.0.7", "again", "", "")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestListNewestFirstWithAlertCounts(t *testing.T) {
	m, _, clock := newTestManager(t, staticCounts{"10.0.0.2": 4})

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		_, _, err := m.Block(ip, "x", "", "")
		require.NoError(t, err)
		clock.t = clock.t.Add(time.Second)
	}

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, "10.0.0.3", list[0].IP)
	assert.Equal(t, "10.0.0.2", list[1].IP)
	assert.Equal(t, 4, list[1].AlertCount)
	assert.Equal(t, 0, list[2].AlertCount)
	assert.Equal(t, 3, m.Count())
}

func TestMirrorsSeeChangesInOrder(t *testing.T) {
	m, _, _ := newTestManager(t, staticCounts{})
	mirror := &recordingMirror{}
	m.AddMirror(mirror)

	_, _, err := m.Block("10.0.0.1", "x", "", "")
	require.NoError(t, err)
	require.NoError(t, m.Unblock("10.0.0.1", ""))
	assert.Error(t, m.Unblock("10.0.0.1", ""))

	assert.Equal(t, []string{"block 10.0.0.1", "unblock 10.0.0.1"}, mirror.events)
}

func TestConcurrentBlockSameIP(t *testing.T) {
	m, log, _ := newTestManager(t, staticCounts{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := m.Block("10.1.1.1", "race", "", "")
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, 20, log.Len())
}
