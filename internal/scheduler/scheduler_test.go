package scheduler

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etl-pipeline-manager/internal/model"
)

// manualClock drives timers deterministically. Advance fires due timers in
// chronological order, outside the clock's own lock so callbacks may re-arm.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

func (c *manualClock) Advance(d time.Duration) {
	target := c.Now().Add(d)
	for {
		c.mu.Lock()
		var due *manualTimer
		for _, t := range c.timers {
			if t.stopped || t.at.After(target) {
				continue
			}
			if due == nil || t.at.Before(due.at) {
				due = t
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.stopped = true
		if due.at.After(c.now) {
			c.now = due.at
		}
		c.mu.Unlock()
		due.f()
	}
}

type fireLog struct {
	mu    sync.Mutex
	fires []time.Time
	fail  error
}

func (l *fireLog) fire(jobID string, firedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	l.fires = append(l.fires, firedAt)
	return nil
}

func (l *fireLog) times() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]time.Time(nil), l.fires...)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

var base = time.Date(2024, 6, 15, 12, 0, 30, 0, time.UTC)

func minutelyJob(id string) *model.Job {
	return &model.Job{
		ID: id, Name: id, Enabled: true,
		Schedule: &model.Schedule{Frequency: model.FrequencyMinutely},
	}
}

func TestRecurringFireAndRearm(t *testing.T) {
	clock := newManualClock(base)
	log := &fireLog{}
	s := New(clock, log.fire, nil)

	next, err := s.Schedule(minutelyJob("j-1"))
	require.NoError(t, err)
	assert.Equal(t, base.Truncate(time.Minute).Add(time.Minute), next)

	clock.Advance(3 * time.Minute)

	fires := log.times()
	require.Len(t, fires, 3)
	for i := 1; i < len(fires); i++ {
		assert.Equal(t, time.Minute, fires[i].Sub(fires[i-1]))
	}

	// still armed for the following minute
	armed, ok := s.NextFire("j-1")
	require.True(t, ok)
	assert.Equal(t, fires[2].Add(time.Minute), armed)
}

func TestOnceFiresAndDisarms(t *testing.T) {
	clock := newManualClock(base)
	log := &fireLog{}
	s := New(clock, log.fire, nil)

	at := base.Add(10 * time.Minute)
	job := &model.Job{
		ID: "j-1", Name: "one-shot", Enabled: true,
		Schedule: &model.Schedule{Frequency: model.FrequencyOnce, StartTime: &at},
	}

	next, err := s.Schedule(job)
	require.NoError(t, err)
	assert.Equal(t, at, next)

	clock.Advance(time.Hour)

	assert.Len(t, log.times(), 1)
	_, ok := s.NextFire("j-1")
	assert.False(t, ok, "one-shot schedule disarms after firing")
}

func TestUnschedule(t *testing.T) {
	clock := newManualClock(base)
	log := &fireLog{}
	s := New(clock, log.fire, nil)

	_, err := s.Schedule(minutelyJob("j-1"))
	require.NoError(t, err)

	assert.True(t, s.Unschedule("j-1"))
	assert.False(t, s.Unschedule("j-1"), "second unschedule is a no-op")

	clock.Advance(5 * time.Minute)
	assert.Empty(t, log.times())
}

func TestRescheduleReplacesTimer(t *testing.T) {
	clock := newManualClock(base)
	log := &fireLog{}
	s := New(clock, log.fire, nil)

	job := minutelyJob("j-1")
	_, err := s.Schedule(job)
	require.NoError(t, err)
	_, err = s.Schedule(job)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.Len(t, log.times(), 1, "one timer per job, not one per Schedule call")
	assert.Equal(t, []string{"j-1"}, s.Scheduled())
}

func TestMissedHandOff(t *testing.T) {
	clock := newManualClock(base)
	log := &fireLog{fail: errors.New("job already running")}

	type miss struct {
		jobID    string
		expected time.Time
		reason   string
	}
	var mu sync.Mutex
	var misses []miss
	s := New(clock, log.fire, func(jobID string, expected time.Time, reason string) {
		mu.Lock()
		defer mu.Unlock()
		misses = append(misses, miss{jobID, expected, reason})
	})

	_, err := s.Schedule(minutelyJob("j-1"))
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, misses, 1, "unscheduled after the first refused hand-off")
	assert.Equal(t, "j-1", misses[0].jobID)
	assert.Contains(t, misses[0].reason, "already running")

	_, ok := s.NextFire("j-1")
	assert.False(t, ok)
}

func TestScheduleErrors(t *testing.T) {
	s := New(newManualClock(base), func(string, time.Time) error { return nil }, nil)

	_, err := s.Schedule(&model.Job{ID: "j-1", Name: "manual-only"})
	assert.ErrorIs(t, err, ErrNoSchedule)

	past := base.Add(-time.Hour)
	_, err = s.Schedule(&model.Job{
		ID: "j-2", Name: "elapsed",
		Schedule: &model.Schedule{Frequency: model.FrequencyOnce, StartTime: &past},
	})
	assert.ErrorIs(t, err, ErrScheduleExhausted)

	_, err = s.Schedule(&model.Job{
		ID: "j-3", Name: "bad-cron",
		Schedule: &model.Schedule{Frequency: model.FrequencyCustom, Expression: "not a cron"},
	})
	assert.Error(t, err)
}

func TestStopCancelsAll(t *testing.T) {
	clock := newManualClock(base)
	log := &fireLog{}
	s := New(clock, log.fire, nil)

	_, err := s.Schedule(minutelyJob("j-1"))
	require.NoError(t, err)
	_, err = s.Schedule(minutelyJob("j-2"))
	require.NoError(t, err)

	s.Stop()
	clock.Advance(5 * time.Minute)
	assert.Empty(t, log.times())
	assert.Empty(t, s.Scheduled())
}
