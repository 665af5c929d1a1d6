package timeseries

import (
	"sync"
	"testing"
	"time"
)

// mockClock provides deterministic time for testing.
type mockClock struct {
	mu   sync.Mutex
	time time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{time: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

var baseTime = time.Date(2019, 7, 1, 11, 0, 0, 0, time.UTC)

// TestRateTracker_Add tests basic accumulation using table-driven tests.
func TestRateTracker_Add(t *testing.T) {
	tests := []struct {
		name      string
		adds      [][2]int64
		wantLines int64
		wantBytes int64
	}{
		{"single add", [][2]int64{{10, 1024}}, 10, 1024},
		{"multiple adds", [][2]int64{{1, 100}, {2, 200}, {3, 300}}, 6, 600},
		{"negative ignored", [][2]int64{{5, 100}, {-5, -50}}, 5, 100},
		{"empty", nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewRateTrackerWithClock(newMockClock(baseTime))
			for _, a := range tt.adds {
				tracker.Add(a[0], a[1])
			}
			r := tracker.Snapshot()
			if r.Lines != tt.wantLines || r.Bytes != tt.wantBytes {
				t.Errorf("got %d lines %d bytes, want %d, %d", r.Lines, r.Bytes, tt.wantLines, tt.wantBytes)
			}
		})
	}
}

func TestRateTracker_SetAcrossInputs(t *testing.T) {
	tracker := NewRateTrackerWithClock(newMockClock(baseTime))

	tracker.Set(100, 1000)
	tracker.Set(200, 2000)
	tracker.NextInput()
	tracker.Set(50, 500)

	r := tracker.Snapshot()
	if r.Lines != 250 {
		t.Errorf("Lines = %d, want 250", r.Lines)
	}
	if r.Bytes != 2500 {
		t.Errorf("Bytes = %d, want 2500", r.Bytes)
	}
}

// TestRateTracker_RollingRates tests rate calculation for various patterns.
func TestRateTracker_RollingRates(t *testing.T) {
	t.Run("constant rate", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewRateTrackerWithClock(clock)

		for i := 0; i < 10; i++ {
			tracker.Add(100, 1000)
			clock.Advance(time.Second)
			tracker.RecordSample()
		}

		r := tracker.Snapshot()
		checks := []struct {
			name string
			got  float64
			want float64
		}{
			{"Lines1s", r.Lines1s, 100},
			{"Lines10s", r.Lines10s, 100},
			{"Lines60s", r.Lines60s, 100},
			{"LinesOverall", r.LinesOverall, 100},
			{"Bytes10s", r.Bytes10s, 1000},
			{"BytesOverall", r.BytesOverall, 1000},
		}
		for _, c := range checks {
			if c.got != c.want {
				t.Errorf("%s = %f, want %f", c.name, c.got, c.want)
			}
		}
		if r.Elapsed != 10*time.Second {
			t.Errorf("Elapsed = %v", r.Elapsed)
		}
	})

	t.Run("rate increase", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewRateTrackerWithClock(clock)

		for i := 0; i < 10; i++ {
			tracker.Add(100, 0)
			clock.Advance(time.Second)
			tracker.RecordSample()
		}
		for i := 0; i < 10; i++ {
			tracker.Add(1000, 0)
			clock.Advance(time.Second)
			tracker.RecordSample()
		}

		r := tracker.Snapshot()
		if r.Lines1s != 1000 {
			t.Errorf("Lines1s = %f, want 1000", r.Lines1s)
		}
		if r.Lines10s != 1000 {
			t.Errorf("Lines10s = %f, want 1000", r.Lines10s)
		}
		if r.Lines60s != 550 {
			t.Errorf("Lines60s = %f, want 550 (falls back to oldest sample)", r.Lines60s)
		}
	})

	t.Run("no samples recorded", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewRateTrackerWithClock(clock)

		clock.Advance(5 * time.Second)
		tracker.Add(500, 0)

		r := tracker.Snapshot()
		if r.Lines10s != 100 {
			t.Errorf("Lines10s = %f, want 100", r.Lines10s)
		}
	})

	t.Run("zero elapsed", func(t *testing.T) {
		tracker := NewRateTrackerWithClock(newMockClock(baseTime))
		tracker.Add(500, 500)

		r := tracker.Snapshot()
		if r.Lines1s != 0 || r.LinesOverall != 0 {
			t.Errorf("rates = %f/%f, want 0 with no elapsed time", r.Lines1s, r.LinesOverall)
		}
	})
}

func TestRateTracker_RingBufferOverflow(t *testing.T) {
	clock := newMockClock(baseTime)
	tracker := NewRateTrackerWithClock(clock)

	for i := 0; i < ringBufferSize+100; i++ {
		tracker.Add(10, 0)
		clock.Advance(time.Second)
		tracker.RecordSample()
	}

	if got := tracker.SampleCount(); got != ringBufferSize {
		t.Errorf("SampleCount() = %d, want %d", got, ringBufferSize)
	}
	r := tracker.Snapshot()
	if r.Lines60s != 10 {
		t.Errorf("Lines60s = %f, want 10", r.Lines60s)
	}
}

func TestRateTracker_ConcurrentAccess(t *testing.T) {
	clock := newMockClock(baseTime)
	tracker := NewRateTrackerWithClock(clock)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				tracker.Add(1, 10)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			clock.Advance(10 * time.Millisecond)
			tracker.RecordSample()
			_ = tracker.Snapshot()
		}
	}()
	wg.Wait()

	r := tracker.Snapshot()
	if r.Lines != 4000 || r.Bytes != 40000 {
		t.Errorf("totals = %d/%d, want 4000/40000", r.Lines, r.Bytes)
	}
}

func BenchmarkRateTracker_Snapshot(b *testing.B) {
	clock := newMockClock(baseTime)
	tracker := NewRateTrackerWithClock(clock)
	for i := 0; i < ringBufferSize; i++ {
		tracker.Add(100, 1000)
		clock.Advance(time.Second)
		tracker.RecordSample()
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tracker.Snapshot()
	}
}
