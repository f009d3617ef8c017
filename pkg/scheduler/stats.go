package scheduler

import (
	"time"

	"github.com/dpetranov/coopsched/pkg/models"
)

// tickWindow is the number of tick arrivals the throughput estimate spans.
const tickWindow = 64

// statsTracker maintains the incremental statistics behind Stats(). Guarded
// by the scheduler mutex.
type statsTracker struct {
	completed uint64
	failed    uint64
	cancelled uint64

	waitSamples int64
	waitMeanNS  float64
	execSamples int64
	execMeanNS  float64

	lastTick  time.Duration
	tickTimes []time.Time
}

func (st *statsTracker) recordWait(d time.Duration) {
	st.waitSamples++
	st.waitMeanNS += (float64(d) - st.waitMeanNS) / float64(st.waitSamples)
}

func (st *statsTracker) recordExec(d time.Duration) {
	st.execSamples++
	st.execMeanNS += (float64(d) - st.execMeanNS) / float64(st.execSamples)
}

func (st *statsTracker) recordTickArrival(at time.Time) {
	st.tickTimes = append(st.tickTimes, at)
	if len(st.tickTimes) > tickWindow {
		st.tickTimes = st.tickTimes[len(st.tickTimes)-tickWindow:]
	}
}

func (st *statsTracker) ticksPerSecond() float64 {
	n := len(st.tickTimes)
	if n < 2 {
		return 0
	}
	span := st.tickTimes[n-1].Sub(st.tickTimes[0])
	if span <= 0 {
		return 0
	}
	return float64(n-1) / span.Seconds()
}

func (st *statsTracker) reset() {
	*st = statsTracker{}
}

func (st *statsTracker) snapshot() models.Stats {
	return models.Stats{
		Completed:        st.completed,
		Failed:           st.failed,
		Cancelled:        st.cancelled,
		AvgWaitTime:      time.Duration(st.waitMeanNS),
		AvgExecTime:      time.Duration(st.execMeanNS),
		LastTickDuration: st.lastTick,
		TicksPerSecond:   st.ticksPerSecond(),
	}
}
