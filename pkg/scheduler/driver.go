package scheduler

import (
	"sync"
	"time"
)

// Driver supplies the scheduling heartbeat. A host with its own
// render/interaction loop implements Driver and fires once per frame so
// dispatch aligns with render cadence; everyone else uses IntervalDriver.
type Driver interface {
	// Start begins delivering ticks to fire. fire is safe to call from any
	// goroutine and never blocks for long.
	Start(fire func())
	// Stop halts tick delivery and waits for in-flight callbacks to return.
	Stop()
}

// IntervalDriver fires at a fixed interval, approximating a display-
// synchronized callback for headless hosts.
type IntervalDriver struct {
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewIntervalDriver(interval time.Duration) *IntervalDriver {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &IntervalDriver{interval: interval}
}

func (d *IntervalDriver) Start(fire func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopCh != nil {
		return
	}
	stopCh := make(chan struct{})
	d.stopCh = stopCh
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				fire()
			}
		}
	}()
}

func (d *IntervalDriver) Stop() {
	d.mu.Lock()
	if d.stopCh == nil {
		d.mu.Unlock()
		return
	}
	close(d.stopCh)
	d.stopCh = nil
	d.mu.Unlock()
	d.wg.Wait()
}

// ManualDriver delivers ticks only when Tick is called. Tests use it to pump
// the loop deterministically.
type ManualDriver struct {
	mu   sync.Mutex
	fire func()
}

func NewManualDriver() *ManualDriver {
	return &ManualDriver{}
}

func (d *ManualDriver) Start(fire func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fire = fire
}

func (d *ManualDriver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fire = nil
}

// Tick fires one heartbeat. No-op when the driver is stopped.
func (d *ManualDriver) Tick() {
	d.mu.Lock()
	fire := d.fire
	d.mu.Unlock()
	if fire != nil {
		fire()
	}
}
