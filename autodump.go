package regcache

import (
	"context"
	"sync"
	"time"
)

type dumpState int

const (
	dumpStopped dumpState = iota
	dumpRunning
)

// autoDumper runs the periodic cleanup+snapshot task. Exactly one loop can
// be alive at a time: reconfiguration fully joins the previous loop before
// spawning the next, so two dump cycles never overlap.
type autoDumper struct {
	mu       sync.Mutex
	state    dumpState
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}

	run      func(context.Context)
	joinWait time.Duration
	log      Logger
}

// Start spawns the periodic task. interval <= 0 means disabled by
// configuration: the dumper records the interval and stays Stopped.
// Reports whether a new task was started.
func (d *autoDumper) Start(interval time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == dumpRunning {
		return false
	}
	d.interval = interval
	if interval <= 0 {
		return false
	}
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.loop(interval, d.stopCh, d.doneCh)
	d.state = dumpRunning
	return true
}

func (d *autoDumper) loop(interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			d.run(context.Background())
		}
	}
}

// Stop signals the task and waits up to joinWait for it to exit. Reports
// whether the task was fully joined; on timeout an in-flight dump keeps
// running to completion rather than being aborted half-written.
func (d *autoDumper) Stop() bool {
	doneCh := d.signalStop()
	if doneCh == nil {
		return true
	}
	select {
	case <-doneCh:
		return true
	case <-time.After(d.joinWait):
		d.log.Warn("auto-dump stop timed out; in-flight dump will finish asynchronously", Fields{
			"timeout": d.joinWait,
		})
		return false
	}
}

// signalStop transitions to Stopped and returns the channel that closes
// when the old loop has actually exited (nil if nothing was running).
func (d *autoDumper) signalStop() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != dumpRunning {
		return nil
	}
	close(d.stopCh)
	doneCh := d.doneCh
	d.stopCh, d.doneCh = nil, nil
	d.state = dumpStopped
	return doneCh
}

// Reconfigure is stop-then-start with a full join in between. Unlike Stop,
// the join here is unbounded: starting a second loop while the first still
// runs is the one thing this type exists to prevent.
func (d *autoDumper) Reconfigure(interval time.Duration) {
	if doneCh := d.signalStop(); doneCh != nil {
		<-doneCh
	}
	d.Start(interval)
}

func (d *autoDumper) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == dumpRunning
}

func (d *autoDumper) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}
