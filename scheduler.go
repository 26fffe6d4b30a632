// scheduler.go - real-time tick scheduler (component F, spec.md
// section 4.6): delivers exactly-paced 2ms ticks to the driver core,
// corrects for drift by advancing its reference clock in whole-tick
// steps rather than snapping to wall time, and caps catch-up so a
// stalled process doesn't try to replay minutes of missed ticks in a
// burst. The quit-key handling is adapted from terminal_host.go's
// raw-mode, non-blocking stdin read.

package main

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

// tickInterval is the PSG driver's fixed cadence (spec.md section 1).
const tickInterval = 2 * time.Millisecond

// maxCatchupTicks bounds how many missed ticks Scheduler will replay in
// one pass before resyncing to wall time (spec.md section 8, testable
// property 5).
const maxCatchupTicks = 50

// keyQuit and keyQuitAlt stop playback when read from stdin: 'q' or Ctrl-L.
const (
	keyQuit    = 'q'
	keyQuitAlt = 0x0C
)

// Scheduler drives a Driver at tickInterval cadence until the driver
// runs out of active channels, the context is canceled, or a quit key
// is read from stdin.
type Scheduler struct {
	driver *Driver
	logger *log.Logger

	keys chan byte

	stopCh  chan struct{}
	done    chan struct{}
	stopped sync.Once

	fd           int
	oldTermState *term.State
	nonblockSet  bool
	rawModeOK    bool
}

// NewScheduler constructs a scheduler for driver. Call Run to pace
// playback; Run returns once the song ends, ctx is canceled, or a quit
// key is pressed.
func NewScheduler(driver *Driver, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		driver: driver,
		logger: logger.With("component", "scheduler"),
		keys:   make(chan byte, 8),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run paces driver ticks at tickInterval until playback ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.startInput()
	defer s.stopInput()

	next := time.Now()
	sleepQuantum := tickInterval / 4

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case k := <-s.keys:
			if k == keyQuit || k == keyQuitAlt {
				return nil
			}
		default:
		}

		now := time.Now()
		due := int(now.Sub(next) / tickInterval)

		if due <= 0 {
			time.Sleep(sleepQuantum)
			continue
		}

		if due > maxCatchupTicks {
			s.logger.Warn("tick catch-up capped", "due", due, "cap", maxCatchupTicks)
			due = maxCatchupTicks
			next = now // abandon the remainder instead of bursting forever
		} else {
			next = next.Add(time.Duration(due) * tickInterval)
		}

		for i := 0; i < due; i++ {
			if err := s.driver.Tick(); err != nil {
				return err
			}
		}

		if !s.driver.Active() {
			return nil
		}
	}
}

// Stop requests Run to return at its next iteration, without waiting
// for a quit key.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) startInput() {
	s.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(s.fd)
	if err != nil {
		// Non-interactive stdin (e.g. piped input, a test harness): run
		// without quit-key support rather than failing playback.
		s.logger.Debug("stdin raw mode unavailable", "err", err)
		return
	}
	s.oldTermState = oldState
	s.rawModeOK = true

	if err := syscall.SetNonblock(s.fd, true); err != nil {
		s.logger.Debug("stdin nonblocking mode unavailable", "err", err)
		_ = term.Restore(s.fd, s.oldTermState)
		s.oldTermState = nil
		s.rawModeOK = false
		return
	}
	s.nonblockSet = true

	go func() {
		defer close(s.done)
		buf := make([]byte, 1)
		for {
			select {
			case <-s.stopCh:
				return
			default:
			}
			n, err := syscall.Read(s.fd, buf)
			if n > 0 {
				select {
				case s.keys <- buf[0]:
				default:
				}
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK || n == 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
		}
	}()
}

func (s *Scheduler) stopInput() {
	if !s.rawModeOK {
		return
	}
	s.Stop()
	<-s.done
	if s.nonblockSet {
		_ = syscall.SetNonblock(s.fd, false)
	}
	if s.oldTermState != nil {
		_ = term.Restore(s.fd, s.oldTermState)
	}
}
