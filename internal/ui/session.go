package ui

import (
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/muesli/termenv"
)

// Session owns the process-level terminal state of one interactive run:
// the hidden cursor and the signal handlers that restore it. Begin and End
// are idempotent; End is meant to be deferred right after Begin so the
// cursor comes back after an error or a panic too.
type Session struct {
	out *termenv.Output

	mu      sync.Mutex
	active  bool
	signals chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSession creates a session controlling the terminal behind w.
func NewSession(w io.Writer) *Session {
	return &Session{out: termenv.NewOutput(w)}
}

// Begin hides the cursor and installs SIGINT, SIGTERM and SIGHUP
// handlers. Each received signal restores the cursor and is passed to
// onSignal, which typically cancels the run's context.
func (s *Session) Begin(onSignal func(os.Signal)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	s.out.HideCursor()

	s.signals = make(chan os.Signal, 1)
	s.done = make(chan struct{})
	signal.Notify(s.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	s.wg.Add(1)
	go func(signals <-chan os.Signal, done <-chan struct{}) {
		defer s.wg.Done()
		for {
			select {
			case <-done:
				return
			case sig := <-signals:
				s.out.ShowCursor()
				if onSignal != nil {
					onSignal(sig)
				}
			}
		}
	}(s.signals, s.done)
}

// End removes the signal handlers and shows the cursor.
func (s *Session) End() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	signal.Stop(s.signals)
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.out.ShowCursor()
}

// Active reports whether Begin was called without a matching End.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
