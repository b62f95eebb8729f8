package output

import (
	"fmt"
	"sync"
	"time"
)

// Spinner animates a message on stderr while a blocking call runs. It is a
// no-op in JSON mode and when output is redirected via SetOutput.
type Spinner struct {
	message string
	done    chan struct{}
	stopped chan struct{}
	start   sync.Once
	stop    sync.Once
}

// NewSpinner creates a spinner with the given message.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins the animation. Calls after the first are ignored.
func (s *Spinner) Start() {
	s.start.Do(func() {
		if JSONMode || !isStderr() {
			close(s.stopped)
			return
		}
		go s.run()
	})
}

func isStderr() bool {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	return logOut == stderr
}

func (s *Spinner) run() {
	defer close(s.stopped)
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	if NoColor() {
		frames = []string{"|", "/", "-", "\\"}
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-s.done:
			fmt.Fprint(stderr, "\r\033[K")
			return
		case <-ticker.C:
			fmt.Fprintf(stderr, "\r%s %s", frames[i%len(frames)], s.message)
		}
	}
}

// Stop halts the animation and waits for the line to be cleared. Safe to
// call more than once, and before Start.
func (s *Spinner) Stop() {
	s.start.Do(func() { close(s.stopped) })
	s.stop.Do(func() { close(s.done) })
	<-s.stopped
}

// WithSpinner runs fn behind a spinner and reports the outcome.
func WithSpinner(message string, fn func() error) error {
	sp := NewSpinner(message)
	sp.Start()
	err := fn()
	sp.Stop()
	if err != nil {
		Fail(message + " failed")
	} else {
		Success(message)
	}
	return err
}
