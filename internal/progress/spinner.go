// Package progress draws a rotating-line indicator while a blocking call runs
// on a plain terminal. The indicator carries no data: Stop joins the drawing
// goroutine and clears the line before the caller uses its result.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var frames = []string{"-", `\`, "|", "/"}

const Interval = 150 * time.Millisecond

type Spinner struct {
	w    io.Writer
	msg  string
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Start begins drawing msg followed by a rotating line on w.
func Start(w io.Writer, msg string) *Spinner {
	s := &Spinner{w: w, msg: msg, stop: make(chan struct{})}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Spinner) run() {
	defer s.wg.Done()
	t := time.NewTicker(Interval)
	defer t.Stop()
	for i := 0; ; i++ {
		fmt.Fprintf(s.w, "\r%s %s", s.msg, frames[i%len(frames)])
		select {
		case <-s.stop:
			fmt.Fprint(s.w, "\r"+strings.Repeat(" ", len(s.msg)+2)+"\r")
			return
		case <-t.C:
		}
	}
}

// Stop ends the animation and waits for the goroutine to exit. It is safe to
// call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}
