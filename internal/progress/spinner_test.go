package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestStopJoinsWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf syncBuffer
	s := Start(&buf, "Generating")
	s.Stop()
	s.Stop()

	out := buf.String()
	assert.Contains(t, out, "\rGenerating -")
	assert.True(t, strings.HasSuffix(out, "\r"), "line is cleared on stop")
}
