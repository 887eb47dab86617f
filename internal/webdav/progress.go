package webdav

import (
	"io"
	"sync"
	"time"
)

// ProgressFunc receives cumulative bytes transferred and the total size.
type ProgressFunc func(done, total int64)

// progressReader wraps an io.Reader and throttles ProgressFunc invocations
// to at most once every progressInterval, always flushing on EOF.
type progressReader struct {
	r        io.Reader
	total    int64
	done     int64
	onTick   ProgressFunc
	lastTick time.Time
	mu       sync.Mutex
}

const progressInterval = 500 * time.Millisecond

func newProgressReader(r io.Reader, total int64, onTick ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, onTick: onTick}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 || err == io.EOF {
		p.mu.Lock()
		p.done += int64(n)
		now := time.Now()
		if p.onTick != nil && (now.Sub(p.lastTick) >= progressInterval || err == io.EOF) {
			p.lastTick = now
			p.onTick(p.done, p.total)
		}
		p.mu.Unlock()
	}
	return n, err
}
