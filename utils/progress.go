package utils

import (
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// ProgressTracker displays upload progress or a running item count
type ProgressTracker struct {
	bar       *pb.ProgressBar
	quiet     bool
	startTime time.Time
	total     int64
	current   int64
	mutex     sync.RWMutex
}

// TransferSummary contains final transfer statistics
type TransferSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
}

// NewProgressTracker creates a byte progress bar for a transfer of total bytes
func NewProgressTracker(total int64, prefix string, quiet bool) *ProgressTracker {
	tracker := &ProgressTracker{
		quiet:     quiet,
		startTime: time.Now(),
		total:     total,
	}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }}`
		bar := pb.ProgressBarTemplate(tmpl).Start64(total)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", prefix)
		tracker.bar = bar
	}

	return tracker
}

// NewCounter creates a progress display counting items with no known total
func NewCounter(prefix string, quiet bool) *ProgressTracker {
	tracker := &ProgressTracker{quiet: quiet, startTime: time.Now()}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{etime . }}`
		bar := pb.ProgressBarTemplate(tmpl).Start64(0)
		bar.Set("prefix", prefix)
		tracker.bar = bar
	}

	return tracker
}

// ProxyReader wraps r so that reads advance the bar
func (p *ProgressTracker) ProxyReader(r io.Reader) io.Reader {
	return &countingReader{reader: r, tracker: p}
}

type countingReader struct {
	reader  io.Reader
	tracker *ProgressTracker
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.reader.Read(b)
	if n > 0 {
		c.tracker.Add(int64(n))
	}
	return n, err
}

// Add advances progress by n
func (p *ProgressTracker) Add(n int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += n
	if p.bar != nil {
		p.bar.SetCurrent(p.current)
	}
}

// Increment advances progress by one item
func (p *ProgressTracker) Increment() {
	p.Add(1)
}

// Current returns the progress so far
func (p *ProgressTracker) Current() int64 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.current
}

// Finish stops the bar and returns a summary of the transfer
func (p *ProgressTracker) Finish() TransferSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bar != nil {
		p.bar.Finish()
	}

	elapsed := time.Since(p.startTime)
	summary := TransferSummary{TotalBytes: p.current, TotalTime: elapsed}
	if elapsed > 0 {
		summary.AverageSpeed = float64(p.current) / elapsed.Seconds()
	}
	return summary
}
