// File: pkg/app/progress.go
package app

import "time"

// ProgressUpdate tracks a running byte transfer for display.
type ProgressUpdate struct {
	Message   string
	Completed int64
	Total     int64
	StartedAt time.Time
}

// Percent is the completion percentage, 0 when the total is unknown.
func (p *ProgressUpdate) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return int((p.Completed * 100) / p.Total)
}

// Rate is the transfer rate in bytes per second.
func (p *ProgressUpdate) Rate() float64 {
	elapsed := time.Since(p.StartedAt)
	if elapsed <= 0 {
		return 0
	}
	return float64(p.Completed) / elapsed.Seconds()
}

// ETA estimates the remaining transfer time.
func (p *ProgressUpdate) ETA() time.Duration {
	rate := p.Rate()
	if p.Completed == 0 || p.Total == 0 || rate == 0 {
		return 0
	}
	remaining := float64(p.Total - p.Completed)
	return time.Duration(remaining/rate) * time.Second
}
