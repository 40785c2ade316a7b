// Package broadcast delivers one message to every registered recipient,
// isolating per-recipient failures and reporting aggregate progress.
package broadcast

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"adminbot/pkg/logx"
)

// Notify delivers text to one recipient. A non-nil error marks that
// recipient failed; it never aborts the batch.
type Notify func(ctx context.Context, recipientID int64, text string) error

// Report is the final outcome of one dispatch.
type Report struct {
	Total              int
	Sent               int
	Errors             int
	SuccessRatePercent float64
}

// Progress is an intermediate snapshot emitted every progressEvery
// processed recipients.
type Progress struct {
	Processed int
	Total     int
	Sent      int
	Errors    int
}

// Dispatcher runs the fan-out loop. Construct once, use for many jobs.
type Dispatcher struct {
	notify        Notify
	limiter       *rate.Limiter
	progressEvery int
	log           logx.Logger
}

type Option func(*Dispatcher)

// WithRate caps deliveries per second. perSec <= 0 disables the cap.
func WithRate(perSec int) Option {
	return func(d *Dispatcher) {
		if perSec > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
		} else {
			d.limiter = nil
		}
	}
}

// WithProgressEvery sets the progress cadence. Default 10.
func WithProgressEvery(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.progressEvery = n
		}
	}
}

func NewDispatcher(notify Notify, log logx.Logger, opts ...Option) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		notify:        notify,
		limiter:       rate.NewLimiter(rate.Limit(10), 10),
		progressEvery: 10,
		log:           log,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Send delivers text to each recipient in order. The recipients slice is
// treated as an immutable snapshot; callers materialize it before calling.
// onProgress is best-effort and may be nil; its panics are swallowed.
//
// An empty snapshot completes trivially with a zeroed report.
func (d *Dispatcher) Send(ctx context.Context, text string, recipients []int64, onProgress func(Progress)) Report {
	total := len(recipients)
	if total == 0 {
		return Report{}
	}

	var sent, errs int
	for i, id := range recipients {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				// Context gone: count the rest as undelivered and stop.
				errs += total - i
				break
			}
		}

		if err := d.notify(ctx, id, text); err != nil {
			errs++
			d.log.Warn("broadcast delivery failed",
				logx.Int64("recipient", id), logx.Err(err))
		} else {
			sent++
		}

		processed := i + 1
		if onProgress != nil && processed%d.progressEvery == 0 && processed < total {
			emitProgress(onProgress, Progress{Processed: processed, Total: total, Sent: sent, Errors: errs})
		}
	}

	report := Report{
		Total:              total,
		Sent:               sent,
		Errors:             errs,
		SuccessRatePercent: successRate(sent, total),
	}
	d.log.Info("broadcast finished",
		logx.Int("total", report.Total), logx.Int("sent", report.Sent),
		logx.Int("errors", report.Errors), logx.Float64("success_rate", report.SuccessRatePercent))
	return report
}

// emitProgress shields the send loop from a misbehaving callback.
func emitProgress(fn func(Progress), p Progress) {
	defer func() { _ = recover() }()
	fn(p)
}

// successRate is sent/total as a percentage rounded to one decimal.
func successRate(sent, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(sent)/float64(total)*1000) / 10
}
