package broadcast

import (
	"context"
	"sync/atomic"

	"adminbot/internal/eventbus"
	"adminbot/internal/runtime/supervisor"
	"adminbot/internal/storage"
	"adminbot/pkg/logx"
)

// Event types published on the bus while a job runs.
const (
	EventProgress = "broadcast.progress"
	EventDone     = "broadcast.done"
)

// Job identifies one running dispatch.
type Job struct {
	ID         uint64
	OperatorID int64
	Text       string
	Total      int
}

// ProgressEvent is the Data of an EventProgress bus event.
type ProgressEvent struct {
	Job      Job
	Progress Progress
}

// DoneEvent is the Data of an EventDone bus event.
type DoneEvent struct {
	Job    Job
	Report Report
}

// Service snapshots the recipient list and runs dispatches asynchronously so
// a long send loop never blocks the operator event stream.
type Service struct {
	store storage.Store
	disp  *Dispatcher
	sup   *supervisor.Supervisor
	bus   eventbus.Bus
	log   logx.Logger

	seq atomic.Uint64
}

func NewService(store storage.Store, disp *Dispatcher, sup *supervisor.Supervisor, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, disp: disp, sup: sup, bus: bus, log: log}
}

// Start materializes the recipient snapshot and launches the dispatch,
// returning the snapshot size immediately. Recipients registered after this
// point are not part of the job.
func (s *Service) Start(ctx context.Context, operatorID int64, text string) (int, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	recipients := make([]int64, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, u.ID)
	}

	job := Job{
		ID:         s.seq.Add(1),
		OperatorID: operatorID,
		Text:       text,
		Total:      len(recipients),
	}

	if len(recipients) == 0 {
		s.publishDone(job, Report{})
		return 0, nil
	}

	s.log.Info("broadcast started",
		logx.Int64("job", int64(job.ID)), logx.Int64("operator", operatorID),
		logx.Int("recipients", job.Total))

	s.sup.Go0("broadcast.job", func(ctx context.Context) {
		report := s.disp.Send(ctx, text, recipients, func(p Progress) {
			s.bus.Publish(eventbus.Event{
				Type: EventProgress,
				Data: ProgressEvent{Job: job, Progress: p},
			})
		})
		s.publishDone(job, report)
	})
	return len(recipients), nil
}

func (s *Service) publishDone(job Job, report Report) {
	s.bus.Publish(eventbus.Event{
		Type: EventDone,
		Data: DoneEvent{Job: job, Report: report},
	})
}
