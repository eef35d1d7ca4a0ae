package services

import (
	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"

	"github.com/robfig/cron/v3"
)

// StatsReporter periodically logs the arbiter counters. Schedules accept a
// leading seconds field as well as the @every descriptors.
type StatsReporter struct {
	cron     *cron.Cron
	arbiter  *BidArbiter
	schedule string
	log      logger.Logger
}

func NewStatsReporter(arbiter *BidArbiter, schedule string, log logger.Logger) *StatsReporter {
	return &StatsReporter{
		cron:     cron.New(cron.WithSeconds()),
		arbiter:  arbiter,
		schedule: schedule,
		log:      log,
	}
}

func (r *StatsReporter) Start() error {
	r.log.Info("Starting stats reporter", "schedule", r.schedule)

	if _, err := r.cron.AddFunc(r.schedule, r.Report); err != nil {
		return err
	}

	r.cron.Start()
	return nil
}

func (r *StatsReporter) Stop() {
	r.log.Info("Stopping stats reporter")
	<-r.cron.Stop().Done()
}

func (r *StatsReporter) Report() {
	s := r.arbiter.Stats()
	r.log.Info("Arbiter stats",
		"accepted", s.Outcomes[domain.OutcomeAccepted.String()],
		"not_found", s.Outcomes[domain.OutcomeNotFound.String()],
		"too_low", s.Outcomes[domain.OutcomeTooLow.String()],
		"closed", s.Outcomes[domain.OutcomeClosed.String()],
		"busy", s.Outcomes[domain.OutcomeBusy.String()],
		"error", s.Outcomes[domain.OutcomeError.String()],
		"total", s.Total(),
		"lock_handles", s.LockHandles,
	)
}
