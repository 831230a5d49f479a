package jobs

import (
	"context"
	"log"
	"time"
)

// Escalator is the slice of the alert service the scheduler drives
type Escalator interface {
	ProcessEscalations(ctx context.Context) (int, error)
}

// EscalationScheduler periodically runs the escalation step over all
// due alerts
type EscalationScheduler struct {
	escalator Escalator
}

// NewEscalationScheduler creates a new escalation scheduler
func NewEscalationScheduler(escalator Escalator) *EscalationScheduler {
	return &EscalationScheduler{escalator: escalator}
}

// Tick runs one escalation pass
func (s *EscalationScheduler) Tick(ctx context.Context) (int, error) {
	return s.escalator.ProcessEscalations(ctx)
}

// Start begins the periodic escalation processing
func (s *EscalationScheduler) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			escalated, err := s.Tick(context.Background())
			if err != nil {
				log.Printf("Escalation scheduler error: %v", err)
			} else if escalated > 0 {
				log.Printf("Escalation scheduler: escalated %d alerts", escalated)
			}
		case <-stop:
			log.Println("Escalation scheduler stopped")
			return
		}
	}
}
