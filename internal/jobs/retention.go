package jobs

import (
	"log"
	"time"
)

// Cleaner is the slice of the alert service the retention job drives
type Cleaner interface {
	CleanupOldAlerts(retentionDays int) (int64, int64, error)
}

// RetentionJob periodically purges resolved alerts past the retention
// window together with their orphaned audit rows
type RetentionJob struct {
	cleaner       Cleaner
	retentionDays int
}

// NewRetentionJob creates a new retention job
func NewRetentionJob(cleaner Cleaner, retentionDays int) *RetentionJob {
	return &RetentionJob{cleaner: cleaner, retentionDays: retentionDays}
}

// Run executes one cleanup sweep
func (j *RetentionJob) Run() (int64, int64, error) {
	return j.cleaner.CleanupOldAlerts(j.retentionDays)
}

// Start begins the periodic cleanup
func (j *RetentionJob) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			alerts, actions, err := j.Run()
			if err != nil {
				log.Printf("Retention job error: %v", err)
			} else if alerts > 0 || actions > 0 {
				log.Printf("Retention job: purged %d alerts, %d actions", alerts, actions)
			}
		case <-stop:
			log.Println("Retention job stopped")
			return
		}
	}
}
