package jobs

import (
	"log"
	"time"

	"github.com/wapilot/wapilot-backend/internal/services"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

// ReconcileJob periodically clears the persisted active-session flag for
// users who have no live session handle. The flag is best-effort and can
// disagree with the registry after a crash or a lost disconnect event; this
// job closes that gap so clients and restart recovery see the truth.
type ReconcileJob struct {
	store        storage.Store
	orchestrator *services.Orchestrator
	interval     time.Duration
	stop         chan struct{}
}

// NewReconcileJob creates the session flag reconciliation job
func NewReconcileJob(store storage.Store, orch *services.Orchestrator, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileJob{
		store:        store,
		orchestrator: orch,
		interval:     interval,
		stop:         make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (j *ReconcileJob) Start() {
	log.Println("Starting session reconciliation job...")
	go j.run()
}

// Stop halts the job
func (j *ReconcileJob) Stop() {
	close(j.stop)
}

func (j *ReconcileJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.reconcile()
		case <-j.stop:
			return
		}
	}
}

func (j *ReconcileJob) reconcile() {
	flagged, err := j.store.GetUsersWithActiveSession()
	if err != nil {
		log.Printf("reconcile: query flagged users: %v", err)
		return
	}

	live := j.orchestrator.LiveUserIDs()
	for _, user := range flagged {
		if live[user.UserID] {
			continue
		}
		if err := j.store.SetActiveSession(user.UserID, false); err != nil {
			log.Printf("reconcile: clear flag for user %s: %v", user.UserID, err)
			continue
		}
		log.Printf("Cleared stale active-session flag for user %s", user.UserID)
	}
}
