package storage

import (
	"fmt"
	"time"

	"github.com/small-frappuccino/guildsetup/pkg/log"
)

// PruneOlderThan deletes audit events created before cutoff and reports how
// many rows went away.
func (s *Store) PruneOlderThan(cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("store not initialized")
	}
	res, err := s.db.Exec(`DELETE FROM audit_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SchedulePeriodicPrune runs a retention pass every interval, deleting
// events older than retention. Close the returned channel to stop.
func SchedulePeriodicPrune(s *Store, interval, retention time.Duration) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := s.PruneOlderThan(time.Now().Add(-retention))
				if err != nil {
					log.Storage().Warn("Audit prune failed", "err", err)
					continue
				}
				if n > 0 {
					log.Storage().Info("Pruned audit events", "removed", n)
				}
			case <-stop:
				return
			}
		}
	}()
	return stop
}
