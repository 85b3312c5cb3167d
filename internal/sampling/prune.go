package sampling

import (
	"time"

	"github.com/rs/zerolog"
)

// PruneJob drops counters for days before today. Counters only ever matter
// for the current day, so the job keeps the store bounded.
type PruneJob struct {
	counters CounterStore
	now      func() time.Time
	log      zerolog.Logger
}

// NewPruneJob creates a prune job over counters.
func NewPruneJob(counters CounterStore, log zerolog.Logger) *PruneJob {
	return &PruneJob{
		counters: counters,
		now:      time.Now,
		log:      log.With().Str("job", "sampling_prune").Logger(),
	}
}

// Name returns the job name.
func (j *PruneJob) Name() string {
	return "sampling_prune"
}

// Run purges stale counters.
func (j *PruneJob) Run() error {
	removed := j.counters.PurgeBefore(j.now())
	j.log.Info().Int("removed", removed).Msg("Pruned sampling counters")
	return nil
}
