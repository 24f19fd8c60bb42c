package build

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/observability"
	"git.home.luguber.info/inful/dochost/internal/storage"
)

// FinishInactiveBuilds fails every build that has not reached the finished
// state within timeout of its creation and returns how many were finished.
func FinishInactiveBuilds(ctx context.Context, store storage.Store, timeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-timeout)
	builds, err := store.ListUnfinishedBuilds(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	finished := 0
	for _, b := range builds {
		b.State = models.BuildStateFinished
		b.Success = false
		b.Error = InactivityMessage
		if b.Length == 0 {
			b.Length = time.Since(b.Date)
		}
		if err := store.UpdateBuild(ctx, b); err != nil {
			return finished, err
		}
		finished++
		observability.InfoContext(observability.WithBuildID(ctx, b.ID), "Build terminated due to inactivity")
	}

	if finished > 0 {
		observability.InfoContext(ctx, "Finished inactive builds", slog.Int("count", finished))
	}
	return finished, nil
}
