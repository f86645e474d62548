package janitor

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/latexmt-web/internal/workdir"
	"github.com/MimeLyc/latexmt-web/pkg/file"
	"github.com/MimeLyc/latexmt-web/pkg/icron"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

// DefaultMaxAge is how long an upload staging directory may linger.
const DefaultMaxAge = time.Hour

// Janitor removes upload staging directories left behind by interrupted
// submissions.
type Janitor struct {
	dirs     workdir.Dirs
	cronExpr string
	maxAge   time.Duration
	cron     *cron.Cron
	logger   *log.Logger
	group    singleflight.Group
	now      func() time.Time
}

func New(dirs workdir.Dirs, cronExpr string, c *cron.Cron, logger *log.Logger) *Janitor {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Janitor{
		dirs:     dirs,
		cronExpr: cronExpr,
		maxAge:   DefaultMaxAge,
		cron:     c,
		logger:   logger.With("component", "janitor"),
		now:      time.Now,
	}
}

// Schedule registers the sweep on the cron engine. Overlapping triggers
// share one run.
func (j *Janitor) Schedule(ctx context.Context) error {
	run := func() {
		_, _, _ = j.group.Do("sweep", func() (any, error) {
			if ctx.Err() != nil {
				return nil, nil
			}
			removed, err := j.Sweep()
			if err != nil {
				j.logger.Warn("Failed to sweep uploads", "error", err)
			} else if removed > 0 {
				j.logger.Info("Removed stale uploads", "count", removed)
			}
			return nil, nil
		})
	}
	if _, err := j.cron.AddFunc(j.cronExpr, run); err != nil {
		return err
	}

	if info, err := icron.GetTriggerInfo(j.cronExpr, j.now()); err == nil {
		j.logger.Info("Scheduled upload cleanup", "cron", info.Expression, "next", info.Next, "in", info.TimeUntilNext)
	}
	return nil
}

// Sweep removes upload directories older than the max age and reports how
// many it removed.
func (j *Janitor) Sweep() (int, error) {
	stale, err := file.ChildrenOlderThan(j.dirs.UploadBase(), j.now().Add(-j.maxAge))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range stale {
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("Failed to remove upload", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
