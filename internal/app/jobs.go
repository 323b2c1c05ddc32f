package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/capture/internal/modules/processing/transcribe"
	"github.com/mx-space/capture/internal/pkg/apperr"
	pkgcron "github.com/mx-space/capture/internal/pkg/cron"
	"github.com/mx-space/capture/internal/pkg/response"
	"github.com/mx-space/capture/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const (
	runRetention     = 24 * time.Hour
	stagingRetention = time.Hour
)

func registerJobs(sched *pkgcron.Scheduler, tasks *taskqueue.Service, tempDir string, logger *zap.Logger) {
	if tasks != nil {
		sched.Register(pkgcron.Job{
			Name:        "prune_runs",
			Description: "Delete finished pipeline runs older than a day",
			Interval:    time.Hour,
			Fn: func(ctx context.Context) error {
				removed, err := tasks.DeleteFinished(ctx, time.Now().Add(-runRetention).UnixMilli())
				if err != nil {
					return err
				}
				if removed > 0 {
					logger.Info("pruned pipeline runs", zap.Int("removed", removed))
				}
				return nil
			},
		})
	}
	sched.Register(pkgcron.Job{
		Name:        "clean_staging",
		Description: "Remove stale transcription staging files",
		Interval:    15 * time.Minute,
		Fn: func(ctx context.Context) error {
			_, err := cleanStaging(tempDir, time.Now().Add(-stagingRetention))
			return err
		},
	})
}

// registerJobRoutes lists the jobs and lets an operator run one immediately.
func registerJobRoutes(rg *gin.RouterGroup, sched *pkgcron.Scheduler, authMW gin.HandlerFunc) {
	jobs := rg.Group("/health/jobs", authMW)
	jobs.GET("", func(c *gin.Context) {
		response.OK(c, sched.List())
	})
	jobs.POST("/:name/run", func(c *gin.Context) {
		name := c.Param("name")
		if err := sched.RunNow(c.Request.Context(), name); err != nil {
			if errors.Is(err, pkgcron.ErrJobNotFound) {
				response.Error(c, apperr.NotFound("job", name))
				return
			}
			response.InternalError(c, err)
			return
		}
		for _, item := range sched.List() {
			if item.Name == name {
				response.OK(c, item)
				return
			}
		}
	})
}

// cleanStaging removes staging files in dir last modified before cutoff.
func cleanStaging(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), transcribe.StagingPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
