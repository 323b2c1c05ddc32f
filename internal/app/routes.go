package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/capture/internal/middleware"
	"github.com/mx-space/capture/internal/modules/content/note"
	"github.com/mx-space/capture/internal/modules/processing/ai"
	"github.com/mx-space/capture/internal/modules/processing/pipeline"
	"github.com/mx-space/capture/internal/modules/processing/transcribe"
	"github.com/mx-space/capture/internal/modules/storage/blob"
	"github.com/mx-space/capture/internal/modules/system/health"
	pkgcron "github.com/mx-space/capture/internal/pkg/cron"
	"github.com/mx-space/capture/internal/pkg/ratelimit"
	"github.com/mx-space/capture/internal/pkg/response"
	"github.com/mx-space/capture/internal/pkg/taskqueue"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes() error {
	r := a.router
	cfg := a.cfg
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFoundMsg(c, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":     "mx-capture",
		"version":  "1.0.0",
		"homepage": "https://github.com/mx-space/capture",
	}

	// Shared services
	noteSvc := note.NewService(a.db)
	store, err := blob.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	var backend transcribe.Backend
	if strings.TrimSpace(cfg.Transcription.APIKey) != "" {
		backend = transcribe.NewOpenAIBackend(cfg.Transcription.APIKey, cfg.Transcription.Endpoint, cfg.Transcription.Model)
	} else {
		a.logger.Warn("transcription api key is empty, audio contributions will fail with reason upstream")
	}
	transcriber := transcribe.NewAdapter(backend, transcribe.Options{
		MaxBytes: cfg.Transcription.MaxBytes,
		TempDir:  cfg.TempDir(),
		Language: cfg.Transcription.Language,
	}, a.logger.Named("transcribe"))

	structurer := ai.NewStructurer(
		ai.NewCompleter(cfg.AI, cfg.AI.StructureModel),
		ai.NewCompleter(cfg.AI, cfg.AI.RenderModel),
		a.logger.Named("ai"),
	)

	// Redis-backed pieces stay nil interfaces when Redis is down.
	var (
		tasks       *taskqueue.Service
		counter     ratelimit.Counter
		runLog      pipeline.RunLog
		runReader   pipeline.RunReader
		redisPinger health.Pinger
	)
	if a.rc != nil {
		tasks = taskqueue.NewService(a.rc)
		counter = a.rc
		runLog = tasks
		runReader = tasks
		redisPinger = a.rc
	}
	guard := ratelimit.NewGuard(counter, cfg.RateLimit.Window, map[ratelimit.Class]int{
		ratelimit.ClassUpload:  cfg.RateLimit.Upload,
		ratelimit.ClassCommit:  cfg.RateLimit.Commit,
		ratelimit.ClassCapture: cfg.RateLimit.Capture,
	}, a.logger.Named("ratelimit"))

	p := pipeline.New(pipeline.Deps{
		Store:       noteSvc,
		Blobs:       store,
		Transcriber: transcriber,
		Structurer:  structurer,
		Runs:        runLog,
	}, pipeline.Options{TextMaxBytes: cfg.Pipeline.TextMaxBytes}, a.logger.Named("pipeline"))

	sched := pkgcron.New(a.logger.Named("cron"))
	registerJobs(sched, tasks, cfg.TempDir(), a.logger)
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	sched.Start(ctx)

	// Versioned API
	api := r.Group(apiPrefix)

	// Infrastructure
	health.RegisterRoutes(api, a.db, redisPinger, cfg.LogDir(), authMW)
	registerJobRoutes(api, sched, authMW)

	// App info endpoint
	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		d := uptime()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": d.Milliseconds(),
			"humanize":  humanizeDuration(d),
		})
	})

	// Notes and contributions
	note.NewHandler(noteSvc).RegisterRoutes(api, authMW)
	pipeline.NewHandler(p, noteSvc, store, runReader, guard, pipeline.HandlerOptions{
		AudioBucket:             cfg.Storage.AudioBucketName(),
		TextBucket:              cfg.Storage.TextBucketName(),
		QueuedDurationThreshold: cfg.Pipeline.QueuedDurationThreshold,
	}).RegisterRoutes(api, authMW)

	return nil
}
