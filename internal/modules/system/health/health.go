package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/capture/internal/pkg/nativelog"
	"github.com/mx-space/capture/internal/pkg/response"
	"gorm.io/gorm"
)

const pingTimeout = 2 * time.Second

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type logItem struct {
	Size     string `json:"size"`
	Filename string `json:"filename"`
	Created  int64  `json:"created"`
}

// RegisterRoutes mounts GET /health publicly and the log viewer behind authMW.
// redis may be nil when the server runs without one.
func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, redis Pinger, logDir string, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		dbOK := pingDatabase(ctx, db)
		redisOK := redis != nil && redis.Ping(ctx) == nil

		status := "ok"
		code := http.StatusOK
		switch {
		case !dbOK:
			status = "down"
			code = http.StatusServiceUnavailable
		case !redisOK:
			// rate limiting fails open and the run log is optional
			status = "degraded"
		}

		c.JSON(code, gin.H{
			"status":   status,
			"database": dbOK,
			"redis":    redisOK,
		})
	})

	logGroup := rg.Group("/health/log", authMW)
	{
		logGroup.GET("", func(c *gin.Context) {
			entries, err := os.ReadDir(logDir)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					response.OK(c, []logItem{})
					return
				}
				response.InternalError(c, err)
				return
			}

			items := make([]logItem, 0, len(entries))
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
					continue
				}
				info, err := entry.Info()
				if err != nil {
					continue
				}
				items = append(items, logItem{
					Size:     formatByteSize(info.Size()),
					Filename: entry.Name(),
					Created:  info.ModTime().UnixMilli(),
				})
			}
			sort.Slice(items, func(i, j int) bool {
				return items[i].Created > items[j].Created
			})
			response.OK(c, items)
		})

		logGroup.GET("/:filename", func(c *gin.Context) {
			path, ok := logPath(c, logDir)
			if !ok {
				return
			}
			data, err := os.ReadFile(path)
			if err != nil {
				response.NotFoundMsg(c, "log file not exists")
				return
			}
			c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
		})

		logGroup.DELETE("/:filename", func(c *gin.Context) {
			path, ok := logPath(c, logDir)
			if !ok {
				return
			}
			// today's file is still open for writing, so it is truncated instead
			var err error
			if filepath.Base(path) == nativelog.TodayFilename(time.Now()) {
				err = os.WriteFile(path, nil, 0o644)
			} else {
				err = os.Remove(path)
			}
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				response.InternalError(c, err)
				return
			}
			response.NoContent(c)
		})
	}
}

func pingDatabase(ctx context.Context, db *gorm.DB) bool {
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	return err == nil && sqlDB.PingContext(ctx) == nil
}

func logPath(c *gin.Context, dir string) (string, bool) {
	name := filepath.Base(strings.TrimSpace(c.Param("filename")))
	if name == "." || name == string(filepath.Separator) || !strings.HasSuffix(name, ".log") {
		response.BadRequest(c, "invalid log filename")
		return "", false
	}
	return filepath.Join(dir, name), true
}

func formatByteSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
