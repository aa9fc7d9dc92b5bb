package report

import (
	"os"
	"strings"
	"time"

	"github.com/seocheck/headchecker/internal/metrics"

	"github.com/karrick/godirwalk"
)

// Sweeper removes artifacts that outlived the task TTL without being
// downloaded. The task store expires its records on its own; this reconciles
// the disk side so abandoned tasks do not pile up.
type Sweeper struct {
	dir    string
	maxAge time.Duration
}

func NewSweeper(dir string, maxAge time.Duration) *Sweeper {
	return &Sweeper{dir: dir, maxAge: maxAge}
}

func (s *Sweeper) Process() error {
	var swept int
	err := godirwalk.Walk(s.dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() || !strings.HasSuffix(path, ".csv") {
				return nil
			}
			fi, err := os.Stat(path)
			if err != nil {
				return nil
			}
			if time.Since(fi.ModTime()) < s.maxAge {
				return nil
			}
			if err := os.Remove(path); err == nil {
				swept++
				metrics.ArtifactsSwept.Inc()
				logger.Infow("swept abandoned artifact", "path", path)
			}
			return nil
		},
		Unsorted: true,
	})
	if swept > 0 {
		logger.Infow("artifact sweep finished", "swept", swept)
	}
	return err
}

func (s *Sweeper) Shutdown() {}
