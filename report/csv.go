package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/seocheck/headchecker/inspector"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
)

var csvHeader = []string{
	"url", "http_status", "error",
	"title", "meta_description", "canonical", "meta_robots",
	"viewport", "charset", "favicon",
	"open_graph_tags", "twitter_tags", "hreflang_links",
}

// CSVWriter serializes inspection results into one CSV artifact per task,
// stored under a local directory until downloaded or swept.
type CSVWriter struct {
	dir string
}

func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating artifacts directory")
	}
	return &CSVWriter{dir: dir}, nil
}

func (w *CSVWriter) Dir() string {
	return w.dir
}

// Write produces <dir>/<taskID>.csv and returns its path. A failed write
// leaves nothing behind: the partial file is unlinked so an errored task
// never holds an artifact until the sweeper gets to it.
func (w *CSVWriter) Write(results []inspector.Result, taskID string) (string, error) {
	path := filepath.Join(w.dir, taskID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "creating artifact")
	}

	if err := writeRows(f, results); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", errors.Wrap(err, "closing artifact")
	}

	if fi, err := os.Stat(path); err == nil {
		logger.Infow("artifact written",
			"path", path, "rows", len(results), "size", datasize.ByteSize(fi.Size()).HR())
	}
	return path, nil
}

func writeRows(f io.Writer, results []inspector.Result) error {
	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "writing artifact header")
	}
	for _, r := range results {
		row := []string{
			r.URL,
			strconv.Itoa(r.StatusCode),
			r.Err,
			r.Title,
			r.MetaDescription,
			r.Canonical,
			r.MetaRobots,
			yesNo(r.HasViewport),
			yesNo(r.HasCharset),
			yesNo(r.HasFavicon),
			strconv.Itoa(r.OpenGraphTags),
			strconv.Itoa(r.TwitterTags),
			strconv.Itoa(r.HreflangCount),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing artifact row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing artifact")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
