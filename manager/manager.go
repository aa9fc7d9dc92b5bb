package manager

import (
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/seocheck/headchecker/inspector"
	"github.com/seocheck/headchecker/internal/metrics"
	"github.com/seocheck/headchecker/pkg/dispatcher"
	"github.com/seocheck/headchecker/pkg/logging"
	"github.com/seocheck/headchecker/pkg/logging/zapadapter"
	"github.com/seocheck/headchecker/sitemap"
	"github.com/seocheck/headchecker/taskstore"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

// SitemapFetcher resolves a normalized sitemap URL into target page URLs.
type SitemapFetcher interface {
	Fetch(ctx context.Context, sitemapURL string) ([]string, error)
}

// URLProcessor inspects target URLs, reporting progress into the task store
// under taskID as it goes.
type URLProcessor interface {
	Process(ctx context.Context, urls []string, concurrency int, taskID string) ([]inspector.Result, error)
}

// ResultWriter serializes inspection results into a downloadable artifact.
type ResultWriter interface {
	Write(results []inspector.Result, taskID string) (string, error)
}

// Manager drives the task lifecycle: it creates task records, hands pipeline
// execution off to detached dispatcher workers, answers status polls and
// governs the one-shot download-and-purge of finished artifacts.
type Manager struct {
	*Configuration
	d *dispatcher.Dispatcher
}

type Configuration struct {
	store       taskstore.Store
	fetcher     SitemapFetcher
	processor   URLProcessor
	writer      ResultWriter
	log         logging.KVLogger
	ttl         time.Duration
	concurrency int
	workers     int
	queueSize   int
}

func Configure() *Configuration {
	return &Configuration{
		log:         zapadapter.NewKV(nil),
		ttl:         taskstore.DefaultTTL,
		concurrency: inspector.DefaultConcurrency,
		workers:     8,
		queueSize:   1000,
	}
}

func (c *Configuration) Store(s taskstore.Store) *Configuration {
	c.store = s
	return c
}

func (c *Configuration) Fetcher(f SitemapFetcher) *Configuration {
	c.fetcher = f
	return c
}

func (c *Configuration) Processor(p URLProcessor) *Configuration {
	c.processor = p
	return c
}

func (c *Configuration) Writer(w ResultWriter) *Configuration {
	c.writer = w
	return c
}

func (c *Configuration) Logger(l logging.KVLogger) *Configuration {
	c.log = l
	return c
}

func (c *Configuration) TTL(ttl time.Duration) *Configuration {
	c.ttl = ttl
	return c
}

// Concurrency sets the per-task URL inspection width.
func (c *Configuration) Concurrency(n int) *Configuration {
	c.concurrency = n
	return c
}

// Workers sets how many pipelines may run in parallel.
func (c *Configuration) Workers(n int) *Configuration {
	c.workers = n
	return c
}

func (c *Configuration) QueueSize(n int) *Configuration {
	c.queueSize = n
	return c
}

// NewManager starts the pipeline worker pool and returns a ready manager.
func NewManager(cfg *Configuration) *Manager {
	m := &Manager{Configuration: cfg}
	m.d = dispatcher.Start(cfg.workers, cfg.queueSize, pipelineWorkload{m})
	return m
}

// Stop winds down the pipeline workers. Running pipelines finish first.
func (m *Manager) Stop() {
	m.d.Stop()
}

type pipelineJob struct {
	TaskID     string
	SitemapURL string
}

type pipelineWorkload struct {
	m *Manager
}

func (w pipelineWorkload) Do(t dispatcher.Task) error {
	job := t.Payload.(pipelineJob)
	return w.m.runPipeline(context.Background(), job)
}

// Submit validates the sitemap URL, creates a pending task record and queues
// the pipeline for detached execution. It returns as soon as the record is
// stored; the caller polls Status to learn the outcome.
func (m *Manager) Submit(ctx context.Context, rawURL string) (string, error) {
	normalized, err := sitemap.NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	id := newTaskID()
	initial := taskstore.State{
		Status:     taskstore.StatusPending,
		Progress:   0,
		SitemapURL: normalized,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.Create(ctx, id, initial, m.ttl); err != nil {
		return "", err
	}

	if err := m.d.Dispatch(pipelineJob{TaskID: id, SitemapURL: normalized}); err != nil {
		// no worker will ever pick this task up, so the record goes too
		m.store.Delete(ctx, id)
		return "", err
	}

	metrics.TasksSubmitted.Inc()
	m.log.Info("task submitted", "task_id", id, "url", normalized)
	return id, nil
}

// Status is a pure read-through to the task store.
func (m *Manager) Status(ctx context.Context, id string) (*taskstore.State, error) {
	st, err := m.store.Get(ctx, id)
	if errors.Is(err, taskstore.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	return st, err
}

// Artifact is a one-shot readable handle on a finished task's result file.
type Artifact struct {
	io.ReadCloser
	Name string
	Size int64
}

// Download hands out the artifact of a completed task exactly once. The file
// is unlinked and the task record deleted while the returned descriptor is
// still open, so the caller in flight keeps reading while any later caller
// gets ErrTaskNotFound. Raced callers lose cleanly: deletes are idempotent
// and a loser observes a missing file, never a corrupt stream.
func (m *Manager) Download(ctx context.Context, id string) (*Artifact, error) {
	st, err := m.store.Get(ctx, id)
	if errors.Is(err, taskstore.ErrNotFound) {
		return nil, ErrTaskNotFound
	} else if err != nil {
		return nil, err
	}
	if st.Status != taskstore.StatusCompleted {
		return nil, ErrTaskNotReady
	}

	fi, err := os.Stat(st.File)
	if err != nil {
		return nil, ErrArtifactMissing
	}
	f, err := os.Open(st.File)
	if err != nil {
		return nil, ErrArtifactMissing
	}

	os.Remove(st.File)
	if err := m.store.Delete(ctx, id); err != nil {
		m.log.Error("purging downloaded task failed", "task_id", id, "err", err)
	}

	metrics.ArtifactsDownloaded.Inc()
	metrics.ArtifactBytesDownloaded.Add(float64(fi.Size()))
	m.log.Info("artifact handed off", "task_id", id, "size", fi.Size())

	return &Artifact{ReadCloser: f, Name: filepath.Base(st.File), Size: fi.Size()}, nil
}

// runPipeline executes fetch → inspect → write for one task and records the
// terminal state. Any failure is terminal; the submitter resubmits to retry.
func (m *Manager) runPipeline(ctx context.Context, job pipelineJob) error {
	ll := logging.AddTaskID(m.log, job.TaskID).With("url", job.SitemapURL)
	ll.Info("pipeline started")
	metrics.TasksRunning.Inc()
	defer metrics.TasksRunning.Dec()

	var (
		urls    []string
		results []inspector.Result
	)
	defer func() {
		// Working sets for large sitemaps are sizeable; drop them before
		// the worker returns to the pool instead of holding them until the
		// next task overwrites the closure.
		urls = nil
		results = nil
	}()

	err := func() error {
		var err error
		urls, err = m.fetcher.Fetch(ctx, job.SitemapURL)
		if err != nil {
			return errors.Wrap(err, "fetching sitemap")
		}
		results, err = m.processor.Process(ctx, urls, m.concurrency, job.TaskID)
		if err != nil {
			return errors.Wrap(err, "inspecting URLs")
		}
		path, err := m.writer.Write(results, job.TaskID)
		if err != nil {
			return errors.Wrap(err, "writing results")
		}
		uerr := m.store.Update(ctx, job.TaskID, m.ttl,
			taskstore.WithStatus(taskstore.StatusCompleted),
			taskstore.WithFile(path),
		)
		if errors.Is(uerr, taskstore.ErrNotFound) {
			// Record expired while the pipeline was running. Accepted
			// limitation: the result is unreachable, the sweeper reclaims
			// the artifact.
			ll.Warn("task record expired before completion", "artifact", path)
			return nil
		} else if uerr != nil {
			return errors.Wrap(uerr, "recording completion")
		}
		ll.Info("pipeline completed", "urls", len(urls))
		return nil
	}()

	if err != nil {
		m.failTask(ctx, job.TaskID, err)
		metrics.TasksFailed.Inc()
		return err
	}
	metrics.TasksCompleted.Inc()
	return nil
}

func (m *Manager) failTask(ctx context.Context, id string, cause error) {
	ll := logging.AddTaskID(m.log, id)
	ll.Error("pipeline failed", "err", cause)
	err := m.store.Update(ctx, id, m.ttl,
		taskstore.WithStatus(taskstore.StatusError),
		taskstore.WithError(cause.Error()),
	)
	if errors.Is(err, taskstore.ErrNotFound) {
		ll.Warn("task record expired before failure could be recorded")
	} else if err != nil {
		ll.Error("recording task failure failed", "err", err)
	}
}

func newTaskID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
