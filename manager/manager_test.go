package manager

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seocheck/headchecker/inspector"
	"github.com/seocheck/headchecker/pkg/dispatcher"
	"github.com/seocheck/headchecker/pkg/logging"
	"github.com/seocheck/headchecker/taskstore"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type stubFetcher struct {
	urls []string
	err  error
}

func (f stubFetcher) Fetch(_ context.Context, _ string) ([]string, error) {
	return f.urls, f.err
}

type stubProcessor struct {
	store taskstore.Store
	ttl   time.Duration
	err   error
}

func (p stubProcessor) Process(ctx context.Context, urls []string, _ int, taskID string) ([]inspector.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	results := make([]inspector.Result, len(urls))
	for i, u := range urls {
		pct := (i + 1) * 100 / len(urls)
		p.store.Update(ctx, taskID, p.ttl,
			taskstore.WithStatus(taskstore.StatusProcessing),
			taskstore.WithProgress(pct))
		results[i] = inspector.Result{URL: u, StatusCode: 200, Title: "page"}
	}
	return results, nil
}

type stubWriter struct {
	dir string
	err error
}

func (w stubWriter) Write(results []inspector.Result, taskID string) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	path := filepath.Join(w.dir, taskID+".csv")
	return path, ioutil.WriteFile(path, []byte("url,status\n"), 0644)
}

type ManagerSuite struct {
	suite.Suite
	store *taskstore.MemoryStore
	dir   string
	ctx   context.Context
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.store = taskstore.NewMemoryStore()
	s.dir = s.T().TempDir()
	s.ctx = context.Background()
}

func (s *ManagerSuite) newManager(cfg *Configuration) *Manager {
	if cfg == nil {
		cfg = Configure().
			Fetcher(stubFetcher{urls: []string{"https://example.com/a", "https://example.com/b"}}).
			Processor(stubProcessor{store: s.store, ttl: time.Minute}).
			Writer(stubWriter{dir: s.dir})
	}
	m := NewManager(cfg.Store(s.store).Workers(2).Logger(logging.NoopKVLogger{}))
	s.T().Cleanup(m.Stop)
	return m
}

func (s *ManagerSuite) waitTerminal(m *Manager, id string) *taskstore.State {
	var st *taskstore.State
	s.Require().Eventually(func() bool {
		var err error
		st, err = m.Status(s.ctx, id)
		if err != nil {
			return false
		}
		return st.Status == taskstore.StatusCompleted || st.Status == taskstore.StatusError
	}, 5*time.Second, 5*time.Millisecond)
	return st
}

func (s *ManagerSuite) TestSubmitHappyPath() {
	m := s.newManager(nil)

	id, err := m.Submit(s.ctx, "example.com/sitemap.xml")
	s.Require().NoError(err)
	s.Require().NotEmpty(id)

	// pending is set synchronously, before any worker touches the record
	st, err := m.Status(s.ctx, id)
	s.Require().NoError(err)
	s.Contains([]taskstore.Status{
		taskstore.StatusPending, taskstore.StatusProcessing, taskstore.StatusCompleted,
	}, st.Status)
	s.Equal("https://example.com/sitemap.xml", st.SitemapURL)

	st = s.waitTerminal(m, id)
	s.Require().Equal(taskstore.StatusCompleted, st.Status)
	s.Require().NotEmpty(st.File)
	s.FileExists(st.File)
	s.Empty(st.Error)
}

func (s *ManagerSuite) TestSubmitInvalidURL() {
	m := s.newManager(nil)
	_, err := m.Submit(s.ctx, "   ")
	s.Require().Error(err)
}

func (s *ManagerSuite) TestSubmitRefusedLeavesNoRecord() {
	rec := &recordingStore{Store: s.store}
	m := NewManager(Configure().
		Store(rec).
		Fetcher(stubFetcher{urls: []string{"https://example.com/a"}}).
		Processor(stubProcessor{store: s.store, ttl: time.Minute}).
		Writer(stubWriter{dir: s.dir}).
		Workers(1).
		Logger(logging.NoopKVLogger{}))
	m.Stop()

	_, err := m.Submit(s.ctx, "https://example.com/sitemap.xml")
	s.Require().ErrorIs(err, dispatcher.ErrStopped)

	// the pending record created before dispatch is rolled back
	s.Require().Len(rec.created, 1)
	_, err = s.store.Get(s.ctx, rec.created[0])
	s.Require().ErrorIs(err, taskstore.ErrNotFound)
}

type recordingStore struct {
	taskstore.Store
	created []string
}

func (r *recordingStore) Create(ctx context.Context, id string, initial taskstore.State, ttl time.Duration) error {
	r.created = append(r.created, id)
	return r.Store.Create(ctx, id, initial, ttl)
}

func (s *ManagerSuite) TestStatusUnknownTask() {
	m := s.newManager(nil)
	_, err := m.Status(s.ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	s.Require().ErrorIs(err, ErrTaskNotFound)
}

func (s *ManagerSuite) TestDownloadOneShot() {
	m := s.newManager(nil)

	id, err := m.Submit(s.ctx, "https://example.com/sitemap.xml")
	s.Require().NoError(err)
	st := s.waitTerminal(m, id)
	s.Require().Equal(taskstore.StatusCompleted, st.Status)

	art, err := m.Download(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(id+".csv", art.Name)

	// file already unlinked, the open descriptor still reads fine
	s.NoFileExists(st.File)
	body, err := ioutil.ReadAll(art)
	s.Require().NoError(err)
	s.Require().NoError(art.Close())
	s.NotEmpty(body)

	_, err = m.Download(s.ctx, id)
	s.Require().ErrorIs(err, ErrTaskNotFound)
	_, err = m.Status(s.ctx, id)
	s.Require().ErrorIs(err, ErrTaskNotFound)
}

func (s *ManagerSuite) TestDownloadNotReady() {
	release := make(chan struct{})
	defer close(release)
	m := s.newManager(Configure().
		Fetcher(stubFetcher{urls: []string{"https://example.com/a"}}).
		Processor(blockingProcessor{release: release}).
		Writer(stubWriter{dir: s.dir}))

	id, err := m.Submit(s.ctx, "https://example.com/sitemap.xml")
	s.Require().NoError(err)

	_, err = m.Download(s.ctx, id)
	s.Require().ErrorIs(err, ErrTaskNotReady)
}

type blockingProcessor struct {
	release chan struct{}
}

func (p blockingProcessor) Process(_ context.Context, urls []string, _ int, _ string) ([]inspector.Result, error) {
	<-p.release
	return make([]inspector.Result, len(urls)), nil
}

func (s *ManagerSuite) TestDownloadUnknownTask() {
	m := s.newManager(nil)
	_, err := m.Download(s.ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	s.Require().ErrorIs(err, ErrTaskNotFound)
}

func (s *ManagerSuite) TestDownloadArtifactGone() {
	m := s.newManager(nil)

	id, err := m.Submit(s.ctx, "https://example.com/sitemap.xml")
	s.Require().NoError(err)
	st := s.waitTerminal(m, id)
	s.Require().Equal(taskstore.StatusCompleted, st.Status)

	s.Require().NoError(os.Remove(st.File))

	_, err = m.Download(s.ctx, id)
	s.Require().ErrorIs(err, ErrArtifactMissing)
}

func (s *ManagerSuite) TestPipelineFetchFailure() {
	m := s.newManager(Configure().
		Fetcher(stubFetcher{err: errors.New("sitemap unreachable")}).
		Processor(stubProcessor{store: s.store, ttl: time.Minute}).
		Writer(stubWriter{dir: s.dir}))

	id, err := m.Submit(s.ctx, "https://example.com/sitemap.xml")
	s.Require().NoError(err)

	st := s.waitTerminal(m, id)
	s.Require().Equal(taskstore.StatusError, st.Status)
	s.Contains(st.Error, "sitemap unreachable")
	s.Empty(st.File)

	_, err = m.Download(s.ctx, id)
	s.Require().ErrorIs(err, ErrTaskNotReady)

	// no artifact left behind
	entries, err := ioutil.ReadDir(s.dir)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *ManagerSuite) TestPipelineWriterFailure() {
	m := s.newManager(Configure().
		Fetcher(stubFetcher{urls: []string{"https://example.com/a"}}).
		Processor(stubProcessor{store: s.store, ttl: time.Minute}).
		Writer(stubWriter{err: errors.New("disk full")}))

	id, err := m.Submit(s.ctx, "https://example.com/sitemap.xml")
	s.Require().NoError(err)

	st := s.waitTerminal(m, id)
	s.Require().Equal(taskstore.StatusError, st.Status)
	s.Contains(st.Error, "disk full")
}

func (s *ManagerSuite) TestProgressNonDecreasing() {
	m := s.newManager(Configure().
		Fetcher(stubFetcher{urls: []string{"a", "b", "c", "d", "e"}}).
		Processor(stubProcessor{store: s.store, ttl: time.Minute}).
		Writer(stubWriter{dir: s.dir}))

	id, err := m.Submit(s.ctx, "https://example.com/sitemap.xml")
	s.Require().NoError(err)

	last := -1
	s.Require().Eventually(func() bool {
		st, err := m.Status(s.ctx, id)
		if err != nil {
			return false
		}
		if st.Status == taskstore.StatusProcessing {
			s.GreaterOrEqual(st.Progress, last)
			last = st.Progress
		}
		return st.Status == taskstore.StatusCompleted
	}, 5*time.Second, time.Millisecond)
}

func (s *ManagerSuite) TestTerminalWriteAfterExpiry() {
	// TTL so short the record is gone before the pipeline finishes
	m := s.newManager(Configure().
		TTL(20 * time.Millisecond).
		Fetcher(stubFetcher{urls: []string{"https://example.com/a"}}).
		Processor(slowProcessor{delay: 100 * time.Millisecond}).
		Writer(stubWriter{dir: s.dir}))

	id, err := m.Submit(s.ctx, "https://example.com/sitemap.xml")
	s.Require().NoError(err)

	// the pipeline still writes its artifact, but the record is not
	// resurrected: the task reads as never having existed
	s.Require().Eventually(func() bool {
		entries, _ := ioutil.ReadDir(s.dir)
		return len(entries) == 1
	}, 5*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	_, err = m.Status(s.ctx, id)
	s.Require().ErrorIs(err, ErrTaskNotFound)
}

type slowProcessor struct {
	delay time.Duration
}

func (p slowProcessor) Process(_ context.Context, urls []string, _ int, _ string) ([]inspector.Result, error) {
	time.Sleep(p.delay)
	return make([]inspector.Result, len(urls)), nil
}
