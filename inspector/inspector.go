package inspector

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seocheck/headchecker/internal/metrics"
	"github.com/seocheck/headchecker/pkg/logging"
	"github.com/seocheck/headchecker/pkg/logging/zapadapter"
	"github.com/seocheck/headchecker/taskstore"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

const (
	DefaultConcurrency = 5

	userAgent = "headchecker/1.0 (+https://github.com/seocheck/headchecker)"

	// how much of a page body is read looking for the closing </head>
	maxBodyBytes = 1 << 20
)

// Processor inspects the head section of every target URL, fanning the work
// out across a goroutine pool and reporting progress into the task store.
type Processor struct {
	*Configuration
}

type Configuration struct {
	store  taskstore.Store
	client *http.Client
	log    logging.KVLogger
	ttl    time.Duration
}

func Configure() *Configuration {
	return &Configuration{
		log: zapadapter.NewKV(nil),
		ttl: taskstore.DefaultTTL,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Dial: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).Dial,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				MaxIdleConnsPerHost:   DefaultConcurrency,
			},
		},
	}
}

func (c *Configuration) Store(s taskstore.Store) *Configuration {
	c.store = s
	return c
}

func (c *Configuration) Client(client *http.Client) *Configuration {
	c.client = client
	return c
}

func (c *Configuration) TTL(ttl time.Duration) *Configuration {
	c.ttl = ttl
	return c
}

func (c *Configuration) Logger(l logging.KVLogger) *Configuration {
	c.log = l
	return c
}

func NewProcessor(cfg *Configuration) *Processor {
	if cfg == nil {
		cfg = Configure()
	}
	return &Processor{Configuration: cfg}
}

// Process inspects urls with up to concurrency parallel fetches, keeping the
// task record at taskID updated with monotone progress. Per-URL failures are
// recorded in their Result, not raised. The returned slice preserves input
// order. Progress reaches 100 before Process returns.
func (p *Processor) Process(ctx context.Context, urls []string, concurrency int, taskID string) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	total := len(urls)
	if total == 0 {
		return nil, errors.New("no URLs to process")
	}

	p.reportProgress(ctx, taskID, 0, new(progressWatermark))

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, errors.Wrap(err, "creating inspection pool")
	}
	defer pool.Release()

	var (
		wg        sync.WaitGroup
		done      int64
		watermark progressWatermark
	)
	results := make([]Result, total)

	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i] = p.inspect(ctx, u)
			n := atomic.AddInt64(&done, 1)
			p.reportProgress(ctx, taskID, int(n*100/int64(total)), &watermark)
		})
		if err != nil {
			wg.Done()
			results[i] = Result{URL: u, Err: err.Error()}
			// still counts towards completion, or progress stalls short of 100
			n := atomic.AddInt64(&done, 1)
			p.reportProgress(ctx, taskID, int(n*100/int64(total)), &watermark)
		}
	}
	wg.Wait()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return results, nil
}

// progressWatermark keeps progress reports monotone when pool workers finish
// out of order.
type progressWatermark struct {
	mu   sync.Mutex
	last int
	gone bool
}

func (p *Processor) reportProgress(ctx context.Context, taskID string, pct int, w *progressWatermark) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gone || (pct <= w.last && pct != 0) {
		return
	}
	err := p.store.Update(ctx, taskID, p.ttl,
		taskstore.WithStatus(taskstore.StatusProcessing),
		taskstore.WithProgress(pct),
	)
	if errors.Is(err, taskstore.ErrNotFound) {
		// The record expired mid-run. Inspection carries on, but there is
		// no point hammering the store for the rest of the task.
		w.gone = true
		p.log.Warn("task record is gone, progress reporting stopped", "task_id", taskID)
		return
	}
	if err != nil {
		p.log.Error("progress update failed", "task_id", taskID, "err", err)
		return
	}
	w.last = pct
}

func (p *Processor) inspect(ctx context.Context, pageURL string) Result {
	r := Result{URL: pageURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		r.Err = err.Error()
		return r
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := p.client.Do(req)
	if err != nil {
		r.Err = err.Error()
		metrics.URLInspectionErrors.Inc()
		return r
	}
	defer res.Body.Close()

	r.StatusCode = res.StatusCode
	parseHead(&r, res)
	metrics.URLsInspected.Inc()
	return r
}

// parseHead tokenizes the page until the head section ends, filling r with
// whatever head elements it finds.
func parseHead(r *Result, res *http.Response) {
	z := html.NewTokenizer(io.LimitReader(res.Body, maxBodyBytes))
	inTitle := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return
		case html.TextToken:
			if inTitle {
				r.Title = strings.TrimSpace(string(z.Text()))
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			switch t.Data {
			case "title":
				inTitle = tt == html.StartTagToken
			case "meta":
				inspectMeta(r, t)
			case "link":
				inspectLink(r, t)
			case "body":
				// no head section worth speaking of
				return
			}
		case html.EndTagToken:
			t := z.Token()
			if t.Data == "title" {
				inTitle = false
			}
			if t.Data == "head" {
				return
			}
		}
	}
}

func inspectMeta(r *Result, t html.Token) {
	var name, property, content string
	for _, a := range t.Attr {
		switch a.Key {
		case "name":
			name = strings.ToLower(a.Val)
		case "property":
			property = strings.ToLower(a.Val)
		case "content":
			content = a.Val
		case "charset":
			r.HasCharset = true
		}
	}
	switch name {
	case "description":
		r.MetaDescription = content
	case "robots":
		r.MetaRobots = content
	case "viewport":
		r.HasViewport = true
	}
	if strings.HasPrefix(property, "og:") {
		r.OpenGraphTags++
	}
	if strings.HasPrefix(name, "twitter:") || strings.HasPrefix(property, "twitter:") {
		r.TwitterTags++
	}
}

func inspectLink(r *Result, t html.Token) {
	var rel, href, hreflang string
	for _, a := range t.Attr {
		switch a.Key {
		case "rel":
			rel = strings.ToLower(a.Val)
		case "href":
			href = a.Val
		case "hreflang":
			hreflang = a.Val
		}
	}
	switch rel {
	case "canonical":
		r.Canonical = href
	case "icon", "shortcut icon", "apple-touch-icon":
		r.HasFavicon = true
	case "alternate":
		if hreflang != "" {
			r.HreflangCount++
		}
	}
}
