package sitemap

import (
	"context"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// MaxURLs caps how many target URLs a single task will take on.
// Matches the sitemap protocol limit for a single sitemap file.
const MaxURLs = 50000

var (
	ErrEmptySitemap = errors.New("sitemap contains no URLs")
	ErrNotSitemap   = errors.New("document is not a sitemap")
)

type urlsetXML struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapindexXML struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Fetcher resolves a sitemap URL into the ordered list of page URLs it lists.
// A sitemap index is followed one level deep.
type Fetcher struct {
	*Configuration
}

type Configuration struct {
	client  *http.Client
	maxURLs int
}

func Configure() *Configuration {
	return &Configuration{
		maxURLs: MaxURLs,
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				Dial: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 60 * time.Second,
				}).Dial,
				TLSHandshakeTimeout:   30 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
			},
		},
	}
}

func (c *Configuration) Client(client *http.Client) *Configuration {
	c.client = client
	return c
}

func (c *Configuration) MaxURLs(max int) *Configuration {
	c.maxURLs = max
	return c
}

func NewFetcher(cfg *Configuration) *Fetcher {
	if cfg == nil {
		cfg = Configure()
	}
	return &Fetcher{Configuration: cfg}
}

// Fetch retrieves the sitemap and returns the page URLs it lists, in document
// order, capped at MaxURLs. An index sitemap has each of its child sitemaps
// fetched in turn (no deeper recursion).
func (f *Fetcher) Fetch(ctx context.Context, sitemapURL string) ([]string, error) {
	urls, children, err := f.fetchOne(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		if len(urls) >= f.maxURLs {
			break
		}
		childURLs, _, err := f.fetchOne(ctx, child)
		if err != nil {
			logger.Warnw("skipping child sitemap", "url", child, "err", err)
			continue
		}
		urls = append(urls, childURLs...)
	}

	if len(urls) == 0 {
		return nil, ErrEmptySitemap
	}
	if len(urls) > f.maxURLs {
		urls = urls[:f.maxURLs]
	}
	logger.Infow("sitemap fetched", "url", sitemapURL, "urls", len(urls))
	return urls, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, sitemapURL string) ([]string, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building sitemap request")
	}
	res, err := f.client.Do(req)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "fetching sitemap %v", sitemapURL)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, nil, errors.Errorf("sitemap %v returned HTTP %v", sitemapURL, res.StatusCode)
	}

	return parse(res.Body)
}

// parse reads a sitemap document, returning page URLs for a urlset and child
// sitemap locations for a sitemapindex.
func parse(r io.Reader) ([]string, []string, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, nil, ErrNotSitemap
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "parsing sitemap")
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "urlset":
			var us urlsetXML
			if err := dec.DecodeElement(&us, &start); err != nil {
				return nil, nil, errors.Wrap(err, "parsing urlset")
			}
			urls := make([]string, 0, len(us.URLs))
			for _, u := range us.URLs {
				if u.Loc != "" {
					urls = append(urls, u.Loc)
				}
			}
			return urls, nil, nil
		case "sitemapindex":
			var si sitemapindexXML
			if err := dec.DecodeElement(&si, &start); err != nil {
				return nil, nil, errors.Wrap(err, "parsing sitemapindex")
			}
			children := make([]string, 0, len(si.Sitemaps))
			for _, sm := range si.Sitemaps {
				if sm.Loc != "" {
					children = append(children, sm.Loc)
				}
			}
			return nil, children, nil
		default:
			return nil, nil, ErrNotSitemap
		}
	}
}
