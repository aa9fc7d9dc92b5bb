package inspector

// Result is the head-section report for a single page. One is produced per
// target URL regardless of outcome; fetch failures carry Err and nothing else.
type Result struct {
	URL             string
	StatusCode      int
	Err             string
	Title           string
	MetaDescription string
	Canonical       string
	MetaRobots      string
	HasViewport     bool
	HasCharset      bool
	HasFavicon      bool
	OpenGraphTags   int
	TwitterTags     int
	HreflangCount   int
}
