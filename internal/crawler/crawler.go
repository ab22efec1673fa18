package crawler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"ragdocs-api/internal/logger"
)

var httpTransport = &http.Transport{
	DisableCompression: false,
}

// Config holds the parameters for one crawl job.
type Config struct {
	URL            string
	MaxPages       int
	AllowedDomains []string
	FollowLinks    bool
	Timeout        time.Duration
	Delay          time.Duration
}

// Page is one fetched page with its body decoded to UTF-8 HTML. Extraction
// into plain text happens downstream.
type Page struct {
	URL        string
	Title      string
	HTML       []byte
	StatusCode int
	CrawledAt  time.Time
}

// Result summarizes a finished crawl.
type Result struct {
	URL          string
	Pages        []Page
	PagesCrawled int
}

// normalizeURL canonicalizes a URL for duplicate detection: no fragment,
// lowercase scheme and host, no trailing slash, no default ports.
func normalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	parsed.Fragment = ""

	path := parsed.Path
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimSuffix(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.Path = path

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	if (parsed.Port() == "80" && parsed.Scheme == "http") ||
		(parsed.Port() == "443" && parsed.Scheme == "https") {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}

	return parsed.String(), nil
}

// Crawl fetches a documentation site starting from cfg.URL. Each crawl gets
// a fresh collector so no state leaks between jobs.
func Crawl(cfg Config) (*Result, error) {
	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "https"
		cfg.URL = parsedURL.String()
	}

	allowedDomains := cfg.AllowedDomains
	if len(allowedDomains) == 0 {
		hostname := strings.ToLower(parsedURL.Hostname())
		if hostname != "" {
			bare := strings.TrimPrefix(hostname, "www.")
			allowedDomains = []string{bare, "www." + bare}
		}
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 25
	}

	options := []colly.CollectorOption{
		colly.Async(true),
		colly.MaxDepth(2),
	}
	if len(allowedDomains) > 0 {
		options = append(options, colly.AllowedDomains(allowedDomains...))
	}

	c := colly.NewCollector(options...)
	c.WithTransport(httpTransport)
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	} else {
		c.SetRequestTimeout(60 * time.Second)
	}
	c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	delay := cfg.Delay
	if delay == 0 {
		delay = time.Second
	}
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       delay,
	})

	result := &Result{URL: cfg.URL}
	var (
		pagesMu   sync.Mutex
		processed sync.Map
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			return
		}

		// Go's transport decompresses gzip transparently but not brotli.
		var bodyReader io.Reader = bytes.NewReader(r.Body)
		if strings.Contains(r.Headers.Get("Content-Encoding"), "br") {
			if decompressed, err := io.ReadAll(brotli.NewReader(bodyReader)); err == nil {
				r.Body = decompressed
				bodyReader = bytes.NewReader(decompressed)
			}
		}

		// Decode whatever charset the page declares into UTF-8.
		if len(r.Body) > 0 {
			if utf8Reader, err := charset.NewReader(bodyReader, contentType); err == nil {
				if decoded, readErr := io.ReadAll(utf8Reader); readErr == nil && len(decoded) > 0 {
					r.Body = decoded
				}
			}
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		pagesMu.Lock()
		defer pagesMu.Unlock()

		if len(result.Pages) >= maxPages {
			return
		}

		normalized, err := normalizeURL(e.Request.URL.String())
		if err != nil {
			return
		}
		if _, seen := processed.LoadOrStore(normalized, true); seen {
			return
		}

		result.Pages = append(result.Pages, Page{
			URL:        normalized,
			Title:      strings.TrimSpace(e.DOM.Find("title").First().Text()),
			HTML:       append([]byte(nil), e.Response.Body...),
			StatusCode: e.Response.StatusCode,
			CrawledAt:  time.Now().UTC(),
		})
	})

	if cfg.FollowLinks {
		c.OnHTML("a[href]", func(e *colly.HTMLElement) {
			pagesMu.Lock()
			full := len(result.Pages) >= maxPages
			pagesMu.Unlock()
			if full {
				return
			}
			link := e.Request.AbsoluteURL(e.Attr("href"))
			if link == "" {
				return
			}
			if normalized, err := normalizeURL(link); err == nil {
				if _, seen := processed.Load(normalized); seen {
					return
				}
			}
			e.Request.Visit(link)
		})
	}

	c.OnError(func(r *colly.Response, err error) {
		logger.Warn("Crawl request failed", "url", r.Request.URL.String(), "error", err)
	})

	if err := c.Visit(cfg.URL); err != nil {
		return nil, fmt.Errorf("failed to start crawl: %w", err)
	}
	c.Wait()

	result.PagesCrawled = len(result.Pages)
	if result.PagesCrawled == 0 {
		return nil, fmt.Errorf("no pages could be crawled from %s", cfg.URL)
	}
	return result, nil
}
