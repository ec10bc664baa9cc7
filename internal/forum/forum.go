// Package forum scrapes thread listings and comment text from the condominium board.
package forum

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"threadpromo/internal/config"
	"threadpromo/internal/logging"
	"threadpromo/internal/model"
	"threadpromo/internal/util"
)

var threadHref = regexp.MustCompile(`/bbs/thread/(\d+)/`)

type Client struct {
	http      *http.Client
	base      string
	board     string
	maxPages  int
	postPages int
	delay     time.Duration
	userAgent string
}

func New(cfg config.ForumConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		http:      hc,
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		board:     cfg.Board,
		maxPages:  cfg.MaxPages,
		postPages: cfg.PostPages,
		delay:     cfg.PageDelay,
		userAgent: cfg.UserAgent,
	}
}

// ThreadURL is the canonical url of a thread id.
func (c *Client) ThreadURL(id string) string { return fmt.Sprintf("%s/bbs/thread/%s/", c.base, id) }

// FetchThreads walks the listing pages. A failing page is logged and skipped.
func (c *Client) FetchThreads(ctx context.Context) ([]model.ThreadRecord, error) {
	var out []model.ThreadRecord
	seen := map[string]bool{}
	var lastErr error
	okPages := 0
	for page := 1; page <= c.maxPages; page++ {
		u := fmt.Sprintf("%s/bbs/board/%s/?page=%d", c.base, c.board, page)
		body, err := c.get(ctx, u)
		if err != nil {
			if ctx.Err() != nil { return out, ctx.Err() }
			logging.Warn("listing_page_failed", map[string]any{"page": page, "error": err.Error()})
			lastErr = err
			continue
		}
		recs, err := ParseListing(body, c.ThreadURL)
		body.Close()
		if err != nil {
			logging.Warn("listing_parse_failed", map[string]any{"page": page, "error": err.Error()})
			lastErr = err
			continue
		}
		okPages++
		for _, r := range recs {
			if seen[r.ID] { continue }
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	if okPages == 0 && lastErr != nil {
		return nil, fmt.Errorf("no listing page could be read: %w", lastErr)
	}
	return out, nil
}

// ParseListing extracts thread records from one listing page. Items without a numeric
// id or count are skipped.
func ParseListing(r io.Reader, threadURL func(id string) string) ([]model.ThreadRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil { return nil, err }
	var out []model.ThreadRecord
	doc.Find("a.component_thread_list_item").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := threadHref.FindStringSubmatch(href)
		if m == nil { return }
		count, err := strconv.Atoi(strings.TrimSpace(s.Find("span.num_of_item").First().Text()))
		if err != nil { return }
		out = append(out, model.ThreadRecord{
			URL:           threadURL(m[1]),
			ID:            m[1],
			Title:         strings.TrimSpace(s.Find("div.oneliner.title").First().Text()),
			ActivityCount: count,
		})
	})
	return out, nil
}

// FetchText joins the comment bodies of the first pages of a thread, one comment per line.
// Pages that fail are skipped. When no page carries comment markup the first page is run
// through readability instead.
func (c *Client) FetchText(ctx context.Context, threadURL string) (string, error) {
	m := threadHref.FindStringSubmatch(threadURL)
	if m == nil { return "", fmt.Errorf("not a thread url: %s", threadURL) }
	var posts []string
	var first []byte
	var firstURL string
	for p := 1; p <= c.postPages; p++ {
		if p > 1 {
			if err := c.wait(ctx); err != nil { return "", err }
		}
		u := fmt.Sprintf("%s/bbs/thread/%s/?page=%d", c.base, m[1], p)
		body, err := c.get(ctx, u)
		if err != nil {
			if ctx.Err() != nil { return "", ctx.Err() }
			logging.Debug("thread_page_failed", map[string]any{"url": u, "error": err.Error()})
			continue
		}
		raw, err := io.ReadAll(body)
		body.Close()
		if err != nil { continue }
		if first == nil { first, firstURL = raw, u }
		posts = append(posts, ParseComments(raw)...)
	}
	if len(posts) == 0 && first != nil {
		if t := ReadableText(first, firstURL); t != "" {
			logging.Debug("thread_readability_fallback", map[string]any{"url": firstURL})
			return t, nil
		}
	}
	return strings.Join(posts, "\n"), nil
}

// ParseComments returns the comment texts on one thread page.
func ParseComments(raw []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil { return nil }
	var posts []string
	doc.Find(`p[itemprop="commentText"]`).Each(func(_ int, s *goquery.Selection) {
		if t := util.NormalizeWhitespace(s.Text()); t != "" {
			posts = append(posts, t)
		}
	})
	return posts
}

// ReadableText extracts the main text of a page that has no comment markup.
func ReadableText(raw []byte, pageURL string) string {
	parsed, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(raw), parsed)
	if err != nil { return "" }
	return util.NormalizeWhitespace(article.TextContent)
}

func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 { return nil }
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) get(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil { return nil, err }
	if c.userAgent != "" { req.Header.Set("User-Agent", c.userAgent) }
	resp, err := c.http.Do(req)
	if err != nil { return nil, err }
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	return resp.Body, nil
}
