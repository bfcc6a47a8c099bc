package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"

	"apt_scrooper/config"
	"apt_scrooper/httputil"
)

// ErrBrowserLaunch is the one failure that stops a provider's run.
var ErrBrowserLaunch = errors.New("browser failed to launch")

// Page is a rendered document.
type Page struct {
	URL  string
	HTML string
}

// Renderer turns a URL into markup. waitFor lists selectors for content
// injected after load; waiting on them is bounded and a timeout is not an
// error.
type Renderer interface {
	Start(ctx context.Context) error
	Render(ctx context.Context, pageURL string, waitFor []string) (*Page, error)
	Close()
}

func NewRenderer(mode string, cfg config.ScraperConfig, clients *httputil.Clients, queue *httputil.HostQueue, log *logrus.Logger) Renderer {
	if mode == "http" {
		return NewHTTPRenderer(clients.Fetch, queue)
	}
	return NewPlaywrightRenderer(cfg, queue, log)
}

// PlaywrightRenderer drives one persistent Chromium context and reuses a
// single page for every render.
type PlaywrightRenderer struct {
	cfg   config.ScraperConfig
	queue *httputil.HostQueue
	log   *logrus.Logger

	mu          sync.Mutex
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	page        playwright.Page
	initialized bool
}

func NewPlaywrightRenderer(cfg config.ScraperConfig, queue *httputil.HostQueue, log *logrus.Logger) *PlaywrightRenderer {
	return &PlaywrightRenderer{cfg: cfg, queue: queue, log: log}
}

func (r *PlaywrightRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	var err error
	r.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("%w: start playwright: %v", ErrBrowserLaunch, err)
	}

	userDataDir := r.cfg.UserDataDir
	if !filepath.IsAbs(userDataDir) {
		cwd, _ := os.Getwd()
		userDataDir = filepath.Join(cwd, userDataDir)
	}

	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(r.cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}
	if r.cfg.UserAgent != "" {
		opts.UserAgent = playwright.String(r.cfg.UserAgent)
	}
	if r.cfg.ProxyURL != "" {
		opts.Proxy = &playwright.Proxy{Server: r.cfg.ProxyURL}
	}

	r.context, err = r.pw.Chromium.LaunchPersistentContext(userDataDir, opts)
	if err != nil {
		r.pw.Stop()
		return fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}

	r.page, err = r.context.NewPage()
	if err != nil {
		r.context.Close()
		r.pw.Stop()
		return fmt.Errorf("%w: new page: %v", ErrBrowserLaunch, err)
	}

	r.initialized = true
	return nil
}

func (r *PlaywrightRenderer) Render(ctx context.Context, pageURL string, waitFor []string) (*Page, error) {
	if err := r.queue.Wait(ctx, pageURL); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, fmt.Errorf("renderer not started")
	}

	resp, err := r.page.Goto(pageURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(r.cfg.NavTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if resp != nil && resp.Status() >= 400 {
		return nil, fmt.Errorf("navigate: status %d", resp.Status())
	}

	if len(waitFor) > 0 {
		err := r.page.Locator(strings.Join(waitFor, ", ")).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(float64(r.cfg.PopupWait.Milliseconds())),
		})
		if err != nil {
			r.log.WithFields(logrus.Fields{"url": pageURL}).Debug("No popup content within wait window")
		}
	}

	html, err := r.page.Content()
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return &Page{URL: r.page.URL(), HTML: html}, nil
}

func (r *PlaywrightRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.page != nil {
		r.page.Close()
		r.page = nil
	}
	if r.context != nil {
		r.context.Close()
		r.context = nil
	}
	if r.pw != nil {
		r.pw.Stop()
		r.pw = nil
	}
	r.initialized = false
}

// HTTPRenderer fetches static markup. Sites that render everything server
// side don't need a browser.
type HTTPRenderer struct {
	client *resty.Client
	queue  *httputil.HostQueue
}

func NewHTTPRenderer(client *resty.Client, queue *httputil.HostQueue) *HTTPRenderer {
	return &HTTPRenderer{client: client, queue: queue}
}

func (r *HTTPRenderer) Start(context.Context) error { return nil }

func (r *HTTPRenderer) Render(ctx context.Context, pageURL string, _ []string) (*Page, error) {
	if err := r.queue.Wait(ctx, pageURL); err != nil {
		return nil, err
	}
	resp, err := r.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("navigate: status %d", resp.StatusCode())
	}
	final := pageURL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		final = resp.RawResponse.Request.URL.String()
	}
	return &Page{URL: final, HTML: resp.String()}, nil
}

func (r *HTTPRenderer) Close() {}
