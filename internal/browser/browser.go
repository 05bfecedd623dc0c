package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrTimeout reports that an element did not show up within its wait bound.
var ErrTimeout = errors.New("element wait timed out")

// minRead is the floor for reading an element that was already attached when
// the field's wait bound ran out. Playwright treats a zero timeout as none.
const minRead = 50 * time.Millisecond

// Page is the part of a browser tab the extractor drives.
type Page interface {
	Goto(url string) error
	WaitText(selector string, timeout time.Duration) (string, error)
	WaitInnerHTML(selector string, timeout time.Duration) (string, error)
}

type Options struct {
	Headless          bool
	ExecutablePath    string
	InstallDriver     bool
	NavigationTimeout time.Duration
	UserAgent         string
	Locale            string
	ViewportWidth     int
	ViewportHeight    int
	Args              []string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		ExecutablePath:    "/usr/bin/chromium",
		NavigationTimeout: 30 * time.Second,
		Locale:            "es-MX",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
		},
	}
}

// Session is one headless browser with a single tab, reused for every
// navigation until Close.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    *Options
	logger  *slog.Logger
	lost    atomic.Bool
}

func Open(opts *Options) (*Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	if opts.InstallDriver {
		if err := playwright.Install(&playwright.RunOptions{
			SkipInstallBrowsers: opts.ExecutablePath != "",
		}); err != nil {
			return nil, fmt.Errorf("failed to install playwright driver: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultNavigationTimeout(float64(opts.NavigationTimeout.Milliseconds()))

	s := &Session{
		pw:      pw,
		browser: browser,
		context: context,
		page:    page,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}
	browser.OnDisconnected(func(playwright.Browser) {
		s.logger.Warn("browser disconnected")
		s.lost.Store(true)
	})
	return s, nil
}

// Lost reports whether the browser behind the session died. A lost session
// fails every call and has to be replaced.
func (s *Session) Lost() bool {
	return s.lost.Load()
}

func (s *Session) Goto(url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds())),
	})
	if err != nil {
		if isDisconnect(err) {
			s.lost.Store(true)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitText waits until the first element matching selector is attached to
// the DOM and returns its rendered text.
func (s *Session) WaitText(selector string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	loc, err := s.waitAttached(selector, timeout)
	if err != nil {
		return "", err
	}

	text, err := loc.InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(float64(remaining(deadline, time.Now()).Milliseconds())),
	})
	if err != nil {
		return "", waitError(selector, err)
	}
	return text, nil
}

func (s *Session) WaitInnerHTML(selector string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	loc, err := s.waitAttached(selector, timeout)
	if err != nil {
		return "", err
	}

	inner, err := loc.InnerHTML(playwright.LocatorInnerHTMLOptions{
		Timeout: playwright.Float(float64(remaining(deadline, time.Now()).Milliseconds())),
	})
	if err != nil {
		return "", waitError(selector, err)
	}
	return inner, nil
}

func (s *Session) waitAttached(selector string, timeout time.Duration) (playwright.Locator, error) {
	loc := s.page.Locator(selector).First()
	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, waitError(selector, err)
	}
	return loc, nil
}

func (s *Session) Close() error {
	var errs []error

	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

// remaining is what is left of a field's wait bound for reading the element,
// never less than minRead.
func remaining(deadline, now time.Time) time.Duration {
	if left := deadline.Sub(now); left > minRead {
		return left
	}
	return minRead
}

func isDisconnect(err error) bool {
	if errors.Is(err, playwright.ErrTargetClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "has been closed") ||
		strings.Contains(msg, "Target closed") ||
		strings.Contains(msg, "disconnected")
}

func waitError(selector string, err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s", ErrTimeout, selector)
	}
	return fmt.Errorf("failed to wait for %s: %w", selector, err)
}
