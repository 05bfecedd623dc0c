// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"fmt"
	"sync"
	"time"

	"github.com/maltedev/sku-scraper/internal/browser"
)

// Content is what a fake URL renders. Selectors absent from both maps time
// out like an element that never appears.
type Content struct {
	Text   map[string]string
	HTML   map[string]string
	Errors map[string]error
}

type Wait struct {
	URL      string
	Selector string
	Timeout  time.Duration
}

type FakePage struct {
	mu       sync.Mutex
	pages    map[string]Content
	gotoErrs map[string]error
	current  string
	visited  []string
	waits    []Wait
}

func NewFakePage() *FakePage {
	return &FakePage{
		pages:    make(map[string]Content),
		gotoErrs: make(map[string]error),
	}
}

func (f *FakePage) Serve(url string, c Content) *FakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = c
	return f
}

func (f *FakePage) FailNavigation(url string, err error) *FakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotoErrs[url] = err
	return f
}

func (f *FakePage) Goto(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.visited = append(f.visited, url)
	if err, ok := f.gotoErrs[url]; ok {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	f.current = url
	return nil
}

func (f *FakePage) WaitText(selector string, timeout time.Duration) (string, error) {
	return f.lookup(selector, timeout, func(c Content) (string, bool) {
		v, ok := c.Text[selector]
		return v, ok
	})
}

func (f *FakePage) WaitInnerHTML(selector string, timeout time.Duration) (string, error) {
	return f.lookup(selector, timeout, func(c Content) (string, bool) {
		v, ok := c.HTML[selector]
		return v, ok
	})
}

func (f *FakePage) lookup(selector string, timeout time.Duration, get func(Content) (string, bool)) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.waits = append(f.waits, Wait{URL: f.current, Selector: selector, Timeout: timeout})

	c := f.pages[f.current]
	if err, ok := c.Errors[selector]; ok {
		return "", err
	}
	if v, ok := get(c); ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", browser.ErrTimeout, selector)
}

func (f *FakePage) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visited...)
}

func (f *FakePage) Waits() []Wait {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Wait(nil), f.waits...)
}
