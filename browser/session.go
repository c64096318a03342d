package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Loader fetches a rendered page once anchor is present in the DOM.
type Loader interface {
	Load(ctx context.Context, url, anchor string) (*goquery.Document, error)
}

// Session is a browser lease for one scrape cycle.
type Session interface {
	Loader
	Release()
}

// PlaywrightSession is one running browser. It is not safe for concurrent
// Loads; the orchestrator drives it sequentially.
type PlaywrightSession struct {
	pw            *playwright.Playwright
	browser       playwright.Browser
	limiter       *rate.Limiter
	navTimeout    time.Duration
	anchorTimeout time.Duration
	log           *zap.Logger

	releaseOnce sync.Once
}

func newSession(b playwright.Browser, limiter *rate.Limiter, nav, anchor time.Duration, log *zap.Logger) *PlaywrightSession {
	return &PlaywrightSession{
		browser:       b,
		limiter:       limiter,
		navTimeout:    nav,
		anchorTimeout: anchor,
		log:           log,
	}
}

// Load opens a fresh page, navigates to url and waits for anchor. Navigation
// errors, non-2xx responses and anchor timeouts all return ErrNoData. The
// page is always closed, also when ctx is cancelled mid-wait.
func (s *PlaywrightSession) Load(ctx context.Context, url, anchor string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	page, err := s.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	var closeOnce sync.Once
	closePage := func() {
		closeOnce.Do(func() {
			if err := page.Close(); err != nil {
				s.log.Debug("close page", zap.Error(err))
			}
		})
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		closePage()
	}()
	go func() {
		select {
		case <-ctx.Done():
			closePage()
		case <-done:
		}
	}()

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(s.navTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: navigate %s: %v", ErrNoData, url, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: navigate %s: no response", ErrNoData, url)
	}
	if status := resp.Status(); status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: navigate %s: status %d", ErrNoData, url, status)
	}

	_, err = page.WaitForSelector(anchor, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(s.anchorTimeout.Milliseconds())),
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: wait for %q on %s: %v", ErrNoData, anchor, url, err)
	}

	html, err := page.Content()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrNoData, url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// Release closes the browser and stops the driver. Safe to call more than once.
func (s *PlaywrightSession) Release() {
	s.releaseOnce.Do(func() {
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				s.log.Warn("close browser", zap.Error(err))
			}
		}
		if s.pw != nil {
			if err := s.pw.Stop(); err != nil {
				s.log.Warn("stop playwright", zap.Error(err))
			}
		}
	})
}
