package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"f2_scrooper/config"
)

var (
	// ErrNoData means the page for a season could not be loaded or never showed
	// its anchor. Walkers treat it as the end of the available seasons.
	ErrNoData = errors.New("no data")
	// ErrLaunch means no browser could be started. The whole cycle fails.
	ErrLaunch = errors.New("browser launch failed")
)

// Provider hands out browser sessions, one per scrape cycle.
type Provider interface {
	Acquire(ctx context.Context) (Session, error)
}

type PlaywrightProvider struct {
	cfg     config.BrowserConfig
	log     *zap.Logger
	limiter *rate.Limiter

	installOnce sync.Once
	installErr  error
}

func NewProvider(cfg config.BrowserConfig, log *zap.Logger) *PlaywrightProvider {
	return &PlaywrightProvider{
		cfg:     cfg,
		log:     log.Named("browser"),
		limiter: NewPageLimiter(cfg.PageRatePerMin),
	}
}

// NewPageLimiter spaces navigations evenly at perMinute pages per minute.
func NewPageLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// LaunchArgs returns the chromium flags for mode.
func LaunchArgs(mode string) []string {
	args := []string{"--no-sandbox", "--disable-setuid-sandbox"}
	if mode == config.BrowserModeManaged {
		args = append(args,
			"--single-process",
			"--no-zygote",
			"--disable-dev-shm-usage",
			"--disable-gpu",
		)
	}
	return args
}

func (p *PlaywrightProvider) runOptions() *playwright.RunOptions {
	return &playwright.RunOptions{
		DriverDirectory: p.cfg.DriverDir,
		Browsers:        []string{"chromium"},
	}
}

func (p *PlaywrightProvider) install() error {
	p.installOnce.Do(func() {
		start := time.Now()
		p.installErr = playwright.Install(p.runOptions())
		if p.installErr == nil {
			p.log.Info("chromium installed", zap.Duration("took", time.Since(start)))
		}
	})
	return p.installErr
}

// Acquire starts the playwright driver and a browser. Failures are wrapped in
// ErrLaunch and are not retried here.
func (p *PlaywrightProvider) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	managed := p.cfg.Mode == config.BrowserModeManaged
	if managed && p.cfg.WSEndpoint == "" {
		if err := p.install(); err != nil {
			return nil, fmt.Errorf("%w: install chromium: %v", ErrLaunch, err)
		}
	}

	pw, err := playwright.Run(p.runOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: start playwright: %v", ErrLaunch, err)
	}

	var b playwright.Browser
	if managed && p.cfg.WSEndpoint != "" {
		b, err = pw.Chromium.Connect(p.cfg.WSEndpoint, playwright.BrowserTypeConnectOptions{
			Timeout: playwright.Float(float64(p.cfg.NavTimeout.Milliseconds())),
		})
	} else {
		b, err = pw.Chromium.Launch(p.launchOptions())
	}
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	p.log.Info("browser started", zap.String("mode", p.cfg.Mode), zap.String("version", b.Version()))

	s := newSession(b, p.limiter, p.cfg.NavTimeout, p.cfg.AnchorTimeout, p.log)
	s.pw = pw
	return s, nil
}

func (p *PlaywrightProvider) launchOptions() playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args:     LaunchArgs(p.cfg.Mode),
	}
	if p.cfg.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(p.cfg.ExecutablePath)
	}
	if p.cfg.ProxyURL != "" {
		opts.Proxy = &playwright.Proxy{Server: p.cfg.ProxyURL}
	}
	return opts
}
