// Package browser drives the carrier tracking page with go-rod. Everything
// that knows about page markup lives here.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/okian/shipaudit/pkg/logger"
)

// Browser is a connected Chrome instance. Each Session gets its own tab.
type Browser struct {
	cfg      Config
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   logger.Logger

	mu     sync.Mutex
	closed bool
}

// Launch attaches to cfg.DebuggerURL or starts a local Chrome.
func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	cfg = cfg.withDefaults()
	b := &Browser{cfg: cfg, logger: logger.Get().Named("browser")}

	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
		}
		b.launcher = l
		controlURL = u
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("%w: connect %s: %w", ErrLaunch, controlURL, err)
	}
	b.browser = rb

	b.logger.Info(ctx, "browser connected",
		logger.Bool("headless", cfg.Headless),
		logger.Bool("attached", cfg.DebuggerURL != ""),
	)
	return b, nil
}

// Open creates a tab on the tracking page and clears the cookie prompt.
func (b *Browser) Open(ctx context.Context) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.browser == nil {
		return nil, ErrNotStarted
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: b.cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if err := page.Context(ctx).Timeout(b.cfg.NavigationTimeout).WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("%w: wait load %s: %w", ErrOpen, b.cfg.URL, err)
	}

	s := newSession(page, b.cfg, b.logger)
	if err := s.dismissCookies(ctx); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return s, nil
}

// Close shuts the browser down. Calling it more than once is a no-op.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	b.cleanup()
	return err
}

func (b *Browser) cleanup() {
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
}
