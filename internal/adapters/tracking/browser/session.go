package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/okian/shipaudit/internal/domain/model"
	"github.com/okian/shipaudit/pkg/logger"
)

// Session is one tab on the tracking page. It is not safe for concurrent
// use; the coordinator gives each session its own worker.
type Session struct {
	page   *rod.Page
	cfg    Config
	sel    Selectors
	logger logger.Logger

	// started is set once the first-query form has been used; later fresh
	// queries go through the "track again" form.
	started bool
	// chatDismissed is set after the first attempt to close the chat overlay.
	chatDismissed bool
}

func newSession(page *rod.Page, cfg Config, log logger.Logger) *Session {
	return &Session{page: page, cfg: cfg, sel: cfg.Selectors, logger: log}
}

// Lookup submits trackingID and scrapes the result. A carrier error banner
// is returned as *model.LookupError; missing milestones leave the matching
// fields empty.
func (s *Session) Lookup(ctx context.Context, trackingID string, mode model.Mode) (model.TrackingResult, error) {
	var res model.TrackingResult

	if err := s.submit(ctx, trackingID, mode); err != nil {
		return res, err
	}

	msg, found, err := s.probe(ctx, s.page, s.sel.ErrorAlert, s.cfg.ErrorTimeout)
	if err != nil {
		return res, err
	}
	if found {
		if msg == "" {
			msg = "carrier reported an error"
		}
		return res, &model.LookupError{TrackingID: trackingID, Message: msg}
	}

	if _, found, err := s.probe(ctx, s.page, s.sel.Results, s.cfg.ResultTimeout); err != nil {
		return res, err
	} else if !found {
		return res, fmt.Errorf("%w: %s", ErrNoResults, trackingID)
	}

	if text, found, err := s.probe(ctx, s.page, s.sel.ShipMilestone, s.cfg.ProbeTimeout); err != nil {
		return res, err
	} else if found {
		res.ShipDate, res.ShipTime = splitMilestone(text)
	}
	if text, found, err := s.probe(ctx, s.page, s.sel.DeliveryMilestone, s.cfg.ProbeTimeout); err != nil {
		return res, err
	} else if found {
		res.DeliveryDate, res.DeliveryTime = splitMilestone(text)
	}

	if !s.chatDismissed {
		s.chatDismissed = true
		if err := s.dismissChat(ctx); err != nil {
			return res, err
		}
	}

	w, err := s.weather(ctx)
	if err != nil {
		return res, err
	}
	res.Weather = w
	return res, nil
}

// submit types the id into the form the mode and session history call for.
func (s *Session) submit(ctx context.Context, trackingID string, mode model.Mode) error {
	input, button := submitTarget(s.sel, mode, s.started)

	el, err := s.element(ctx, s.page, input, s.cfg.ElementTimeout)
	if err != nil {
		return fmt.Errorf("%w: input %s: %w", ErrSubmit, input, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("%w: clear %s: %w", ErrSubmit, input, err)
	}
	if err := el.Input(trackingID); err != nil {
		return fmt.Errorf("%w: type %s: %w", ErrSubmit, input, err)
	}
	if err := s.click(ctx, s.page, button, s.cfg.ElementTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrSubmit, err)
	}

	if mode == model.ModeFresh {
		s.started = true
	}
	s.logger.Debug(ctx, "query submitted",
		logger.String("tracking_id", trackingID),
		logger.String("mode", mode.String()),
		logger.String("input", input),
	)
	return nil
}

// submitTarget picks the input and button for a query.
func submitTarget(sel Selectors, mode model.Mode, started bool) (input, button string) {
	if mode == model.ModeFresh && started {
		return sel.TrackAgainInput, sel.TrackAgainButton
	}
	return sel.TrackingInput, sel.TrackButton
}

func (s *Session) dismissCookies(ctx context.Context) error {
	_, found, err := s.probe(ctx, s.page, s.sel.CookieClose, s.cfg.ElementTimeout)
	if err != nil || !found {
		return err
	}
	return s.click(ctx, s.page, s.sel.CookieClose, s.cfg.ElementTimeout)
}

// dismissChat closes the chat overlay if it shows up. It lives in an iframe.
func (s *Session) dismissChat(ctx context.Context) error {
	el, err := s.element(ctx, s.page, s.sel.ChatFrame, s.cfg.ChatTimeout)
	if errors.Is(err, errAbsent) {
		return nil
	}
	if err != nil {
		return err
	}
	frame, err := el.Frame()
	if err != nil {
		s.logger.Debug(ctx, "chat frame not ready", logger.Error(err))
		return nil
	}
	if err := s.click(ctx, frame, s.sel.ChatClose, s.cfg.ElementTimeout); err != nil && !errors.Is(err, errAbsent) {
		return err
	}
	return nil
}

// weather opens the details modal and looks for a weather exception.
func (s *Session) weather(ctx context.Context) (model.WeatherSignal, error) {
	if err := s.click(ctx, s.page, s.sel.ViewDetails, s.cfg.ProbeTimeout); err != nil {
		if errors.Is(err, errAbsent) {
			return model.WeatherUnknown, nil
		}
		return model.WeatherUnknown, err
	}

	text, found, err := s.probe(ctx, s.page, s.sel.DetailsTab, s.cfg.ProbeTimeout)
	if err != nil {
		return model.WeatherUnknown, err
	}
	signal := weatherSignal(text, found)

	if err := s.click(ctx, s.page, s.sel.ModalClose, s.cfg.ProbeTimeout); err != nil && !errors.Is(err, errAbsent) {
		return signal, err
	}
	return signal, nil
}

var errAbsent = errors.New("element absent")

// element waits up to timeout for selector. Absence is errAbsent; the
// caller's own cancellation is returned as is.
func (s *Session) element(ctx context.Context, page *rod.Page, selector string, timeout time.Duration) (*rod.Element, error) {
	el, err := page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errAbsent
		}
		return nil, err
	}
	return el.Context(ctx), nil
}

// probe reads the text of selector. Not finding it within timeout is a
// normal outcome, reported as found == false with a nil error.
func (s *Session) probe(ctx context.Context, page *rod.Page, selector string, timeout time.Duration) (string, bool, error) {
	el, err := s.element(ctx, page, selector, timeout)
	if errors.Is(err, errAbsent) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	text, err := el.Text()
	if err != nil {
		return "", true, fmt.Errorf("read %s: %w", selector, err)
	}
	return strings.TrimSpace(text), true, nil
}

func (s *Session) click(ctx context.Context, page *rod.Page, selector string, timeout time.Duration) error {
	el, err := s.element(ctx, page, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Close closes the session's tab.
func (s *Session) Close() error {
	return s.page.Close()
}

// splitMilestone splits "MM/DD/YYYY, H:MM P.M." into date and time. Text
// without a comma is taken as a bare date.
func splitMilestone(text string) (date, clock string) {
	date, clock, _ = strings.Cut(strings.TrimSpace(text), ",")
	return strings.TrimSpace(date), strings.TrimSpace(clock)
}

// weatherSignal maps the details tab text to a signal.
func weatherSignal(text string, found bool) model.WeatherSignal {
	if !found {
		return model.WeatherUnknown
	}
	if strings.Contains(strings.ToLower(text), "weather") {
		return model.WeatherYes
	}
	return model.WeatherNo
}
