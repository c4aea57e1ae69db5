package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	endOfDay    = "23:59"

	DefaultImminentLead      = 2 * time.Hour
	DefaultImminentTolerance = 30 * time.Minute
)

// BookingReader is the store query the selector needs.
type BookingReader interface {
	ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error)
}

// SelectorConfig controls window computation.
type SelectorConfig struct {
	// Location is the studio time zone in which bookings are stored.
	Location          *time.Location
	ImminentLead      time.Duration
	ImminentTolerance time.Duration
}

// Selector resolves reminder categories into booking windows.
type Selector struct {
	bookings BookingReader
	config   SelectorConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewSelector constructs a selector with the provided dependencies.
func NewSelector(bookings BookingReader, config SelectorConfig, now func() time.Time) *Selector {
	return NewSelectorWithLogger(bookings, config, now, nil)
}

// NewSelectorWithLogger constructs a selector with a specified logger.
func NewSelectorWithLogger(bookings BookingReader, config SelectorConfig, now func() time.Time, logger *slog.Logger) *Selector {
	if now == nil {
		now = time.Now
	}
	return &Selector{bookings: bookings, config: config.withDefaults(), now: now, logger: defaultLogger(logger)}
}

func (c SelectorConfig) withDefaults() SelectorConfig {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.ImminentLead <= 0 {
		c.ImminentLead = DefaultImminentLead
	}
	if c.ImminentTolerance <= 0 {
		c.ImminentTolerance = DefaultImminentTolerance
	}
	return c
}

// Resolve computes the window for category at the current instant.
func (s *Selector) Resolve(category Category) (Window, error) {
	return ResolveWindow(category, s.now(), s.config)
}

// Select returns the bookings inside the category's window whose status
// matches the category precondition.
func (s *Selector) Select(ctx context.Context, category Category) ([]Booking, error) {
	window, err := s.Resolve(category)
	if err != nil {
		return nil, err
	}
	return s.SelectWindow(ctx, window)
}

// SelectWindow queries the store for a previously resolved window.
func (s *Selector) SelectWindow(ctx context.Context, window Window) (bookings []Booking, err error) {
	logger := serviceLogger(ctx, s.logger, "Selector", "SelectWindow",
		"category", string(window.Category),
		"date", window.Query.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to select bookings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "bookings selected", "count", len(bookings), "empty_window", window.Empty)
	}()

	if window.Empty {
		return []Booking{}, nil
	}
	if s.bookings == nil {
		return nil, fmt.Errorf("booking reader not configured")
	}

	bookings, err = s.bookings.ListBookings(ctx, window.Query)
	if err != nil {
		return nil, fmt.Errorf("select %s bookings: %w", window.Category, err)
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	return bookings, nil
}

// ResolveWindow maps a category and an instant to a store predicate. The
// instant is converted into the studio location first and truncated to the
// minute, so all bounds are inclusive at minute resolution.
func ResolveWindow(category Category, now time.Time, config SelectorConfig) (Window, error) {
	config = config.withDefaults()
	now = now.In(config.Location).Truncate(time.Minute)
	today := now.Format(dateLayout)

	window := Window{Category: category}
	switch category {
	case CategoryNextDay:
		window.Query = BookingQuery{
			Date:   now.Add(24 * time.Hour).Format(dateLayout),
			Status: StatusConfirmed,
		}
	case CategoryImminent:
		start := now.Add(config.ImminentLead)
		end := start.Add(config.ImminentTolerance)
		window.Query = BookingQuery{
			Date:     today,
			Status:   StatusConfirmed,
			TimeFrom: start.Format(clockLayout),
			TimeTo:   end.Format(clockLayout),
		}
		if start.Format(dateLayout) != today {
			window.Empty = true
		} else if end.Format(dateLayout) != today {
			window.Query.TimeTo = endOfDay
		}
	case CategoryPostSession:
		window.Query = BookingQuery{
			Date:   today,
			Status: StatusCompleted,
		}
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownCategory, string(category))
	}
	return window, nil
}
