// Package command turns free-text report requests into rendered replies.
//
// Two commands are understood:
//
//	users  [yyyy-mm-dd]
//	speeds [yyyy-mm-dd]
//
// The day defaults to today in the configured location. Errors are returned
// as reply text, never as Go errors, since the caller relays whatever it gets.
package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/spf13/cobra"

	"monitor.chat/stat-recorder-backend/internal/report"
)

const dateLayout = "2006-01-02"

// Reporter answers day-scoped queries.
type Reporter interface {
	Users(ctx context.Context, day time.Time) ([]report.UserRow, error)
	Speeds(ctx context.Context, day time.Time) ([]report.SpeedRow, error)
}

// NameResolver maps an opaque identity to something a person can read.
type NameResolver interface {
	DisplayName(ctx context.Context, id string) string
}

// NameResolverFunc adapts a function to NameResolver.
type NameResolverFunc func(ctx context.Context, id string) string

func (f NameResolverFunc) DisplayName(ctx context.Context, id string) string { return f(ctx, id) }

// IdentityNames returns every id unchanged.
var IdentityNames NameResolver = NameResolverFunc(func(_ context.Context, id string) string { return id })

type Handler struct {
	reporter Reporter
	names    NameResolver
	clock    quartz.Clock
	loc      *time.Location
}

type Option func(*Handler)

func WithClock(c quartz.Clock) Option { return func(h *Handler) { h.clock = c } }

func WithLocation(loc *time.Location) Option { return func(h *Handler) { h.loc = loc } }

func WithNameResolver(r NameResolver) Option { return func(h *Handler) { h.names = r } }

func New(reporter Reporter, opts ...Option) *Handler {
	h := &Handler{
		reporter: reporter,
		names:    IdentityNames,
		clock:    quartz.NewReal(),
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle runs text as a command and returns the reply.
func (h *Handler) Handle(ctx context.Context, text string) string {
	args := strings.Fields(text)
	if len(args) == 0 {
		return usage
	}

	var out bytes.Buffer
	root := h.root(&out)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return "error: " + err.Error() + "\n"
	}
	return out.String()
}

const usage = "usage:\n  users  [yyyy-mm-dd]\n  speeds [yyyy-mm-dd]\n"

func (h *Handler) root(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:                "stat",
		Args:               cobra.ArbitraryArgs,
		SilenceErrors:      true,
		SilenceUsage:       true,
		DisableSuggestions: true,
		CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(_ *cobra.Command, args []string) error {
			return fmt.Errorf("unknown command %q", args[0])
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.SetHelpFunc(func(c *cobra.Command, _ []string) { fmt.Fprint(c.OutOrStdout(), usage) })

	root.AddCommand(
		&cobra.Command{
			Use:   "users [yyyy-mm-dd]",
			Short: "List users seen on a day with their addresses",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				day, err := h.day(args)
				if err != nil {
					return err
				}
				rows, err := h.reporter.Users(c.Context(), day)
				if err != nil {
					return fmt.Errorf("users report: %w", err)
				}
				h.renderUsers(c.Context(), c.OutOrStdout(), day, rows)
				return nil
			},
		},
		&cobra.Command{
			Use:   "speeds [yyyy-mm-dd]",
			Short: "Summarize station response times measured on a day",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				day, err := h.day(args)
				if err != nil {
					return err
				}
				rows, err := h.reporter.Speeds(c.Context(), day)
				if err != nil {
					return fmt.Errorf("speeds report: %w", err)
				}
				h.renderSpeeds(c.Context(), c.OutOrStdout(), day, rows)
				return nil
			},
		},
	)
	return root
}

func (h *Handler) day(args []string) (time.Time, error) {
	if len(args) == 0 {
		return h.clock.Now().In(h.loc), nil
	}
	day, err := time.ParseInLocation(dateLayout, args[0], h.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected yyyy-mm-dd", args[0])
	}
	return day, nil
}

func (h *Handler) name(ctx context.Context, id string) string {
	if id == "" {
		return "-"
	}
	if name := h.names.DisplayName(ctx, id); name != "" && name != id {
		return fmt.Sprintf("%s (%s)", name, id)
	}
	return id
}

func (h *Handler) renderUsers(ctx context.Context, w io.Writer, day time.Time, rows []report.UserRow) {
	fmt.Fprintf(w, "users on %s: %d\n", day.Format(dateLayout), len(rows))
	for i, row := range rows {
		ips := "-"
		if len(row.IPs) > 0 {
			ips = strings.Join(row.IPs, ", ")
		}
		fmt.Fprintf(w, "%d. %s: %s\n", i+1, h.name(ctx, row.ID), ips)
	}
}

func (h *Handler) renderSpeeds(ctx context.Context, w io.Writer, day time.Time, rows []report.SpeedRow) {
	fmt.Fprintf(w, "speeds on %s: %d\n", day.Format(dateLayout), len(rows))
	for i, row := range rows {
		label, count := report.Summarize(row.Samples)
		provider := row.Provider
		if provider == "" {
			provider = "-"
		}
		fmt.Fprintf(w, "%d. %s <- %s provider=%s user=%s\n   %s (%d)\n",
			i+1, row.Station, row.ClientIP, provider, h.name(ctx, row.UserID), label, count)
	}
}
