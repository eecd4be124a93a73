package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lorrc/ticket-collab/internal/adapters/secondary/restclient"
	"github.com/lorrc/ticket-collab/internal/adapters/secondary/wsclient"
	"github.com/lorrc/ticket-collab/internal/collab"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/infrastructure/logging"
)

const consoleHelp = `commands:
  <text>                     send a message
  /start                     start the worklog timer
  /stop <reason-id> [note]   stop the timer; use - as id for a free-text reason
  /reasons                   list stop reasons
  /retry                     resend the last failed message
  /status                    print the full ticket view
  /refresh                   refetch ticket, timer and SLA
  /quit                      leave`

// sessionControl is the part of collab.Session the console drives.
type sessionControl interface {
	SendMessage(ctx context.Context, draft collab.Draft) (string, error)
	StartTimer(ctx context.Context) error
	StopTimer(ctx context.Context, reasonID, reason string) error
	Refresh(ctx context.Context) error
	Snapshot(ctx context.Context) (collab.Snapshot, error)
}

type stopReasonLister interface {
	GetStopReasons(ctx context.Context) ([]domain.StopReason, error)
}

var (
	_ sessionControl   = (*collab.Session)(nil)
	_ stopReasonLister = (*restclient.Client)(nil)
)

func newConsoleCmd(v *viper.Viper, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console <ticket-id>",
		Short: "Open a ticket and collaborate on it from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || ticketID <= 0 {
				return fmt.Errorf("invalid ticket id %q", args[0])
			}

			cfg, err := loadConfig(v, opts.configPath)
			if err != nil {
				return err
			}
			actor, err := identityFromToken(cfg.Token)
			if err != nil {
				return err
			}

			logger, closeLog, err := consoleLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runConsole(ctx, cfg, actor, ticketID, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}

func consoleLogger(cfg Config, stderr io.Writer) (*slog.Logger, func(), error) {
	out := stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.LogLevel,
		Format:      "text",
		Output:      out,
		ServiceName: "collab-console",
	})
	return logger, closeFn, nil
}

func runConsole(ctx context.Context, cfg Config, actor domain.Actor, ticketID int64, in io.Reader, out io.Writer, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rest, err := restclient.New(restclient.Config{
		BaseURL: cfg.APIURL(),
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
	}, logger)
	if err != nil {
		return err
	}
	channel := wsclient.New(wsclient.Config{
		URL:           cfg.ChannelURL(),
		Token:         cfg.Token,
		RetryInterval: cfg.RetryInterval,
		MaxRetries:    cfg.MaxRetries,
	}, logger)

	session := collab.NewSession(collab.Config{
		TicketID: ticketID,
		Agent: collab.Author{
			UserID:     actor.ID.String(),
			Name:       actor.Name,
			Avatar:     cfg.Avatar,
			SenderType: actor.Role,
		},
		SLAPollInterval:    cfg.SLAPollInterval,
		TicketPollInterval: cfg.TicketPollInterval,
		SendWarnAfter:      cfg.SendWarnAfter,
	}, collab.Dependencies{
		Channel:  channel,
		Tickets:  rest,
		Worklogs: rest,
		SLA:      rest,
		Logger:   logger,
	})

	w := &lockedWriter{w: out}
	c := &console{
		session:  session,
		reasons:  rest,
		out:      w,
		renderer: NewRenderer(actor.ID.String(), nil),
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := channel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("channel stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		_ = session.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		c.follow(ctx, session)
	}()

	fmt.Fprintf(w, "ticket #%d as %s, /help for commands\n", ticketID, actor.Name)
	c.readLoop(ctx, in)
	cancel()
	wg.Wait()
	return nil
}

// console maps input lines onto session commands.
type console struct {
	session  sessionControl
	reasons  stopReasonLister
	out      io.Writer
	renderer *Renderer

	mu        sync.Mutex
	lastDraft *collab.Draft
}

// follow prints snapshots and notices until ctx ends.
func (c *console) follow(ctx context.Context, session *collab.Session) {
	printer := NewPrinter(c.out, c.renderer)
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-session.Snapshots():
			printer.Print(snap)
		case n := <-session.Notices():
			c.notice(n)
		}
	}
}

func (c *console) notice(n collab.Notice) {
	if n.Kind == collab.NoticeSendFailed && n.Draft != nil {
		c.mu.Lock()
		draft := *n.Draft
		c.lastDraft = &draft
		c.mu.Unlock()
	}
	fmt.Fprintln(c.out, c.renderer.Notice(n))
}

func (c *console) readLoop(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := c.handle(ctx, line); quit {
				return
			}
		}
	}
}

// handle executes one input line and reports whether the console should exit.
func (c *console) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(ctx, collab.Draft{Content: line})
		return false
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(c.out, consoleHelp)
	case "/start":
		c.report(c.session.StartTimer(ctx))
	case "/stop":
		reasonID, note, _ := strings.Cut(rest, " ")
		if reasonID == "-" {
			reasonID = ""
		}
		c.report(c.session.StopTimer(ctx, reasonID, strings.TrimSpace(note)))
	case "/reasons":
		reasons, err := c.reasons.GetStopReasons(ctx)
		if err != nil {
			c.report(err)
			break
		}
		for _, r := range reasons {
			fmt.Fprintf(c.out, "  %-20s %s\n", r.ID, r.Label)
		}
	case "/retry":
		c.mu.Lock()
		draft := c.lastDraft
		c.lastDraft = nil
		c.mu.Unlock()
		if draft == nil {
			fmt.Fprintln(c.out, "nothing to retry")
			break
		}
		c.send(ctx, *draft)
	case "/status":
		snap, err := c.session.Snapshot(ctx)
		if err != nil {
			c.report(err)
			break
		}
		fmt.Fprintln(c.out, c.renderer.View(snap))
	case "/refresh":
		c.report(c.session.Refresh(ctx))
	default:
		fmt.Fprintf(c.out, "unknown command %s, /help lists commands\n", name)
	}
	return false
}

func (c *console) send(ctx context.Context, draft collab.Draft) {
	if _, err := c.session.SendMessage(ctx, draft); err != nil {
		c.report(err)
	}
}

func (c *console) report(err error) {
	if err != nil {
		fmt.Fprintln(c.out, c.renderer.styles.notice.Render("! "+err.Error()))
	}
}

// lockedWriter serializes writes from the input and follow goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
