package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/lorrc/ticket-collab/internal/collab"
	"github.com/lorrc/ticket-collab/internal/core/domain"
)

type styles struct {
	title    lipgloss.Style
	meta     lipgloss.Style
	divider  lipgloss.Style
	author   lipgloss.Style
	self     lipgloss.Style
	pending  lipgloss.Style
	notice   lipgloss.Style
	viewers  lipgloss.Style
	onTrack  lipgloss.Style
	atRisk   lipgloss.Style
	critical lipgloss.Style
	breached lipgloss.Style
	paused   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		meta:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		divider:  lipgloss.NewStyle().Faint(true),
		author:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		self:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("114")),
		pending:  lipgloss.NewStyle().Faint(true),
		notice:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		viewers:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		onTrack:  lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		atRisk:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		critical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		breached: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		paused:   lipgloss.NewStyle().Faint(true),
	}
}

func (s styles) risk(status domain.RiskStatus) lipgloss.Style {
	switch status {
	case domain.RiskAtRisk:
		return s.atRisk
	case domain.RiskCritical:
		return s.critical
	case domain.RiskBreached:
		return s.breached
	case domain.RiskPaused:
		return s.paused
	default:
		return s.onTrack
	}
}

// Renderer turns session snapshots into console text.
type Renderer struct {
	styles styles
	selfID string
	loc    *time.Location
	now    func() time.Time
}

// NewRenderer creates a renderer for the agent selfID.
func NewRenderer(selfID string, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{styles: newStyles(), selfID: selfID, loc: loc, now: time.Now}
}

// View renders the whole ticket view.
func (r *Renderer) View(snap collab.Snapshot) string {
	parts := []string{r.Header(snap), r.Status(snap)}
	if len(snap.SLATimers) > 0 {
		parts = append(parts, r.slaLines(snap.SLATimers)...)
	}
	if len(snap.Timer.History) > 0 {
		parts = append(parts, r.historyLine(snap.Timer.History))
	}
	parts = append(parts, "")
	for _, item := range snap.Messages {
		parts = append(parts, r.messageLines(item)...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Header renders the ticket title line.
func (r *Renderer) Header(snap collab.Snapshot) string {
	if snap.Ticket == nil {
		return r.styles.meta.Render("loading ticket…")
	}
	t := snap.Ticket
	title := r.styles.title.Render(fmt.Sprintf("#%d %s", t.ID, t.Title))
	meta := r.styles.meta.Render(fmt.Sprintf("[%s · %s · opened %s]", t.Status, t.Priority, humanize.RelTime(t.CreatedAt, r.now(), "ago", "from now")))
	line := title + " " + meta
	if snap.ReadOnly {
		line += " " + r.styles.notice.Render("read-only")
	}
	return line
}

// Status renders connection, presence, timer and SLA risk on one line.
func (r *Renderer) Status(snap collab.Snapshot) string {
	var fields []string

	if snap.Connected {
		fields = append(fields, "online")
	} else {
		fields = append(fields, r.styles.notice.Render("offline"))
	}

	fields = append(fields, "timer "+FormatDuration(snap.Timer.DisplaySeconds)+" "+timerLabel(snap.Timer))

	if snap.HasRisk {
		fields = append(fields, "SLA "+r.styles.risk(snap.Risk).Render(strings.ToUpper(string(snap.Risk))))
	}

	names := make([]string, 0, len(snap.Viewers))
	for _, v := range snap.Viewers {
		if v.UserID == r.selfID {
			continue
		}
		names = append(names, v.UserName)
	}
	switch {
	case snap.PresenceDegraded:
		fields = append(fields, r.styles.viewers.Render("viewers unavailable"))
	case len(names) > 0:
		fields = append(fields, r.styles.viewers.Render("also viewing: "+strings.Join(names, ", ")))
	}

	return strings.Join(fields, " | ")
}

func timerLabel(t collab.TimerView) string {
	label := "stopped"
	switch {
	case t.Phase == collab.PhaseRunning:
		label = "running"
	case t.ManualStopped:
		label = "paused by you"
	}
	if t.Pending {
		label += "…"
	}
	return "(" + label + ")"
}

func (r *Renderer) slaLines(timers []domain.SLATimer) []string {
	lines := make([]string, 0, len(timers))
	for _, t := range timers {
		name := t.Policy
		if name == "" {
			name = string(t.Metric)
		}
		status := r.styles.risk(t.DisplayStatus).Render(string(t.DisplayStatus))
		line := fmt.Sprintf("  sla %-16s %s %5.1f%%", name, status, t.PercentageElapsed)
		if t.TargetSeconds > 0 {
			line += r.styles.meta.Render(" of " + FormatDuration(t.TargetSeconds))
		}
		lines = append(lines, line)
	}
	return lines
}

func (r *Renderer) historyLine(history []domain.WorklogSession) string {
	return r.styles.meta.Render(fmt.Sprintf("  %s logged in %s",
		humanize.Comma(int64(len(history))), pluralize(len(history), "session", "sessions")))
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Message renders one transcript entry.
func (r *Renderer) Message(item collab.MessageItem) string {
	return strings.Join(r.messageLines(item), "\n")
}

func (r *Renderer) messageLines(item collab.MessageItem) []string {
	var lines []string
	if item.DateDivider {
		lines = append(lines, r.styles.divider.Render("── "+item.CreatedAt.In(r.loc).Format("Monday, 2 January 2006")+" ──"))
	}

	author := r.styles.author
	name := item.SenderName
	if item.SenderID == r.selfID {
		author = r.styles.self
		if name == "" {
			name = "you"
		}
	}

	stamp := item.CreatedAt.In(r.loc).Format("15:04")
	body := item.Content
	switch {
	case item.Status == domain.MessageSending && item.Delayed:
		body = r.styles.pending.Render(body + " (still sending…)")
	case item.Status == domain.MessageSending:
		body = r.styles.pending.Render(body + " (sending)")
	}

	lines = append(lines, fmt.Sprintf("%s %s %s", r.styles.meta.Render(stamp), author.Render(name+":"), body))
	return lines
}

// Notice renders a session notice.
func (r *Renderer) Notice(n collab.Notice) string {
	line := r.styles.notice.Render("! " + n.String())
	if n.Kind == collab.NoticeSendFailed && n.Draft != nil {
		line += "\n" + r.styles.meta.Render("  draft kept: "+n.Draft.Content+" (/retry to send again)")
	}
	return line
}

// FormatDuration renders seconds as HH:MM:SS.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}

// Printer writes a live transcript: new messages once each, and the status
// line whenever it changes other than by the running timer.
type Printer struct {
	w       io.Writer
	r       *Renderer
	seen    map[string]bool
	lastKey string
	printed bool
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, r *Renderer) *Printer {
	return &Printer{w: w, r: r, seen: make(map[string]bool)}
}

// Print writes what changed since the previous snapshot.
func (p *Printer) Print(snap collab.Snapshot) {
	if !p.printed && snap.Ticket != nil {
		fmt.Fprintln(p.w, p.r.Header(snap))
		p.printed = true
	}

	key := statusKey(snap)
	if key != p.lastKey {
		fmt.Fprintln(p.w, p.r.Status(snap))
		p.lastKey = key
	}

	for _, item := range snap.Messages {
		if item.Status != domain.MessageSent || p.seen[item.ID] {
			continue
		}
		p.seen[item.ID] = true
		fmt.Fprintln(p.w, p.r.Message(item))
	}
}

// statusKey identifies the status line without the ticking duration.
func statusKey(snap collab.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%t|%t|%v|%t|%t|%s|%t|%t", snap.Connected, snap.ReadOnly, snap.Timer.Phase,
		snap.Timer.ManualStopped, snap.Timer.Pending, snap.Risk, snap.HasRisk, snap.PresenceDegraded)
	for _, v := range snap.Viewers {
		b.WriteString("|" + v.UserID)
	}
	if snap.Ticket != nil {
		b.WriteString("|" + snap.Ticket.Status)
	}
	return b.String()
}
