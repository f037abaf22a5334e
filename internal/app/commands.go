package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	logx "github.com/andrews24ultra123-sudo/loyallecgbot/pkg/logx"

	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/schedule"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/store"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/transport"
)

// commandRouter serves the operator commands. Every command is owner-gated;
// with no owners configured the bot simply never answers.
type commandRouter struct {
	log     logx.Logger
	adapter transport.Adapter
	disp    *schedule.Dispatcher
	store   store.Store
	clock   schedule.Clock
	owners  map[int64]struct{}
}

type commandDeps struct {
	log     logx.Logger
	adapter transport.Adapter
	disp    *schedule.Dispatcher
	store   store.Store
	clock   schedule.Clock
	owners  []int64
}

func newCommandRouter(d commandDeps) *commandRouter {
	owners := make(map[int64]struct{}, len(d.owners))
	for _, id := range d.owners {
		owners[id] = struct{}{}
	}
	return &commandRouter{
		log:     d.log,
		adapter: d.adapter,
		disp:    d.disp,
		store:   d.store,
		clock:   d.clock,
		owners:  owners,
	}
}

func (r *commandRouter) run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Kind != transport.UpdateMessage || up.Message == nil {
				continue
			}
			r.handle(ctx, up.Message)
		}
	}
}

func (r *commandRouter) handle(ctx context.Context, m *transport.Message) {
	cmd, arg := splitCommand(m.Text)
	if cmd == "" {
		return
	}
	if _, ok := r.owners[m.FromID]; !ok {
		// /chatid is the one command useful before owners are configured;
		// it only echoes ids the sender can already see.
		if cmd != "/chatid" {
			return
		}
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var reply string
	switch cmd {
	case "/pollnow":
		reply = r.forceOp(cctx, schedule.OpPostPoll, arg)
	case "/remindnow":
		reply = r.forceOp(cctx, schedule.OpSendReminder, arg)
	case "/next":
		reply = r.renderNext()
	case "/fired":
		reply = r.renderFired(cctx)
	case "/chatid":
		reply = fmt.Sprintf("chat_id: %d\nthread_id: %d\nyour user_id: %d", m.ChatID, m.ThreadID, m.FromID)
	case "/help":
		reply = helpText
	default:
		return
	}
	if reply == "" {
		return
	}

	to := transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	if _, err := r.adapter.SendText(cctx, to, reply, nil); err != nil {
		r.log.Warn("command reply failed", logx.String("cmd", cmd), logx.Err(err))
	}
}

const helpText = `Commands:
/pollnow cg|service - post the poll immediately
/remindnow cg|service - send the reminder immediately
/next - show the next activation of every scheduled slot
/fired - show what already fired
/chatid - show this chat's ids
/help - this text`

func (r *commandRouter) forceOp(ctx context.Context, op schedule.Op, arg string) string {
	if strings.TrimSpace(arg) == "" {
		return "usage: specify a poll kind, cg or service"
	}
	kind, err := schedule.ParseKind(arg)
	if err != nil {
		return err.Error()
	}
	a := schedule.Action{Op: op, Kind: kind}
	r.log.Info("operator forced action", logx.String("action", a.String()))
	if err := r.disp.Force(ctx, a); err != nil {
		return "failed: " + err.Error()
	}
	return "done: " + a.String()
}

func (r *commandRouter) renderNext() string {
	now := r.clock.Now()
	var b strings.Builder
	b.WriteString("Schedule (")
	b.WriteString(now.Format("MST"))
	b.WriteString("):\n")
	for _, st := range r.disp.Snapshot() {
		fmt.Fprintf(&b, "%s %s -> next %s", st.At, st.Action, st.Next.Format("Mon 02 Jan 15:04"))
		if st.FiredToday {
			b.WriteString(" (fired today)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *commandRouter) renderFired(ctx context.Context) string {
	markers, err := r.store.ListMarkers(ctx)
	if err != nil {
		return "marker read failed: " + err.Error()
	}
	if len(markers) == 0 {
		return "nothing fired in the last week"
	}
	keys := make([]string, 0, len(markers))
	for k := range markers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("Fired occurrences:\n")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// splitCommand extracts "/cmd" and its argument string, tolerating the
// trailing @botname Telegram appends in groups.
func splitCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	parts := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(parts[0])
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}
