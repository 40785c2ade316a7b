// Package console drives the chat-based administrative console: it decodes
// operator events, gates them on roles, feeds them to the workflow engine,
// and renders prompts, rosters, and broadcast reports.
package console

import (
	"context"
	"errors"
	"strings"
	"sync"

	"adminbot/internal/auth"
	"adminbot/internal/eventbus"
	"adminbot/internal/flow"
	"adminbot/internal/roles"
	"adminbot/internal/services/broadcast"
	"adminbot/internal/session"
	"adminbot/internal/storage"
	"adminbot/internal/transport"
	"adminbot/pkg/logx"
	"adminbot/pkg/tgui"
)

type Console struct {
	ad       transport.Adapter
	engine   *flow.Engine
	sessions *session.Store
	gate     *auth.Gate
	registry *roles.Registry
	store    storage.Store
	bus      eventbus.Bus
	log      logx.Logger
	handler  HandlerFunc

	// status tracks the per-operator broadcast status message so progress
	// edits land on one surface instead of stacking new messages.
	statusMu sync.Mutex
	status   map[int64]transport.MessageRef
}

func New(
	ad transport.Adapter,
	engine *flow.Engine,
	sessions *session.Store,
	gate *auth.Gate,
	registry *roles.Registry,
	store storage.Store,
	bus eventbus.Bus,
	log logx.Logger,
) *Console {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Console{
		ad:       ad,
		engine:   engine,
		sessions: sessions,
		gate:     gate,
		registry: registry,
		store:    store,
		bus:      bus,
		log:      log,
		status:   map[int64]transport.MessageRef{},
	}
	c.handler = Chain(c.handle, MWPanicRecover(log), MWRequestLog(log))
	return c
}

// Run consumes inbound updates until ctx is canceled. Each update is handled
// on its own goroutine; the session store serializes per operator.
func (c *Console) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			go c.dispatch(ctx, up)
		}
	}
}

func (c *Console) dispatch(ctx context.Context, up transport.Update) {
	req := decodeUpdate(up)
	if req == nil {
		return
	}
	req.Log = c.log.With(logx.Int64("operator", req.OperatorID))
	c.sessions.WithOperator(req.OperatorID, func() {
		_ = c.handler(ctx, req)
	})
}

func decodeUpdate(up transport.Update) *Request {
	switch up.Kind {
	case transport.UpdateMessage:
		m := up.Message
		if m == nil {
			return nil
		}
		return &Request{
			Update:     up,
			OperatorID: m.FromID,
			Chat:       transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
			Text:       m.Text,
		}
	case transport.UpdateCallback:
		cb := up.Callback
		if cb == nil {
			return nil
		}
		cmd, ok := DecodeCommand(cb.Data)
		if !ok {
			return nil
		}
		return &Request{
			Update:     up,
			OperatorID: cb.FromID,
			Chat:       transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
			Command:    &cmd,
			CallbackID: cb.ID,
		}
	default:
		return nil
	}
}

func (c *Console) handle(ctx context.Context, req *Request) error {
	if req.Command != nil {
		return c.handleCommand(ctx, req)
	}
	return c.handleText(ctx, req)
}

// ---- free-text events ----

func (c *Console) handleText(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(req.Text)
	cmd := text
	if i := strings.IndexAny(cmd, " \t"); i >= 0 {
		cmd = cmd[:i]
	}
	// strip the @botname suffix Telegram appends in groups
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		return c.handleStart(ctx, req)
	case "/admin", "/menu":
		return c.showMenu(ctx, req)
	case "/cancel":
		return c.handleCancel(ctx, req)
	}

	// free text only means something inside an active flow
	sess := c.engine.Active(req.OperatorID)
	if sess == nil {
		return nil
	}
	if d := c.gate.CheckFlow(req.OperatorID, flow.Kind(sess.FlowKind)); !d.Allowed {
		// Role lost mid-flow: drop the session, deny, mutate nothing else.
		c.engine.Cancel(req.OperatorID)
		_, err := renderDenied(d.Reason).Send(ctx, c.ad, req.Chat)
		return err
	}
	res := c.engine.ProcessInput(ctx, req.OperatorID, text)
	return c.respond(ctx, req, res)
}

// handleStart registers the operator as a broadcast recipient. Admins are
// trusted and registered directly; everyone else must pass the access-code
// flow first.
func (c *Console) handleStart(ctx context.Context, req *Request) error {
	var firstName, username string
	if m := req.Update.Message; m != nil {
		username = m.FromUsername
		firstName = m.FromFirstName
	}

	if c.registry.IsAdmin(req.OperatorID) {
		if err := c.store.UpsertUser(ctx, storage.User{
			ID:        req.OperatorID,
			Username:  username,
			FirstName: firstName,
		}); err != nil {
			c.log.Warn("recipient registration failed", logx.Int64("operator", req.OperatorID), logx.Err(err))
		}
		if _, err := renderGreeting(firstName).Send(ctx, c.ad, req.Chat); err != nil {
			return err
		}
		return c.showMenu(ctx, req)
	}

	switch _, err := c.store.GetUser(ctx, req.OperatorID); {
	case err == nil:
		_, err := renderGreeting(firstName).Send(ctx, c.ad, req.Chat)
		return err
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	res, err := c.engine.Start(req.OperatorID, flow.KindRegister)
	if err != nil {
		return err
	}
	// the registration commit needs the requester's identity
	if sess := c.engine.Active(req.OperatorID); sess != nil {
		sess.Fields[flow.FieldUsername] = username
		sess.Fields[flow.FieldFirstName] = firstName
	}
	return c.respond(ctx, req, res)
}

func (c *Console) showMenu(ctx context.Context, req *Request) error {
	if d := c.gate.Check(req.OperatorID, auth.CapAdmin); !d.Allowed {
		_, err := renderDenied(d.Reason).Send(ctx, c.ad, req.Chat)
		return err
	}
	menu := renderMenu(c.registry.IsPrimaryAdmin(req.OperatorID))
	if req.Command != nil {
		return c.editOrSend(ctx, req, menu)
	}
	_, err := menu.Send(ctx, c.ad, req.Chat)
	return err
}

func (c *Console) handleCancel(ctx context.Context, req *Request) error {
	res := c.engine.Cancel(req.OperatorID)
	if res.Status != flow.StatusCanceled {
		return nil
	}
	return c.finalize(ctx, req, renderCanceled())
}

// ---- callback events ----

func (c *Console) handleCommand(ctx context.Context, req *Request) error {
	// ack first so the client stops its spinner; best-effort
	_ = c.ad.AnswerCallback(ctx, req.CallbackID, "")

	switch req.Command.Action {
	case ActionMenu:
		return c.showMenu(ctx, req)

	case ActionCancel:
		return c.handleCancel(ctx, req)

	case ActionFlow:
		return c.startFlow(ctx, req, flow.Kind(req.Command.Payload))

	case ActionChoice:
		sess := c.engine.Active(req.OperatorID)
		if sess == nil {
			return nil
		}
		if d := c.gate.CheckFlow(req.OperatorID, flow.Kind(sess.FlowKind)); !d.Allowed {
			c.engine.Cancel(req.OperatorID)
			return c.editOrSend(ctx, req, renderDenied(d.Reason))
		}
		res := c.engine.ProcessInput(ctx, req.OperatorID, req.Command.Payload)
		return c.respond(ctx, req, res)

	case ActionAdmins:
		if d := c.gate.Check(req.OperatorID, auth.CapPrimaryAdmin); !d.Allowed {
			return c.editOrSend(ctx, req, renderDenied(d.Reason))
		}
		return c.editOrSend(ctx, req, renderAdmins(c.registry.Admins()))

	case ActionApprovers:
		if d := c.gate.Check(req.OperatorID, auth.CapAdmin); !d.Allowed {
			return c.editOrSend(ctx, req, renderDenied(d.Reason))
		}
		return c.editOrSend(ctx, req, renderApprovers(c.registry.Approvers()))

	case ActionUsers:
		if d := c.gate.Check(req.OperatorID, auth.CapAdmin); !d.Allowed {
			return c.editOrSend(ctx, req, renderDenied(d.Reason))
		}
		users, err := c.store.ListUsers(ctx)
		if err != nil {
			return err
		}
		return c.editOrSend(ctx, req, renderUsers(users))

	case ActionGroups:
		if d := c.gate.Check(req.OperatorID, auth.CapAdmin); !d.Allowed {
			return c.editOrSend(ctx, req, renderDenied(d.Reason))
		}
		groups, err := c.store.ListGroups(ctx)
		if err != nil {
			return err
		}
		return c.editOrSend(ctx, req, renderGroups(groups))

	case ActionSheets:
		if d := c.gate.Check(req.OperatorID, auth.CapAdmin); !d.Allowed {
			return c.editOrSend(ctx, req, renderDenied(d.Reason))
		}
		targets, err := c.store.ListSheetTargets(ctx)
		if err != nil {
			return err
		}
		return c.editOrSend(ctx, req, renderSheets(targets))

	case ActionCode:
		if d := c.gate.Check(req.OperatorID, auth.CapAdmin); !d.Allowed {
			return c.editOrSend(ctx, req, renderDenied(d.Reason))
		}
		code, err := c.store.GetAccessCode(ctx)
		if err != nil {
			return err
		}
		return c.editOrSend(ctx, req, renderCode(code))
	}
	return nil
}

func (c *Console) startFlow(ctx context.Context, req *Request, kind flow.Kind) error {
	if c.engine.Definition(kind) == nil {
		return nil
	}
	if d := c.gate.CheckFlow(req.OperatorID, kind); !d.Allowed {
		return c.editOrSend(ctx, req, renderDenied(d.Reason))
	}
	res, err := c.engine.Start(req.OperatorID, kind)
	if err != nil {
		return err
	}
	// reuse the menu message as the flow's prompt surface
	if cb := req.Update.Callback; cb != nil {
		c.sessions.SetPrompt(req.OperatorID, session.PromptRef{
			ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID,
		})
	}
	return c.respond(ctx, req, res)
}

// ---- responses ----

func (c *Console) respond(ctx context.Context, req *Request, res flow.Result) error {
	switch res.Status {
	case flow.StatusPrompt, flow.StatusRejected:
		sess := c.engine.Active(req.OperatorID)
		fields := map[string]any{}
		if sess != nil {
			fields = sess.Fields
		}
		return c.presentPrompt(ctx, req, renderPrompt(ctx, res.Step, fields, res.Reason))

	case flow.StatusCommitted:
		c.audit(ctx, req.OperatorID, res, "")
		if err := c.finalize(ctx, req, renderCommitted(res.Summary)); err != nil {
			return err
		}
		if res.Kind == flow.KindBroadcast {
			// progress edits land on a dedicated status message
			c.clearStatus(req.OperatorID)
		}
		return nil

	case flow.StatusCommitFailed:
		c.audit(ctx, req.OperatorID, res, res.Err.Error())
		return c.finalize(ctx, req, renderCommitFailed())

	case flow.StatusCanceled:
		return c.finalize(ctx, req, renderCanceled())
	}
	return nil
}

// presentPrompt edits the existing prompt message in place, falling back to
// a fresh message when editing is impossible.
func (c *Console) presentPrompt(ctx context.Context, req *Request, msg tgui.Message) error {
	sess := c.engine.Active(req.OperatorID)
	if sess != nil && !sess.Prompt.IsZero() {
		ref := transport.MessageRef{
			ChatID: sess.Prompt.ChatID, ThreadID: sess.Prompt.ThreadID, MessageID: sess.Prompt.MessageID,
		}
		if err := msg.Edit(ctx, c.ad, ref); err == nil {
			return nil
		}
	}
	ref, err := msg.Send(ctx, c.ad, req.Chat)
	if err != nil {
		return err
	}
	c.sessions.SetPrompt(req.OperatorID, session.PromptRef{
		ChatID: ref.ChatID, ThreadID: ref.ThreadID, MessageID: ref.MessageID,
	})
	return nil
}

// finalize replaces the prompt (or the pressed button's message) with a
// terminal text carrying no keyboard.
func (c *Console) finalize(ctx context.Context, req *Request, msg tgui.Message) error {
	if cb := req.Update.Callback; cb != nil {
		ref := transport.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
		if err := msg.Edit(ctx, c.ad, ref); err == nil {
			return nil
		}
	}
	_, err := msg.Send(ctx, c.ad, req.Chat)
	return err
}

func (c *Console) editOrSend(ctx context.Context, req *Request, msg tgui.Message) error {
	if cb := req.Update.Callback; cb != nil {
		ref := transport.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
		if err := msg.Edit(ctx, c.ad, ref); err == nil {
			return nil
		}
	}
	_, err := msg.Send(ctx, c.ad, req.Chat)
	return err
}

func (c *Console) audit(ctx context.Context, operatorID int64, res flow.Result, errText string) {
	e := storage.AuditEntry{
		ActorID: operatorID,
		Action:  string(res.Kind),
		Target:  res.Summary,
		OK:      errText == "",
		Error:   errText,
	}
	if err := c.store.AppendAudit(ctx, e); err != nil {
		c.log.Warn("audit append failed", logx.Int64("operator", operatorID), logx.Err(err))
	}
}

// ---- broadcast status surface ----

// RunEvents mirrors broadcast progress back onto the initiating operator's
// chat. Run it alongside Run.
func (c *Console) RunEvents(ctx context.Context) error {
	events, unsub := c.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case broadcast.EventProgress:
				if pe, ok := ev.Data.(broadcast.ProgressEvent); ok {
					c.presentStatus(ctx, pe.Job.OperatorID, renderProgress(pe.Progress))
				}
			case broadcast.EventDone:
				if de, ok := ev.Data.(broadcast.DoneEvent); ok {
					c.presentStatus(ctx, de.Job.OperatorID, renderReport(de.Report))
					c.clearStatus(de.Job.OperatorID)
				}
			}
		}
	}
}

func (c *Console) presentStatus(ctx context.Context, operatorID int64, msg tgui.Message) {
	c.statusMu.Lock()
	ref, ok := c.status[operatorID]
	c.statusMu.Unlock()

	if ok {
		if err := msg.Edit(ctx, c.ad, ref); err == nil {
			return
		}
	}
	// operators drive the console from a direct chat, so the chat id is the
	// operator id
	newRef, err := msg.Send(ctx, c.ad, transport.ChatTarget{ChatID: operatorID})
	if err != nil {
		c.log.Warn("broadcast status delivery failed", logx.Int64("operator", operatorID), logx.Err(err))
		return
	}
	c.statusMu.Lock()
	c.status[operatorID] = newRef
	c.statusMu.Unlock()
}

func (c *Console) clearStatus(operatorID int64) {
	c.statusMu.Lock()
	delete(c.status, operatorID)
	c.statusMu.Unlock()
}
