package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"adminbot/internal/flow"
	"adminbot/internal/roles"
	"adminbot/internal/services/broadcast"
	"adminbot/internal/storage"
	"adminbot/pkg/tgui"
)

func btn(label string, action Action, payload string) (string, string) {
	return label, EncodeCommand(Command{Action: action, Payload: payload})
}

func cancelBtn() tele.Btn {
	return tgui.Btn(btn("✖️ Cancel", ActionCancel, ""))
}

// renderMenu is the console entry surface. Administrator roster management
// is only offered to the primary administrator.
func renderMenu(isPrimary bool) tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.Btn(flowButton("➕ Add group", flow.KindAddGroup)),
			tgui.Btn(flowButton("🗑 Delete group", flow.KindDelGroup))).
		Row(tgui.Btn(flowButton("➕ Add sheet target", flow.KindAddSheet)),
			tgui.Btn(flowButton("🗑 Delete sheet target", flow.KindDelSheet))).
		Row(tgui.Btn(flowButton("➕ Add approver", flow.KindAddApprover)),
			tgui.Btn(flowButton("🗑 Remove approver", flow.KindDelApprover))).
		Row(tgui.Btn(btn("📋 Groups", ActionGroups, "")),
			tgui.Btn(btn("📋 Sheet targets", ActionSheets, ""))).
		Row(tgui.Btn(btn("👥 Approvers", ActionApprovers, "")),
			tgui.Btn(btn("👥 Users", ActionUsers, ""))).
		Row(tgui.Btn(btn("🔑 Access code", ActionCode, "")),
			tgui.Btn(flowButton("🔐 Change access code", flow.KindSetCode))).
		Row(tgui.Btn(flowButton("📣 Broadcast", flow.KindBroadcast)))
	if isPrimary {
		kb.Row(tgui.Btn(flowButton("➕ Add admin", flow.KindAddAdmin)),
			tgui.Btn(flowButton("🗑 Remove admin", flow.KindDelAdmin))).
			Row(tgui.Btn(btn("👑 Administrators", ActionAdmins, "")))
	}
	return tgui.New().
		Title("🛠", "Admin console").
		Blank().
		Line("Pick an action.").
		Inline(kb).
		Build()
}

// renderPrompt shows the current step: its prompt text, selection buttons
// when the step is discrete, and a cancel button. reason, when set,
// precedes the prompt after a rejected input.
func renderPrompt(ctx context.Context, step *flow.Step, fields map[string]any, reason string) tgui.Message {
	b := tgui.New()
	if reason != "" {
		b.RawLine("⚠️ " + tgui.Esc(reason).String()).Blank()
	}
	b.Line(step.Prompt(ctx, fields))

	var choices []flow.Choice
	if step.Choices != nil {
		choices = step.Choices(ctx)
	}
	// A lone option is a yes/no question; pair it with cancel on one row.
	if len(choices) == 1 {
		ch := choices[0]
		yes := tgui.Btn(ch.Label, EncodeCommand(Command{Action: ActionChoice, Payload: ch.Value}))
		return b.Inline(tgui.ConfirmInline(yes, cancelBtn())).Build()
	}

	kb := tgui.NewInline()
	for _, ch := range choices {
		kb.Row(tgui.Btn(ch.Label, EncodeCommand(Command{Action: ActionChoice, Payload: ch.Value})))
	}
	return b.Inline(kb.Row(cancelBtn())).Build()
}

func renderCommitted(summary string) tgui.Message {
	return tgui.New().RawLine("✅ " + tgui.Esc(summary).String()).Build()
}

func renderCommitFailed() tgui.Message {
	return tgui.New().
		RawLine("❌ " + tgui.Esc("The operation failed and nothing was saved. Start over from the menu.").String()).
		Build()
}

func renderCanceled() tgui.Message {
	return tgui.New().Line("Canceled. Nothing was changed.").Build()
}

func renderDenied(reason string) tgui.Message {
	return tgui.New().RawLine("🚫 " + tgui.Esc(reason).String()).Build()
}

func renderGreeting(firstName string) tgui.Message {
	b := tgui.New().Title("👋", "Hello")
	if firstName != "" {
		b.Line("Glad to see you, " + firstName + ".")
	}
	b.Line("You are registered and will receive announcements here.")
	return b.Build()
}

func memberLine(m roles.Member) string {
	label := fmt.Sprintf("%d", m.ID)
	if m.Name != "" {
		label = fmt.Sprintf("%s (%d)", m.Name, m.ID)
	}
	if m.Primary {
		label += " — primary"
	}
	return label
}

func renderAdmins(members []roles.Member) tgui.Message {
	b := tgui.New().Title("👑", "Administrators").Blank()
	for _, m := range members {
		b.Bullets(memberLine(m))
	}
	return b.Build()
}

func renderApprovers(members []roles.Member) tgui.Message {
	b := tgui.New().Title("👥", "Approvers").Blank()
	if len(members) == 0 {
		b.Line("No approvers registered.")
	}
	for _, m := range members {
		b.Bullets(memberLine(m))
	}
	return b.Build()
}

// renderUsers lists registered broadcast recipients.
func renderUsers(users []storage.User) tgui.Message {
	b := tgui.New().Title("👥", "Registered users").Blank()
	if len(users) == 0 {
		b.Line("No users registered yet.")
	}
	for _, u := range users {
		name := u.FirstName
		if name == "" {
			name = strconv.FormatInt(u.ID, 10)
		}
		var handle tgui.H
		if u.Username != "" {
			handle = tgui.Esc("@" + u.Username)
		}
		line := tgui.JoinH(" ", tgui.Mention(name, u.ID), handle, tgui.Code(strconv.FormatInt(u.ID, 10)))
		b.RawLine("• " + line.String())
	}
	return b.Build()
}

// groupURL rebuilds the t.me link for supergroup chat ids (-100 prefixed).
func groupURL(chatID int64, topicID int) (string, bool) {
	s := strconv.FormatInt(chatID, 10)
	if !strings.HasPrefix(s, "-100") {
		return "", false
	}
	u := "https://t.me/c/" + strings.TrimPrefix(s, "-100")
	if topicID != 0 {
		u += "/" + strconv.Itoa(topicID)
	}
	return u, true
}

func renderGroups(groups []storage.Group) tgui.Message {
	b := tgui.New().Title("📋", "Work-groups").Blank()
	if len(groups) == 0 {
		b.Line("No groups registered.")
	}
	for _, g := range groups {
		label := fmt.Sprintf("%s (%d)", g.Name, g.ChatID)
		if g.TopicID != 0 {
			label = fmt.Sprintf("%s (%d, topic %d)", g.Name, g.ChatID, g.TopicID)
		}
		head := tgui.Esc(label)
		if u, ok := groupURL(g.ChatID, g.TopicID); ok {
			head = tgui.Link(label, u)
		}
		b.RawLine("• " + head.String() + " → " + tgui.Esc(g.SheetID).String())
	}
	return b.Build()
}

func renderSheets(targets []storage.SheetTarget) tgui.Message {
	b := tgui.New().Title("📋", "Spreadsheet targets").Blank()
	if len(targets) == 0 {
		b.Line("No targets registered.")
		return b.Build()
	}
	docBtns := make([]tele.Btn, 0, len(targets))
	for _, t := range targets {
		b.Bullets(fmt.Sprintf("%s — %s / %s", t.Name, t.ID, t.Worksheet))
		docBtns = append(docBtns, tgui.URLBtn("📄 "+t.Name, "https://docs.google.com/spreadsheets/d/"+t.ID))
	}
	return b.Inline(tgui.Grid2(docBtns)).Build()
}

func renderCode(code string) tgui.Message {
	b := tgui.New().Title("🔑", "Access code").Blank()
	if code == "" {
		b.Line("No access code is set.")
	} else {
		b.Code(code)
	}
	return b.Build()
}

func renderProgress(p broadcast.Progress) tgui.Message {
	return tgui.New().
		Title("📣", "Broadcast in progress").
		Blank().
		KV("Processed", fmt.Sprintf("%d/%d", p.Processed, p.Total)).
		KV("Sent", fmt.Sprintf("%d", p.Sent)).
		KV("Errors", fmt.Sprintf("%d", p.Errors)).
		Build()
}

func renderReport(r broadcast.Report) tgui.Message {
	if r.Total == 0 {
		return tgui.New().
			Title("📣", "Broadcast finished").
			Blank().
			Line("No recipients are registered; nothing was sent.").
			Build()
	}
	return tgui.New().
		Title("📣", "Broadcast finished").
		Blank().
		KV("Total", fmt.Sprintf("%d", r.Total)).
		KV("Sent", fmt.Sprintf("%d", r.Sent)).
		KV("Errors", fmt.Sprintf("%d", r.Errors)).
		KV("Success rate", fmt.Sprintf("%.1f%%", r.SuccessRatePercent)).
		Build()
}
