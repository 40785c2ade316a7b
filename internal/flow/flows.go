package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"adminbot/internal/roles"
	"adminbot/internal/sheets"
	"adminbot/internal/storage"
)

// Deps are the collaborators the flow commits and validators reach into.
type Deps struct {
	Registry *roles.Registry
	Store    storage.Store
	Sheets   sheets.Verifier

	// StartBroadcast snapshots the recipient list and launches the dispatch
	// asynchronously, returning the snapshot size. operatorID identifies the
	// initiator so progress can reach their display surface.
	StartBroadcast func(ctx context.Context, operatorID int64, text string) (int, error)
}

// BuildDefinitions assembles every flow the console offers.
func BuildDefinitions(d Deps) map[Kind]*Definition {
	defs := []*Definition{
		registerFlow(d),
		addGroupFlow(d),
		delGroupFlow(d),
		addSheetFlow(d),
		delSheetFlow(d),
		addAdminFlow(d),
		delAdminFlow(d),
		addApproverFlow(d),
		delApproverFlow(d),
		setCodeFlow(d),
		broadcastFlow(d),
	}
	out := make(map[Kind]*Definition, len(defs))
	for _, def := range defs {
		out[def.Kind] = def
	}
	return out
}

func staticPrompt(text string) func(context.Context, map[string]any) string {
	return func(context.Context, map[string]any) string { return text }
}

func minLenValidator(min int, what string) func(context.Context, string, map[string]any) (any, string) {
	return func(_ context.Context, raw string, _ map[string]any) (any, string) {
		v := strings.TrimSpace(raw)
		if len([]rune(v)) < min {
			return nil, fmt.Sprintf("%s must be at least %d characters", what, min)
		}
		return v, ""
	}
}

// registerFlow gates broadcast recipient registration on the shared access
// code. Anyone may start it; the commit is what creates the user record.
func registerFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindRegister,
		Steps: []Step{
			{
				Name:   "code",
				Field:  "code",
				Prompt: staticPrompt("Send the access code to register."),
				Validate: func(ctx context.Context, raw string, _ map[string]any) (any, string) {
					current, err := d.Store.GetAccessCode(ctx)
					if err != nil || current == "" {
						return nil, "registration is currently closed, ask an administrator"
					}
					if strings.TrimSpace(raw) != current {
						return nil, "wrong access code, try again"
					}
					return true, ""
				},
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			id, _ := fields[FieldOperatorID].(int64)
			username, _ := fields[FieldUsername].(string)
			firstName, _ := fields[FieldFirstName].(string)
			u := storage.User{ID: id, Username: username, FirstName: firstName}
			if err := d.Store.UpsertUser(ctx, u); err != nil {
				return "", fmt.Errorf("register user %d: %w", id, err)
			}
			return "you are registered and will receive announcements here", nil
		},
	}
}

// groupLocator is the value the add-group locator step yields: the real chat
// id plus the optional forum topic.
type groupLocator struct {
	ChatID  int64
	TopicID int
}

func addGroupFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindAddGroup,
		Steps: []Step{
			{
				Name:   "locator",
				Field:  "group_locator",
				Prompt: staticPrompt("Send the group link (https://t.me/c/...) or its numeric id."),
				Validate: func(_ context.Context, raw string, _ map[string]any) (any, string) {
					chatID, topicID, ok := ParseGroupLocator(raw)
					if !ok {
						return nil, "that does not look like a group link or id, try again"
					}
					return groupLocator{ChatID: chatID, TopicID: topicID}, ""
				},
			},
			{
				Name:     "name",
				Field:    "group_name",
				Prompt:   staticPrompt("Now send a name for the group (at least 3 characters)."),
				Validate: minLenValidator(3, "group name"),
			},
			{
				Name:  "sheet",
				Field: "sheet_id",
				Prompt: func(ctx context.Context, _ map[string]any) string {
					targets, err := d.Store.ListSheetTargets(ctx)
					if err != nil || len(targets) == 0 {
						return "Pick the spreadsheet target for this group. No targets are registered yet; cancel and add one first."
					}
					var b strings.Builder
					b.WriteString("Pick the spreadsheet target for this group:\n")
					for _, t := range targets {
						fmt.Fprintf(&b, "%s — %s\n", t.ID, t.Name)
					}
					return strings.TrimRight(b.String(), "\n")
				},
				Choices: func(ctx context.Context) []Choice {
					targets, err := d.Store.ListSheetTargets(ctx)
					if err != nil {
						return nil
					}
					out := make([]Choice, 0, len(targets))
					for _, t := range targets {
						out = append(out, Choice{Label: t.Name, Value: t.ID})
					}
					return out
				},
				Validate: func(ctx context.Context, raw string, _ map[string]any) (any, string) {
					id := strings.TrimSpace(raw)
					if _, err := d.Store.GetSheetTarget(ctx, id); err != nil {
						return nil, "pick one of the registered targets"
					}
					return id, ""
				},
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			loc := fields["group_locator"].(groupLocator)
			g := storage.Group{
				ChatID:  loc.ChatID,
				TopicID: loc.TopicID,
				Name:    fields["group_name"].(string),
				SheetID: fields["sheet_id"].(string),
			}
			if err := d.Store.AddGroup(ctx, g); err != nil {
				return "", fmt.Errorf("add group %d: %w", g.ChatID, err)
			}
			return fmt.Sprintf("group %q (%d) registered with target %s", g.Name, g.ChatID, g.SheetID), nil
		},
	}
}

func delGroupFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindDelGroup,
		Steps: []Step{
			{
				Name:   "locator",
				Field:  "group_chat_id",
				Prompt: staticPrompt("Send the numeric id of the group to delete."),
				Choices: func(ctx context.Context) []Choice {
					groups, err := d.Store.ListGroups(ctx)
					if err != nil {
						return nil
					}
					out := make([]Choice, 0, len(groups))
					for _, g := range groups {
						out = append(out, Choice{Label: g.Name, Value: fmt.Sprintf("%d", g.ChatID)})
					}
					return out
				},
				Validate: func(ctx context.Context, raw string, _ map[string]any) (any, string) {
					id, ok := ParseNumericID(raw)
					if !ok {
						return nil, "send a numeric group id"
					}
					if _, err := d.Store.GetGroup(ctx, id); err != nil {
						return nil, "no group registered under that id"
					}
					return id, ""
				},
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			id := fields["group_chat_id"].(int64)
			if err := d.Store.DeleteGroup(ctx, id); err != nil {
				return "", fmt.Errorf("delete group %d: %w", id, err)
			}
			return fmt.Sprintf("group %d deleted", id), nil
		},
	}
}

func addSheetFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindAddSheet,
		Steps: []Step{
			{
				Name:     "name",
				Field:    "sheet_name",
				Prompt:   staticPrompt("Send a name for the spreadsheet target (at least 3 characters)."),
				Validate: minLenValidator(3, "target name"),
			},
			{
				Name:   "url",
				Field:  "sheet_doc_id",
				Prompt: staticPrompt("Send the spreadsheet URL (https://docs.google.com/spreadsheets/d/...)."),
				Validate: func(_ context.Context, raw string, _ map[string]any) (any, string) {
					docID, ok := ParseSheetURL(raw)
					if !ok {
						return nil, "that does not look like a spreadsheet URL"
					}
					return docID, ""
				},
			},
			{
				Name:   "worksheet",
				Field:  "sheet_worksheet",
				Prompt: staticPrompt("Send the worksheet name."),
				Validate: func(_ context.Context, raw string, _ map[string]any) (any, string) {
					v := strings.TrimSpace(raw)
					if v == "" {
						return nil, "worksheet name must not be empty"
					}
					return v, ""
				},
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			docID := fields["sheet_doc_id"].(string)
			worksheet := fields["sheet_worksheet"].(string)

			// All or nothing: the record exists only if the document answered.
			ok, msg := d.Sheets.VerifyConnectivity(ctx, docID, worksheet)
			if !ok {
				return "", fmt.Errorf("connectivity check failed: %s", msg)
			}
			t := storage.SheetTarget{
				ID:        docID,
				Name:      fields["sheet_name"].(string),
				Worksheet: worksheet,
			}
			if err := d.Store.AddSheetTarget(ctx, t); err != nil {
				return "", fmt.Errorf("add sheet target %s: %w", docID, err)
			}
			return fmt.Sprintf("target %q (%s / %s) registered", t.Name, t.ID, t.Worksheet), nil
		},
	}
}

func delSheetFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindDelSheet,
		Steps: []Step{
			{
				Name:   "target",
				Field:  "sheet_id",
				Prompt: staticPrompt("Send the id of the spreadsheet target to delete."),
				Choices: func(ctx context.Context) []Choice {
					targets, err := d.Store.ListSheetTargets(ctx)
					if err != nil {
						return nil
					}
					out := make([]Choice, 0, len(targets))
					for _, t := range targets {
						out = append(out, Choice{Label: t.Name, Value: t.ID})
					}
					return out
				},
				Validate: func(ctx context.Context, raw string, _ map[string]any) (any, string) {
					id := strings.TrimSpace(raw)
					if _, err := d.Store.GetSheetTarget(ctx, id); err != nil {
						return nil, "no target registered under that id"
					}
					return id, ""
				},
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			id := fields["sheet_id"].(string)
			if err := d.Store.DeleteSheetTarget(ctx, id); err != nil {
				return "", fmt.Errorf("delete sheet target %s: %w", id, err)
			}
			return fmt.Sprintf("target %s deleted", id), nil
		},
	}
}

func addAdminFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindAddAdmin,
		Steps: []Step{
			{
				Name:   "id",
				Field:  "member_id",
				Prompt: staticPrompt("Send the numeric id of the new administrator."),
				Validate: func(_ context.Context, raw string, _ map[string]any) (any, string) {
					id, ok := ParseNumericID(raw)
					if !ok {
						return nil, "send a numeric id"
					}
					if id == d.Registry.PrimaryAdmin() {
						return nil, "that is the primary administrator"
					}
					if d.Registry.IsAdmin(id) {
						return nil, "that id is already an administrator"
					}
					return id, ""
				},
			},
			{
				Name:     "name",
				Field:    "member_name",
				Prompt:   staticPrompt("Send a display name for the administrator (at least 2 characters)."),
				Validate: minLenValidator(2, "display name"),
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			id := fields["member_id"].(int64)
			name := fields["member_name"].(string)
			if !d.Registry.AddAdmin(id, name) {
				return "", fmt.Errorf("add admin %d: %w", id, storage.ErrExists)
			}
			if err := d.Store.AddAdmin(ctx, storage.Member{ID: id, Name: name}); err != nil && !errors.Is(err, storage.ErrExists) {
				d.Registry.RemoveAdmin(id)
				return "", fmt.Errorf("persist admin %d: %w", id, err)
			}
			// Mirror the registry's promotion rule in storage.
			_ = d.Store.DeleteApprover(ctx, id)
			return fmt.Sprintf("administrator %q (%d) added", name, id), nil
		},
	}
}

func delAdminFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindDelAdmin,
		Steps: []Step{
			{
				Name:   "id",
				Field:  "member_id",
				Prompt: staticPrompt("Send the numeric id of the administrator to remove."),
				Validate: func(_ context.Context, raw string, _ map[string]any) (any, string) {
					id, ok := ParseNumericID(raw)
					if !ok {
						return nil, "send a numeric id"
					}
					if id == d.Registry.PrimaryAdmin() {
						return nil, "the primary administrator cannot be removed"
					}
					if !d.Registry.IsAdmin(id) {
						return nil, "that id is not an administrator"
					}
					return id, ""
				},
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			id := fields["member_id"].(int64)
			if !d.Registry.RemoveAdmin(id) {
				return "", fmt.Errorf("remove admin %d: %w", id, storage.ErrNotFound)
			}
			if err := d.Store.DeleteAdmin(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return "", fmt.Errorf("unpersist admin %d: %w", id, err)
			}
			return fmt.Sprintf("administrator %d removed", id), nil
		},
	}
}

func addApproverFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindAddApprover,
		Steps: []Step{
			{
				Name:   "id",
				Field:  "member_id",
				Prompt: staticPrompt("Send the numeric id of the new approver."),
				Validate: func(_ context.Context, raw string, _ map[string]any) (any, string) {
					id, ok := ParseNumericID(raw)
					if !ok {
						return nil, "send a numeric id"
					}
					if id == d.Registry.PrimaryApprover() && id != 0 {
						return nil, "that is the primary approver"
					}
					if d.Registry.IsAdmin(id) {
						return nil, "administrators already approve; no separate entry needed"
					}
					if d.Registry.IsApprover(id) {
						return nil, "that id is already an approver"
					}
					return id, ""
				},
			},
			{
				Name:     "name",
				Field:    "member_name",
				Prompt:   staticPrompt("Send a display name for the approver (at least 2 characters)."),
				Validate: minLenValidator(2, "display name"),
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			id := fields["member_id"].(int64)
			name := fields["member_name"].(string)
			if !d.Registry.AddApprover(id, name) {
				return "", fmt.Errorf("add approver %d: %w", id, storage.ErrExists)
			}
			if err := d.Store.AddApprover(ctx, storage.Member{ID: id, Name: name}); err != nil && !errors.Is(err, storage.ErrExists) {
				d.Registry.RemoveApprover(id)
				return "", fmt.Errorf("persist approver %d: %w", id, err)
			}
			return fmt.Sprintf("approver %q (%d) added", name, id), nil
		},
	}
}

func delApproverFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindDelApprover,
		Steps: []Step{
			{
				Name:   "id",
				Field:  "member_id",
				Prompt: staticPrompt("Send the numeric id of the approver to remove."),
				Validate: func(_ context.Context, raw string, _ map[string]any) (any, string) {
					id, ok := ParseNumericID(raw)
					if !ok {
						return nil, "send a numeric id"
					}
					if id == d.Registry.PrimaryApprover() && id != 0 {
						return nil, "the primary approver cannot be removed"
					}
					if !d.Registry.IsApprover(id) || d.Registry.IsAdmin(id) {
						return nil, "that id is not an additional approver"
					}
					return id, ""
				},
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			id := fields["member_id"].(int64)
			if !d.Registry.RemoveApprover(id) {
				return "", fmt.Errorf("remove approver %d: %w", id, storage.ErrNotFound)
			}
			if err := d.Store.DeleteApprover(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return "", fmt.Errorf("unpersist approver %d: %w", id, err)
			}
			return fmt.Sprintf("approver %d removed", id), nil
		},
	}
}

func setCodeFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindSetCode,
		Steps: []Step{
			{
				Name:   "code",
				Field:  "code_new",
				Prompt: staticPrompt("Send the new access code (at least 4 characters)."),
				Validate: func(ctx context.Context, raw string, _ map[string]any) (any, string) {
					v := strings.TrimSpace(raw)
					if len([]rune(v)) < 4 {
						return nil, "the access code must be at least 4 characters"
					}
					current, err := d.Store.GetAccessCode(ctx)
					if err == nil && v == current {
						return nil, "the new code must differ from the current one"
					}
					return v, ""
				},
			},
			{
				Name:   "confirm",
				Field:  "code_confirm",
				Prompt: staticPrompt("Repeat the new access code to confirm."),
				Validate: func(_ context.Context, raw string, fields map[string]any) (any, string) {
					v := strings.TrimSpace(raw)
					if v != fields["code_new"] {
						return nil, "the confirmation does not match, repeat the new code"
					}
					return v, ""
				},
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			code := fields["code_new"].(string)
			if err := d.Store.SetAccessCode(ctx, code); err != nil {
				return "", fmt.Errorf("set access code: %w", err)
			}
			return "access code updated", nil
		},
	}
}

const confirmValue = "confirm"

func broadcastFlow(d Deps) *Definition {
	return &Definition{
		Kind: KindBroadcast,
		Steps: []Step{
			{
				Name:     "body",
				Field:    "body",
				Prompt:   staticPrompt("Send the broadcast text (at least 5 characters)."),
				Validate: minLenValidator(5, "broadcast text"),
			},
			{
				Name:  "confirm",
				Field: "confirmed",
				Prompt: func(_ context.Context, fields map[string]any) string {
					body, _ := fields["body"].(string)
					return "About to broadcast:\n\n" + body + "\n\nSend it?"
				},
				Choices: func(context.Context) []Choice {
					return []Choice{{Label: "✅ Send", Value: confirmValue}}
				},
				Validate: func(_ context.Context, raw string, _ map[string]any) (any, string) {
					if strings.TrimSpace(strings.ToLower(raw)) != confirmValue {
						return nil, "use the buttons to confirm or cancel"
					}
					return true, ""
				},
			},
		},
		Commit: func(ctx context.Context, fields map[string]any) (string, error) {
			body := fields["body"].(string)
			operatorID, _ := fields[FieldOperatorID].(int64)
			n, err := d.StartBroadcast(ctx, operatorID, body)
			if err != nil {
				return "", fmt.Errorf("start broadcast: %w", err)
			}
			if n == 0 {
				return "no recipients registered; nothing to send", nil
			}
			return fmt.Sprintf("broadcast started for %d recipients", n), nil
		},
	}
}
