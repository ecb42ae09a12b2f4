package flow

import (
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/flowdesk/flowdesk/internal/models"
)

// placeholderRe matches {{name}} tokens in menu body and section titles.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderMenu turns a declarative menu template plus template variables
// into a structurally valid outbound payload.
//
// A referenced variable with no value falls back to the flow's configured
// default; failing that it renders as an empty string and the omission is
// logged as models.ErrMissingTemplateVariable. Sections exceeding the
// flow's row cap are truncated from the tail, never split. The transform
// is pure: it never fails a conversation turn.
func RenderMenu(def *models.FlowDefinition, tmpl *models.MenuTemplate, vars map[string]string) models.OutboundMessage {
	msg := models.OutboundMessage{
		Body:   substitute(def, tmpl.Body, vars),
		Button: tmpl.Button,
	}
	if len(msg.Body) > models.MaxMenuBodyLength {
		slog.Warn("RenderMenu truncating body over channel limit", "flowID", def.ID, "length", len(msg.Body))
		msg.Body = truncate(msg.Body, models.MaxMenuBodyLength)
	}

	maxRows := def.MaxListRows()
	for _, sec := range tmpl.Sections {
		rows := sec.Rows
		if len(rows) > maxRows {
			slog.Warn("RenderMenu truncating section rows over limit", "flowID", def.ID, "section", sec.Title, "rows", len(rows), "max", maxRows)
			rows = rows[:maxRows]
		}
		out := models.OutboundSection{Title: substitute(def, sec.Title, vars)}
		for _, row := range rows {
			title := truncate(row.Title, models.MaxRowTitleLength)
			desc := truncate(row.Description, models.MaxRowDescriptionLength)
			out.Rows = append(out.Rows, models.OutboundRow{
				ID:          string(row.ID),
				Title:       title,
				Description: desc,
			})
		}
		msg.Sections = append(msg.Sections, out)
	}
	return msg
}

// RenderText substitutes template variables into a plain text reply.
func RenderText(def *models.FlowDefinition, text string, vars map[string]string) string {
	return substitute(def, text, vars)
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func substitute(def *models.FlowDefinition, text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(token string) string {
		name := placeholderRe.FindStringSubmatch(token)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		if v, ok := def.Config.TemplateDefaults[name]; ok {
			return v
		}
		slog.Warn("RenderMenu missing template variable", "error", models.ErrMissingTemplateVariable, "flowID", def.ID, "variable", name)
		return ""
	})
}
