package notification

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const reminderTemplate = `Hi {{.Recipient.Name}}, the group order for {{.ProductName}} closes in {{days .Window}} ({{formatDate .Deadline}}).
{{.CurrentQty}} of {{.TargetQty}} units are committed. The current price is {{money .CurrentUnitPrice .Currency}} per unit.
You are in for {{.Recipient.Qty}}. Share the link to unlock the next tier.`

const statusTemplate = `Hi {{.Recipient.Name}}, the group order for {{.ProductName}} is now {{status .To}}.
{{- if .Reason}}
Reason: {{.Reason}}{{end}}`

// Renderer turns notifications into message text
type Renderer struct {
	reminder *template.Template
	status   *template.Template
	tag      language.Tag
}

// NewRenderer parses the message templates for tag
func NewRenderer(tag language.Tag) (*Renderer, error) {
	title := cases.Title(tag)
	funcs := template.FuncMap{
		"formatDate": func(t time.Time) string { return t.UTC().Format("Jan 2, 2006 15:04 MST") },
		"money": func(amount decimal.Decimal, cur string) string {
			if cur == "" {
				cur = string(valueobject.DefaultCurrency)
			}
			m, err := valueobject.NewMoney(amount, valueobject.Currency(cur))
			if err != nil {
				return amount.StringFixed(2)
			}
			return m.Format(tag)
		},
		"status": func(s groupbuy.Status) string {
			return title.String(strings.ReplaceAll(s.String(), "_", " "))
		},
		"days": func(w groupbuy.ReminderWindow) string {
			if w.Days() == 1 {
				return "1 day"
			}
			return fmt.Sprintf("%d days", w.Days())
		},
	}

	reminder, err := template.New("reminder").Funcs(funcs).Parse(reminderTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse reminder template: %w", err)
	}
	status, err := template.New("status").Funcs(funcs).Parse(statusTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse status template: %w", err)
	}
	return &Renderer{reminder: reminder, status: status, tag: tag}, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
