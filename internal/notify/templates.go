package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// Template renders one event type. Title doubles as the email subject;
// Body is markdown.
type Template struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Catalog map[string]Template

func DefaultCatalog() Catalog {
	return Catalog{
		"ticket.created":      {Title: "New ticket: {title}", Body: "A new **{priority}** {kind} ticket was opened.\n\n> {title}"},
		"ticket.start":        {Title: "Work started: {title}", Body: "Work has started on ticket **{title}**."},
		"ticket.hold":         {Title: "Ticket on hold: {title}", Body: "Ticket **{title}** was put on hold.\n\n{note}"},
		"ticket.resume":       {Title: "Work resumed: {title}", Body: "Work has resumed on ticket **{title}**."},
		"ticket.resolve":      {Title: "Ticket resolved: {title}", Body: "Ticket **{title}** was marked resolved.\n\n{note}"},
		"ticket.reopen":       {Title: "Ticket reopened: {title}", Body: "Ticket **{title}** was reopened.\n\n{note}"},
		"ticket.close":        {Title: "Ticket closed: {title}", Body: "Ticket **{title}** is closed."},
		"ticket.assigned":     {Title: "Ticket assigned: {title}", Body: "Ticket **{title}** has a new assignee."},
		"ticket.commented":    {Title: "New comment on {title}", Body: "{note}"},
		"ticket.stale":        {Title: "Ticket needs attention: {title}", Body: "Ticket **{title}** has been {status} since {stale_since}."},
		"lead.created":        {Title: "New lead from {name}", Body: "**{name}** ({email}) wrote:\n\n> {message}"},
		"lease.created":       {Title: "Lease drafted", Body: "A lease from {start_date} to {end_date} was drafted."},
		"lease.submit":        {Title: "Lease awaiting signature", Body: "The lease starting {start_date} is awaiting signature."},
		"lease.activate":      {Title: "Lease active", Body: "The lease starting {start_date} is now active."},
		"lease.end":           {Title: "Lease ended", Body: "The lease ending {end_date} has ended."},
		"lease.cancel":        {Title: "Lease cancelled", Body: "The lease starting {start_date} was cancelled."},
		"quotation.sent":      {Title: "Quotation {number}", Body: "Hello {client_name},\n\nPlease review quotation **{number}** for a total of {total_display}.\n\nAccept or reject it at {accept_url}"},
		"quotation.accepted":  {Title: "Quotation {number} accepted", Body: "{client_name} accepted quotation **{number}**."},
		"quotation.rejected":  {Title: "Quotation {number} rejected", Body: "{client_name} rejected quotation **{number}**."},
		"quotation.cancelled": {Title: "Quotation {number} cancelled", Body: "Quotation **{number}** was cancelled."},
	}
}

// LoadCatalog reads a JSONC file of event type to template and layers it
// over the defaults.
func LoadCatalog(path string) (Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}
	var overrides Catalog
	if err := json.Unmarshal(jsonc.ToJSON(data), &overrides); err != nil {
		return nil, fmt.Errorf("parse template catalog %s: %w", path, err)
	}
	for eventType, tmpl := range overrides {
		catalog[eventType] = tmpl
	}
	return catalog, nil
}

type payloadData map[string]interface{}

// renderTemplate replaces {key} placeholders with payload values. Unknown
// keys render as empty strings.
func renderTemplate(template string, payload payloadData) string {
	var b strings.Builder
	for {
		start := strings.IndexByte(template, '{')
		if start < 0 {
			b.WriteString(template)
			break
		}
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			b.WriteString(template)
			break
		}
		key := template[start+1 : start+end]
		if !isPlaceholder(key) {
			b.WriteString(template[:start+1])
			template = template[start+1:]
			continue
		}
		b.WriteString(template[:start])
		b.WriteString(str(payload, key))
		template = template[start+end+1:]
	}
	return strings.TrimSpace(b.String())
}

func isPlaceholder(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func str(payload payloadData, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
