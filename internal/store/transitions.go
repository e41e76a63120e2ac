package store

import (
	"sort"

	"rentdesk/internal/models"
)

// Transitions maps an action to the statuses it may start from and the
// status it ends in.
type Transitions struct {
	from map[string][]string
	to   map[string]string
}

var TicketTransitions = Transitions{
	from: map[string][]string{
		"start":   {models.TicketOpen, models.TicketOnHold},
		"hold":    {models.TicketOpen, models.TicketInProgress},
		"resume":  {models.TicketOnHold},
		"resolve": {models.TicketInProgress},
		"reopen":  {models.TicketResolved},
		"close":   {models.TicketOpen, models.TicketInProgress, models.TicketOnHold, models.TicketResolved},
	},
	to: map[string]string{
		"start":   models.TicketInProgress,
		"hold":    models.TicketOnHold,
		"resume":  models.TicketInProgress,
		"resolve": models.TicketResolved,
		"reopen":  models.TicketInProgress,
		"close":   models.TicketClosed,
	},
}

var LeaseTransitions = Transitions{
	from: map[string][]string{
		"submit":   {models.LeaseDraft},
		"activate": {models.LeasePendingSignature},
		"end":      {models.LeaseActive},
		"cancel":   {models.LeaseDraft, models.LeasePendingSignature},
	},
	to: map[string]string{
		"submit":   models.LeasePendingSignature,
		"activate": models.LeaseActive,
		"end":      models.LeaseEnded,
		"cancel":   models.LeaseCancelled,
	},
}

// LeadTransitions uses the target status as the action name.
var LeadTransitions = Transitions{
	from: map[string][]string{
		models.LeadContacted: {models.LeadNew},
		models.LeadQualified: {models.LeadContacted},
		models.LeadConverted: {models.LeadQualified},
		models.LeadLost:      {models.LeadNew, models.LeadContacted, models.LeadQualified},
	},
	to: map[string]string{
		models.LeadContacted: models.LeadContacted,
		models.LeadQualified: models.LeadQualified,
		models.LeadConverted: models.LeadConverted,
		models.LeadLost:      models.LeadLost,
	},
}

var QuotationTransitions = Transitions{
	from: map[string][]string{
		"send":   {models.QuotationDraft},
		"accept": {models.QuotationSent},
		"reject": {models.QuotationSent},
		"cancel": {models.QuotationDraft, models.QuotationSent},
	},
	to: map[string]string{
		"send":   models.QuotationSent,
		"accept": models.QuotationAccepted,
		"reject": models.QuotationRejected,
		"cancel": models.QuotationCancelled,
	},
}

func (t Transitions) Allowed(action, fromStatus string) bool {
	allowed, ok := t.from[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

func (t Transitions) Target(action string) (string, bool) {
	status, ok := t.to[action]
	return status, ok
}

func (t Transitions) Actions() []string {
	actions := make([]string, 0, len(t.to))
	for action := range t.to {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// Next validates action against fromStatus and returns the resulting status.
func (t Transitions) Next(action, fromStatus string) (string, error) {
	if !t.Allowed(action, fromStatus) {
		return "", ErrInvalidTransition
	}
	return t.to[action], nil
}

func ValidTransition(action, fromStatus string) bool {
	return TicketTransitions.Allowed(action, fromStatus)
}

var ListingTransitions = Transitions{
	from: map[string][]string{
		"publish":   {models.ListingDraft},
		"unpublish": {models.ListingPublished},
		"archive":   {models.ListingDraft, models.ListingPublished},
	},
	to: map[string]string{
		"publish":   models.ListingPublished,
		"unpublish": models.ListingDraft,
		"archive":   models.ListingArchived,
	},
}
