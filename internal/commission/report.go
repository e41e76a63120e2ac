package commission

import (
	"sort"

	"rentdesk/internal/models"
	"rentdesk/internal/period"
)

type AgentTotal struct {
	AgentUserID string `json:"agent_user_id"`
	AgentName   string `json:"agent_name,omitempty"`
	Leases      int    `json:"leases"`
	Gross       int64  `json:"gross"`
	AgentShare  int64  `json:"agent_share"`
}

type Report struct {
	Period          period.Period            `json:"period"`
	Label           string                   `json:"label"`
	Agents          []AgentTotal             `json:"agents"`
	Gross           int64                    `json:"gross"`
	AgentShare      int64                    `json:"agent_share"`
	AgencyShare     int64                    `json:"agency_share"`
	MaintenanceCost int64                    `json:"maintenance_cost"`
	Net             int64                    `json:"net"`
	Entries         []models.CommissionEntry `json:"entries"`
	Costs           []models.MaintenanceCost `json:"costs"`
}

// Aggregate totals the entries and costs that fall inside p. Rows outside
// the period are ignored. Entries without an agent are counted only in the
// agency totals.
func Aggregate(p period.Period, entries []models.CommissionEntry, costs []models.MaintenanceCost, names map[string]string) Report {
	report := Report{
		Period:  p,
		Label:   p.Label(),
		Agents:  []AgentTotal{},
		Entries: []models.CommissionEntry{},
		Costs:   []models.MaintenanceCost{},
	}
	byAgent := make(map[string]*AgentTotal)
	for _, entry := range entries {
		if !p.Contains(entry.EarnedOn) {
			continue
		}
		report.Entries = append(report.Entries, entry)
		report.Gross += entry.Gross
		report.AgentShare += entry.AgentShare
		report.AgencyShare += entry.AgencyShare
		if entry.AgentUserID == "" {
			continue
		}
		total, ok := byAgent[entry.AgentUserID]
		if !ok {
			total = &AgentTotal{AgentUserID: entry.AgentUserID, AgentName: names[entry.AgentUserID]}
			byAgent[entry.AgentUserID] = total
		}
		total.Leases++
		total.Gross += entry.Gross
		total.AgentShare += entry.AgentShare
	}
	for _, cost := range costs {
		if !p.Contains(cost.ClosedOn) {
			continue
		}
		report.Costs = append(report.Costs, cost)
		report.MaintenanceCost += cost.Cost
	}
	for _, total := range byAgent {
		report.Agents = append(report.Agents, *total)
	}
	sort.Slice(report.Agents, func(i, j int) bool {
		if report.Agents[i].AgentShare != report.Agents[j].AgentShare {
			return report.Agents[i].AgentShare > report.Agents[j].AgentShare
		}
		return report.Agents[i].AgentUserID < report.Agents[j].AgentUserID
	})
	report.Net = report.AgencyShare - report.MaintenanceCost
	return report
}
