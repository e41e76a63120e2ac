package commission

import (
	"fmt"
	"io"

	"rentdesk/internal/money"
	"rentdesk/internal/period"

	"github.com/xuri/excelize/v2"
)

const (
	agentsSheet  = "Agents"
	entriesSheet = "Entries"
)

// WriteXLSX renders the report as a workbook with an agent summary sheet and
// a per-entry sheet.
func WriteXLSX(w io.Writer, report Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), agentsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Period", report.Period.String(), report.Label},
		{},
		{"Agent", "Agent ID", "Leases", "Gross", "Agent share"},
	}
	for _, agent := range report.Agents {
		rows = append(rows, []interface{}{agent.AgentName, agent.AgentUserID, agent.Leases, money.Format(agent.Gross), money.Format(agent.AgentShare)})
	}
	rows = append(rows,
		[]interface{}{},
		[]interface{}{"Gross", money.Format(report.Gross)},
		[]interface{}{"Agent share", money.Format(report.AgentShare)},
		[]interface{}{"Agency share", money.Format(report.AgencyShare)},
		[]interface{}{"Maintenance cost", money.Format(report.MaintenanceCost)},
		[]interface{}{"Net", money.Format(report.Net)},
	)
	if err := writeRows(f, agentsSheet, rows); err != nil {
		return err
	}

	entryRows := [][]interface{}{{"Earned on", "Lease ID", "Agent ID", "Gross", "Agent share", "Agency share"}}
	for _, entry := range report.Entries {
		entryRows = append(entryRows, []interface{}{
			entry.EarnedOn.Format(period.DateLayout),
			entry.LeaseID,
			entry.AgentUserID,
			money.Format(entry.Gross),
			money.Format(entry.AgentShare),
			money.Format(entry.AgencyShare),
		})
	}
	if err := writeRows(f, entriesSheet, entryRows); err != nil {
		return err
	}

	return f.Write(w)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("%s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
