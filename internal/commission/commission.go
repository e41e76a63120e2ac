package commission

import (
	"errors"
	"fmt"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/money"
)

var ErrInvalidConfig = errors.New("invalid commission config")

type Split struct {
	Gross       int64
	AgentShare  int64
	AgencyShare int64
}

func ValidateConfig(cfg models.CommissionConfig) error {
	if err := money.ValidateBP(cfg.ListingCommissionBP); err != nil {
		return fmt.Errorf("%w: listing_commission_bp: %v", ErrInvalidConfig, err)
	}
	if err := money.ValidateBP(cfg.AgentSplitBP); err != nil {
		return fmt.Errorf("%w: agent_split_bp: %v", ErrInvalidConfig, err)
	}
	if err := money.ValidateBP(cfg.AdminFeeBP); err != nil {
		return fmt.Errorf("%w: admin_fee_bp: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Compute splits the commission earned on one month of rent. The agency
// share absorbs rounding so the two shares always sum to gross.
func Compute(monthlyRent int64, cfg models.CommissionConfig) (Split, error) {
	gross, err := money.ApplyBP(monthlyRent, cfg.ListingCommissionBP)
	if err != nil {
		return Split{}, fmt.Errorf("%w: listing_commission_bp: %v", ErrInvalidConfig, err)
	}
	agent, err := money.ApplyBP(gross, cfg.AgentSplitBP)
	if err != nil {
		return Split{}, fmt.Errorf("%w: agent_split_bp: %v", ErrInvalidConfig, err)
	}
	return Split{Gross: gross, AgentShare: agent, AgencyShare: gross - agent}, nil
}

func ForLease(lease models.Lease, cfg models.CommissionConfig, earnedOn time.Time) (models.CommissionEntry, error) {
	split, err := Compute(lease.MonthlyRent, cfg)
	if err != nil {
		return models.CommissionEntry{}, err
	}
	entry := models.CommissionEntry{
		AgencyID:    lease.AgencyID,
		LeaseID:     lease.LeaseID,
		AgentUserID: lease.AgentUserID,
		Gross:       split.Gross,
		AgentShare:  split.AgentShare,
		AgencyShare: split.AgencyShare,
		EarnedOn:    earnedOn.UTC().Truncate(24 * time.Hour),
	}
	if lease.AgentUserID == "" {
		entry.AgencyShare = split.Gross
		entry.AgentShare = 0
	}
	return entry, nil
}
