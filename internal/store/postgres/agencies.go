package postgres

import (
	"context"
	"errors"

	"rentdesk/internal/models"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateAgency(ctx context.Context, agency models.Agency, cfg models.CommissionConfig) (models.Agency, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Agency{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if agency.AgencyID == "" {
		agency.AgencyID = uuid.NewString()
	}
	agency.Active = true
	agency.CreatedAt = s.now()
	_, err = tx.Exec(ctx, `
		INSERT INTO agencies (agency_id, name, contact_email, active, created_at)
		VALUES ($1, $2, $3, TRUE, $4)
	`, agency.AgencyID, agency.Name, agency.ContactEmail, agency.CreatedAt)
	if err != nil {
		return models.Agency{}, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO commission_configs (agency_id, listing_commission_bp, agent_split_bp, admin_fee_bp, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, agency.AgencyID, cfg.ListingCommissionBP, cfg.AgentSplitBP, cfg.AdminFeeBP, agency.CreatedAt)
	if err != nil {
		return models.Agency{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Agency{}, err
	}
	return agency, nil
}

func (s *Store) GetAgency(ctx context.Context, agencyID string) (models.Agency, error) {
	var agency models.Agency
	row := s.pool.QueryRow(ctx, `
		SELECT agency_id, name, contact_email, active, created_at
		FROM agencies
		WHERE agency_id = $1
	`, agencyID)
	if err := row.Scan(&agency.AgencyID, &agency.Name, &agency.ContactEmail, &agency.Active, &agency.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Agency{}, store.ErrAgencyNotFound
		}
		return models.Agency{}, err
	}
	return agency, nil
}

func (s *Store) ListAgencies(ctx context.Context) ([]models.Agency, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agency_id, name, contact_email, active, created_at
		FROM agencies
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agencies []models.Agency
	for rows.Next() {
		var agency models.Agency
		if err := rows.Scan(&agency.AgencyID, &agency.Name, &agency.ContactEmail, &agency.Active, &agency.CreatedAt); err != nil {
			return nil, err
		}
		agencies = append(agencies, agency)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return agencies, nil
}

func (s *Store) UpdateAgency(ctx context.Context, agency models.Agency) (models.Agency, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE agencies
		SET name = $1, contact_email = $2, active = $3
		WHERE agency_id = $4
		RETURNING created_at
	`, agency.Name, agency.ContactEmail, agency.Active, agency.AgencyID)
	if err := row.Scan(&agency.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Agency{}, store.ErrAgencyNotFound
		}
		return models.Agency{}, err
	}
	return agency, nil
}

func (s *Store) GetCommissionConfig(ctx context.Context, agencyID string) (models.CommissionConfig, error) {
	return getCommissionConfig(ctx, s.pool, agencyID)
}

func (s *Store) UpsertCommissionConfig(ctx context.Context, cfg models.CommissionConfig) (models.CommissionConfig, error) {
	cfg.UpdatedAt = s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO commission_configs (agency_id, listing_commission_bp, agent_split_bp, admin_fee_bp, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (agency_id) DO UPDATE
		SET listing_commission_bp = EXCLUDED.listing_commission_bp,
		    agent_split_bp = EXCLUDED.agent_split_bp,
		    admin_fee_bp = EXCLUDED.admin_fee_bp,
		    updated_at = EXCLUDED.updated_at
	`, cfg.AgencyID, cfg.ListingCommissionBP, cfg.AgentSplitBP, cfg.AdminFeeBP, cfg.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.CommissionConfig{}, store.ErrAgencyNotFound
		}
		return models.CommissionConfig{}, err
	}
	return cfg, nil
}

func getCommissionConfig(ctx context.Context, q querier, agencyID string) (models.CommissionConfig, error) {
	var cfg models.CommissionConfig
	row := q.QueryRow(ctx, `
		SELECT agency_id, listing_commission_bp, agent_split_bp, admin_fee_bp, updated_at
		FROM commission_configs
		WHERE agency_id = $1
	`, agencyID)
	if err := row.Scan(&cfg.AgencyID, &cfg.ListingCommissionBP, &cfg.AgentSplitBP, &cfg.AdminFeeBP, &cfg.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CommissionConfig{}, store.ErrAgencyNotFound
		}
		return models.CommissionConfig{}, err
	}
	return cfg, nil
}

func (s *Store) GetMailboxSettings(ctx context.Context, agencyID string) (models.MailboxSettings, error) {
	var settings models.MailboxSettings
	row := s.pool.QueryRow(ctx, `
		SELECT agency_id, enabled, protocol, host, port, username, use_tls, folder, import_as,
		       poll_interval_minutes, password_sealed IS NOT NULL, updated_at
		FROM agency_mailboxes
		WHERE agency_id = $1
	`, agencyID)
	err := row.Scan(&settings.AgencyID, &settings.Enabled, &settings.Protocol, &settings.Host, &settings.Port,
		&settings.Username, &settings.UseTLS, &settings.Folder, &settings.ImportAs,
		&settings.PollIntervalMinutes, &settings.PasswordSet, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MailboxSettings{}, store.ErrMailboxNotFound
		}
		return models.MailboxSettings{}, err
	}
	return settings, nil
}

func (s *Store) UpsertMailboxSettings(ctx context.Context, settings models.MailboxSettings, sealedPassword []byte) (models.MailboxSettings, error) {
	settings.UpdatedAt = s.now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO agency_mailboxes (agency_id, enabled, protocol, host, port, username, password_sealed,
			use_tls, folder, import_as, poll_interval_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (agency_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    protocol = EXCLUDED.protocol,
		    host = EXCLUDED.host,
		    port = EXCLUDED.port,
		    username = EXCLUDED.username,
		    password_sealed = COALESCE(EXCLUDED.password_sealed, agency_mailboxes.password_sealed),
		    use_tls = EXCLUDED.use_tls,
		    folder = EXCLUDED.folder,
		    import_as = EXCLUDED.import_as,
		    poll_interval_minutes = EXCLUDED.poll_interval_minutes,
		    updated_at = EXCLUDED.updated_at
		RETURNING password_sealed IS NOT NULL
	`, settings.AgencyID, settings.Enabled, settings.Protocol, settings.Host, settings.Port, settings.Username,
		sealedPassword, settings.UseTLS, settings.Folder, settings.ImportAs, settings.PollIntervalMinutes, settings.UpdatedAt)
	if err := row.Scan(&settings.PasswordSet); err != nil {
		if isForeignKeyViolation(err) {
			return models.MailboxSettings{}, store.ErrAgencyNotFound
		}
		return models.MailboxSettings{}, err
	}
	return settings, nil
}
