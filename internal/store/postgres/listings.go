package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var listingSortColumns = map[string]string{
	"published_at": "l.published_at",
	"price":        "l.price",
	"bedrooms":     "u.bedrooms",
	"created_at":   "l.created_at",
	"title":        "l.title",
}

const (
	listingFrom    = "listings l JOIN units u ON u.unit_id = l.unit_id JOIN properties p ON p.property_id = u.property_id"
	listingColumns = "l.listing_id, l.agency_id, l.unit_id, l.title, l.description, l.price, l.kind, l.status, p.city, u.bedrooms, l.published_at, l.created_at"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) CreateListing(ctx context.Context, listing models.Listing) (models.Listing, error) {
	if _, err := getUnit(ctx, s.pool, listing.AgencyID, listing.UnitID); err != nil {
		return models.Listing{}, err
	}
	if listing.ListingID == "" {
		listing.ListingID = uuid.NewString()
	}
	listing.Status = models.ListingDraft
	listing.PublishedAt = nil
	_, err := s.pool.Exec(ctx, `
		INSERT INTO listings (listing_id, agency_id, unit_id, title, description, price, kind, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, listing.ListingID, listing.AgencyID, listing.UnitID, listing.Title, listing.Description, listing.Price, listing.Kind, listing.Status, s.now())
	if err != nil {
		return models.Listing{}, err
	}
	return s.GetListing(ctx, listing.AgencyID, listing.ListingID)
}

func (s *Store) GetListing(ctx context.Context, agencyID, listingID string) (models.Listing, error) {
	return getListing(ctx, s.pool, agencyID, listingID, false)
}

func (s *Store) UpdateListing(ctx context.Context, listing models.Listing) (models.Listing, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE listings
		SET title = $1, description = $2, price = $3, kind = $4
		WHERE listing_id = $5 AND agency_id = $6 AND status <> 'archived'
	`, listing.Title, listing.Description, listing.Price, listing.Kind, listing.ListingID, listing.AgencyID)
	if err != nil {
		return models.Listing{}, err
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.GetListing(ctx, listing.AgencyID, listing.ListingID)
		if err != nil {
			return models.Listing{}, err
		}
		if existing.Status == models.ListingArchived {
			return models.Listing{}, store.ErrInvalidTransition
		}
	}
	return s.GetListing(ctx, listing.AgencyID, listing.ListingID)
}

func (s *Store) ListListings(ctx context.Context, agencyID, status string, page pagination.Params) ([]models.Listing, int, error) {
	var where whereBuilder
	where.add("l.agency_id = $%d", agencyID)
	if status != "" {
		where.add("l.status = $%d", status)
	}
	return s.queryListings(ctx, where, page)
}

func (s *Store) SearchListings(ctx context.Context, filter models.ListingFilter, page pagination.Params) ([]models.Listing, int, error) {
	var where whereBuilder
	where.raw("l.status = 'published'")
	if filter.AgencyID != "" {
		where.add("l.agency_id = $%d", filter.AgencyID)
	}
	if filter.City != "" {
		where.add("lower(p.city) = lower($%d)", filter.City)
	}
	if filter.Kind != "" {
		where.add("l.kind = $%d", filter.Kind)
	}
	if filter.MinPrice > 0 {
		where.add("l.price >= $%d", filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		where.add("l.price <= $%d", filter.MaxPrice)
	}
	if filter.MinBedrooms > 0 {
		where.add("u.bedrooms >= $%d", filter.MinBedrooms)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where.add("(l.title ILIKE $%[1]d OR l.description ILIKE $%[1]d)", "%"+likeEscaper.Replace(q)+"%")
	}
	return s.queryListings(ctx, where, page)
}

func (s *Store) ApplyListingAction(ctx context.Context, agencyID, listingID, action string) (models.Listing, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Listing{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := getListing(ctx, tx, agencyID, listingID, true)
	if err != nil {
		return models.Listing{}, err
	}
	next, err := store.ListingTransitions.Next(action, current.Status)
	if err != nil {
		return models.Listing{}, err
	}

	query := `UPDATE listings SET status = $1`
	if next == models.ListingPublished {
		query += `, published_at = NOW()`
	}
	query += ` WHERE listing_id = $2 AND agency_id = $3`
	if _, err = tx.Exec(ctx, query, next, listingID, agencyID); err != nil {
		return models.Listing{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Listing{}, err
	}
	return s.GetListing(ctx, agencyID, listingID)
}

func (s *Store) queryListings(ctx context.Context, where whereBuilder, page pagination.Params) ([]models.Listing, int, error) {
	total, err := countRows(ctx, s.pool, listingFrom, where)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+listingColumns+" FROM "+listingFrom+where.sql()+orderClause(page, listingSortColumns, "l.listing_id")+pageClause(page), where.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

func getListing(ctx context.Context, q querier, agencyID, listingID string, forUpdate bool) (models.Listing, error) {
	query := "SELECT " + listingColumns + " FROM " + listingFrom + " WHERE l.listing_id = $1 AND l.agency_id = $2"
	if forUpdate {
		query += " FOR UPDATE OF l"
	}
	listing, err := scanListing(q.QueryRow(ctx, query, listingID, agencyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Listing{}, store.ErrListingNotFound
		}
		return models.Listing{}, err
	}
	return listing, nil
}

func scanListing(row pgx.Row) (models.Listing, error) {
	var listing models.Listing
	var publishedNull sql.NullTime
	if err := row.Scan(&listing.ListingID, &listing.AgencyID, &listing.UnitID, &listing.Title, &listing.Description, &listing.Price, &listing.Kind, &listing.Status, &listing.City, &listing.Bedrooms, &publishedNull, &listing.CreatedAt); err != nil {
		return models.Listing{}, err
	}
	listing.PublishedAt = nullTimePtr(publishedNull)
	return listing, nil
}
