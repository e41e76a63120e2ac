package postgres

import (
	"context"
	"database/sql"
	"errors"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var propertySortColumns = map[string]string{
	"created_at": "created_at",
	"name":       "name",
	"city":       "city",
}

var unitSortColumns = map[string]string{
	"label":        "label",
	"monthly_rent": "monthly_rent",
	"bedrooms":     "bedrooms",
	"created_at":   "created_at",
}

const unitColumns = "unit_id, property_id, agency_id, label, bedrooms, bathrooms, area_m2, monthly_rent, status, created_at"

func (s *Store) CreateProperty(ctx context.Context, property models.Property) (models.Property, error) {
	if property.PropertyID == "" {
		property.PropertyID = uuid.NewString()
	}
	property.CreatedAt = s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO properties (property_id, agency_id, owner_user_id, name, address, city, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, property.PropertyID, property.AgencyID, nullIfEmpty(property.OwnerUserID), property.Name, property.Address, property.City, property.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Property{}, store.ErrUserNotFound
		}
		return models.Property{}, err
	}
	return property, nil
}

func (s *Store) GetProperty(ctx context.Context, agencyID, propertyID string) (models.Property, error) {
	property, err := scanProperty(s.pool.QueryRow(ctx, `
		SELECT property_id, agency_id, owner_user_id, name, address, city, created_at
		FROM properties
		WHERE property_id = $1 AND agency_id = $2
	`, propertyID, agencyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Property{}, store.ErrPropertyNotFound
		}
		return models.Property{}, err
	}
	return property, nil
}

func (s *Store) ListProperties(ctx context.Context, scope store.Scope, page pagination.Params) ([]models.Property, int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", scope.AgencyID)
	if scope.Role == models.RoleOwner {
		where.add("owner_user_id = $%d", scope.UserID)
	}
	total, err := countRows(ctx, s.pool, "properties", where)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT property_id, agency_id, owner_user_id, name, address, city, created_at
		FROM properties`+where.sql()+orderClause(page, propertySortColumns, "property_id")+pageClause(page), where.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var properties []models.Property
	for rows.Next() {
		property, err := scanProperty(rows)
		if err != nil {
			return nil, 0, err
		}
		properties = append(properties, property)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return properties, total, nil
}

func (s *Store) CreateUnit(ctx context.Context, unit models.Unit) (models.Unit, error) {
	if _, err := s.GetProperty(ctx, unit.AgencyID, unit.PropertyID); err != nil {
		return models.Unit{}, err
	}
	if unit.UnitID == "" {
		unit.UnitID = uuid.NewString()
	}
	if unit.Status == "" {
		unit.Status = models.UnitVacant
	}
	unit.CreatedAt = s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO units (`+unitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, unit.UnitID, unit.PropertyID, unit.AgencyID, unit.Label, unit.Bedrooms, unit.Bathrooms, unit.AreaM2, unit.MonthlyRent, unit.Status, unit.CreatedAt)
	if err != nil {
		return models.Unit{}, err
	}
	return unit, nil
}

func (s *Store) GetUnit(ctx context.Context, agencyID, unitID string) (models.Unit, error) {
	return getUnit(ctx, s.pool, agencyID, unitID)
}

func (s *Store) ListUnits(ctx context.Context, agencyID, propertyID string, page pagination.Params) ([]models.Unit, int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", agencyID)
	if propertyID != "" {
		where.add("property_id = $%d", propertyID)
	}
	total, err := countRows(ctx, s.pool, "units", where)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, "SELECT "+unitColumns+" FROM units"+where.sql()+orderClause(page, unitSortColumns, "unit_id")+pageClause(page), where.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var units []models.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, 0, err
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return units, total, nil
}

func (s *Store) SetUnitStatus(ctx context.Context, agencyID, unitID, status string) (models.Unit, error) {
	unit, err := scanUnit(s.pool.QueryRow(ctx, `
		UPDATE units SET status = $1
		WHERE unit_id = $2 AND agency_id = $3
		RETURNING `+unitColumns, status, unitID, agencyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Unit{}, store.ErrUnitNotFound
		}
		return models.Unit{}, err
	}
	return unit, nil
}

// UserCanAccessUnit reports whether the caller may file tickets against the
// unit: staff and maintenance within the agency, owners of the property and
// tenants holding a live lease.
func (s *Store) UserCanAccessUnit(ctx context.Context, scope store.Scope, unitID string) (bool, error) {
	if _, err := getUnit(ctx, s.pool, scope.AgencyID, unitID); err != nil {
		return false, err
	}
	var ok bool
	switch scope.Role {
	case models.RoleOwner:
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM units u
				JOIN properties p ON p.property_id = u.property_id
				WHERE u.unit_id = $1 AND p.owner_user_id = $2
			)
		`, unitID, scope.UserID).Scan(&ok)
		return ok, err
	case models.RoleTenant:
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM leases
				WHERE unit_id = $1 AND tenant_user_id = $2 AND status IN ('pending_signature', 'active')
			)
		`, unitID, scope.UserID).Scan(&ok)
		return ok, err
	default:
		return true, nil
	}
}

func getUnit(ctx context.Context, q querier, agencyID, unitID string) (models.Unit, error) {
	unit, err := scanUnit(q.QueryRow(ctx, "SELECT "+unitColumns+" FROM units WHERE unit_id = $1 AND agency_id = $2", unitID, agencyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Unit{}, store.ErrUnitNotFound
		}
		return models.Unit{}, err
	}
	return unit, nil
}

func scanProperty(row pgx.Row) (models.Property, error) {
	var property models.Property
	var ownerNull sql.NullString
	if err := row.Scan(&property.PropertyID, &property.AgencyID, &ownerNull, &property.Name, &property.Address, &property.City, &property.CreatedAt); err != nil {
		return models.Property{}, err
	}
	property.OwnerUserID = nullString(ownerNull)
	return property, nil
}

func scanUnit(row pgx.Row) (models.Unit, error) {
	var unit models.Unit
	err := row.Scan(&unit.UnitID, &unit.PropertyID, &unit.AgencyID, &unit.Label, &unit.Bedrooms, &unit.Bathrooms, &unit.AreaM2, &unit.MonthlyRent, &unit.Status, &unit.CreatedAt)
	return unit, err
}
