package httpapi

import (
	"net/http"

	"rentdesk/internal/models"
)

type permission string

const (
	permissionAgencyManage    permission = "agency_manage"
	permissionAgencyConfig    permission = "agency_config"
	permissionUserManage      permission = "user_manage"
	permissionPropertyRead    permission = "property_read"
	permissionPropertyWrite   permission = "property_write"
	permissionListingWrite    permission = "listing_write"
	permissionLeadManage      permission = "lead_manage"
	permissionLeaseRead       permission = "lease_read"
	permissionLeaseWrite      permission = "lease_write"
	permissionTicketCreate    permission = "ticket_create"
	permissionTicketRead      permission = "ticket_read"
	permissionTicketAssign    permission = "ticket_assign"
	permissionQuotationManage permission = "quotation_manage"
	permissionReportRead      permission = "report_read"
	permissionAuditRead       permission = "audit_read"
)

func requirePermission(w http.ResponseWriter, r *http.Request, perm permission) (models.Session, bool) {
	session, ok := requireSession(w, r)
	if !ok {
		return models.Session{}, false
	}
	if hasPermission(session.Role, perm) {
		return session, true
	}
	writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "insufficient role")
	return models.Session{}, false
}

func hasPermission(role string, perm permission) bool {
	switch role {
	case models.RolePlatformAdmin:
		return true
	case models.RoleAgencyAdmin:
		return perm != permissionAgencyManage
	case models.RoleAgent:
		switch perm {
		case permissionPropertyRead, permissionPropertyWrite, permissionListingWrite, permissionLeadManage,
			permissionLeaseRead, permissionLeaseWrite, permissionTicketCreate, permissionTicketRead,
			permissionTicketAssign, permissionQuotationManage:
			return true
		default:
			return false
		}
	case models.RoleOwner:
		switch perm {
		case permissionPropertyRead, permissionTicketCreate, permissionTicketRead:
			return true
		default:
			return false
		}
	case models.RoleTenant:
		switch perm {
		case permissionLeaseRead, permissionTicketCreate, permissionTicketRead:
			return true
		default:
			return false
		}
	case models.RoleMaintenance:
		switch perm {
		case permissionPropertyRead, permissionTicketCreate, permissionTicketRead:
			return true
		default:
			return false
		}
	default:
		return false
	}
}
