package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"rentdesk/internal/migrations"
	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateTicketIdempotency(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)

	requestID := uuid.NewString()
	first, created := createTicket(t, ctx, st, fx, requestID)
	second, createdAgain := createTicket(t, ctx, st, fx, requestID)

	if !created || createdAgain {
		t.Fatalf("expected only the first call to create, got %v and %v", created, createdAgain)
	}
	if first.TicketID != second.TicketID {
		t.Fatalf("expected same ticket ID for duplicate request")
	}

	var count int
	row := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM outbox_events WHERE type = 'ticket.created'
	`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 ticket.created event, got %d", count)
	}
}

func TestTicketActionReplayAndChain(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	ticket, _ := createTicket(t, ctx, st, fx, uuid.NewString())

	startID := uuid.NewString()
	started, applied, err := st.ApplyTicketAction(ctx, store.TicketActionInput{
		RequestID:   startID,
		AgencyID:    fx.agencyID,
		TicketID:    ticket.TicketID,
		Action:      "start",
		ActorUserID: fx.maintenanceID,
	})
	if err != nil || !applied {
		t.Fatalf("start ticket: applied=%v err=%v", applied, err)
	}
	if started.Status != models.TicketInProgress {
		t.Fatalf("expected in_progress, got %s", started.Status)
	}

	replayed, applied, err := st.ApplyTicketAction(ctx, store.TicketActionInput{
		RequestID: startID,
		AgencyID:  fx.agencyID,
		TicketID:  ticket.TicketID,
		Action:    "start",
	})
	if err != nil || applied {
		t.Fatalf("replay: applied=%v err=%v", applied, err)
	}
	if replayed.Status != models.TicketInProgress {
		t.Fatalf("expected replay to return current state, got %s", replayed.Status)
	}

	_, _, err = st.ApplyTicketAction(ctx, store.TicketActionInput{
		RequestID: startID,
		AgencyID:  fx.agencyID,
		TicketID:  ticket.TicketID,
		Action:    "resolve",
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for reused request id, got %v", err)
	}

	cost := int64(15000)
	for _, action := range []string{"resolve", "close"} {
		input := store.TicketActionInput{
			RequestID:   uuid.NewString(),
			AgencyID:    fx.agencyID,
			TicketID:    ticket.TicketID,
			Action:      action,
			ActorUserID: fx.agentID,
		}
		if action == "resolve" {
			input.Cost = &cost
		}
		if _, _, err := st.ApplyTicketAction(ctx, input); err != nil {
			t.Fatalf("%s ticket: %v", action, err)
		}
	}

	_, _, err = st.ApplyTicketAction(ctx, store.TicketActionInput{
		RequestID: uuid.NewString(),
		AgencyID:  fx.agencyID,
		TicketID:  ticket.TicketID,
		Action:    "reopen",
	})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	events, err := st.ListTicketEvents(ctx, fx.agencyID, ticket.TicketID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if err := store.VerifyTicketEvents(events); err != nil {
		t.Fatalf("verify chain: %v", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	costs, err := st.ListMaintenanceCosts(ctx, fx.agencyID, today.AddDate(0, 0, -1), today.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list costs: %v", err)
	}
	if len(costs) != 1 || costs[0].Cost != cost {
		t.Fatalf("expected one cost of %d, got %+v", cost, costs)
	}
}

func TestLeaseActivationRecordsCommission(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	first := createLease(t, ctx, st, fx)
	second := createLease(t, ctx, st, fx)

	for _, action := range []string{"submit", "activate"} {
		if _, err := st.ApplyLeaseAction(ctx, store.LeaseActionInput{AgencyID: fx.agencyID, LeaseID: first.LeaseID, Action: action}); err != nil {
			t.Fatalf("%s lease: %v", action, err)
		}
	}

	if _, err := st.ApplyLeaseAction(ctx, store.LeaseActionInput{AgencyID: fx.agencyID, LeaseID: second.LeaseID, Action: "submit"}); err != nil {
		t.Fatalf("submit second lease: %v", err)
	}
	_, err := st.ApplyLeaseAction(ctx, store.LeaseActionInput{AgencyID: fx.agencyID, LeaseID: second.LeaseID, Action: "activate"})
	if !errors.Is(err, store.ErrUnitUnavailable) {
		t.Fatalf("expected unit unavailable, got %v", err)
	}

	unit, err := st.GetUnit(ctx, fx.agencyID, fx.unitID)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if unit.Status != models.UnitOccupied {
		t.Fatalf("expected occupied unit, got %s", unit.Status)
	}

	var gross, agentShare, agencyShare int64
	row := pool.QueryRow(ctx, `SELECT gross, agent_share, agency_share FROM commission_entries WHERE lease_id = $1`, first.LeaseID)
	if err := row.Scan(&gross, &agentShare, &agencyShare); err != nil {
		t.Fatalf("load commission entry: %v", err)
	}
	// 1,000.00 rent at 50% commission, split 40/60.
	if gross != 50000 || agentShare != 20000 || agencyShare != 30000 {
		t.Fatalf("unexpected commission split %d/%d/%d", gross, agentShare, agencyShare)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)

	result, err := st.Login(ctx, store.LoginInput{AgencyID: fx.agencyID, Email: "AGENT@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.User.UserID != fx.agentID || result.Session.Role != models.RoleAgent {
		t.Fatalf("unexpected login result %+v", result)
	}
	session, err := st.GetSession(ctx, result.Session.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.UserID != fx.agentID {
		t.Fatalf("expected session for %s, got %s", fx.agentID, session.UserID)
	}

	_, err = st.Login(ctx, store.LoginInput{AgencyID: fx.agencyID, Email: "agent@example.com", Password: "wrong"})
	if !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestQuotationNumberingAndResponse(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	year := time.Now().UTC().Year()

	var created []models.Quotation
	for i := 0; i < 2; i++ {
		q, err := st.CreateQuotation(ctx, models.Quotation{
			AgencyID:    fx.agencyID,
			ClientName:  "Client",
			ClientEmail: "client@example.com",
			AdminFeeBP:  500,
			CreatedBy:   fx.agentID,
			Items: []models.QuotationItem{
				{Service: "Deep cleaning", Quantity: 2, UnitPrice: 10000},
			},
		})
		if err != nil {
			t.Fatalf("create quotation: %v", err)
		}
		created = append(created, q)
	}
	if created[0].Number == created[1].Number {
		t.Fatalf("expected distinct numbers")
	}
	if !strings.HasSuffix(created[1].Number, "-000002") || !strings.Contains(created[1].Number, time.Now().UTC().Format("2006")) {
		t.Fatalf("unexpected quotation number %s for %d", created[1].Number, year)
	}
	if created[0].Total != 21000 {
		t.Fatalf("expected total 21000, got %d", created[0].Total)
	}

	if _, err := st.RespondQuotation(ctx, created[0].PublicToken, "accept"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected draft quotation to reject response, got %v", err)
	}
	if _, err := st.ApplyQuotationAction(ctx, store.QuotationActionInput{AgencyID: fx.agencyID, QuotationID: created[0].QuotationID, Action: "send", ActorUserID: fx.agentID}); err != nil {
		t.Fatalf("send quotation: %v", err)
	}
	accepted, err := st.RespondQuotation(ctx, created[0].PublicToken, "accept")
	if err != nil {
		t.Fatalf("accept quotation: %v", err)
	}
	if accepted.Status != models.QuotationAccepted || accepted.RespondedAt == nil {
		t.Fatalf("unexpected accepted quotation %+v", accepted)
	}
}

func TestLeaseActivationRequiresVacantUnit(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	lease := createLease(t, ctx, st, fx)
	if _, err := st.ApplyLeaseAction(ctx, store.LeaseActionInput{AgencyID: fx.agencyID, LeaseID: lease.LeaseID, Action: "submit"}); err != nil {
		t.Fatalf("submit lease: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE units SET status = $1 WHERE unit_id = $2`, models.UnitMaintenance, fx.unitID); err != nil {
		t.Fatalf("put unit under maintenance: %v", err)
	}

	_, err := st.ApplyLeaseAction(ctx, store.LeaseActionInput{AgencyID: fx.agencyID, LeaseID: lease.LeaseID, Action: "activate"})
	if !errors.Is(err, store.ErrUnitUnavailable) {
		t.Fatalf("expected unit unavailable, got %v", err)
	}
	unit, err := st.GetUnit(ctx, fx.agencyID, fx.unitID)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if unit.Status != models.UnitMaintenance {
		t.Fatalf("expected unit to stay under maintenance, got %s", unit.Status)
	}
}

func TestTicketActionRequestIDBoundToTicket(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	first, _ := createTicket(t, ctx, st, fx, uuid.NewString())
	second, _ := createTicket(t, ctx, st, fx, uuid.NewString())

	requestID := uuid.NewString()
	if _, _, err := st.ApplyTicketAction(ctx, store.TicketActionInput{
		RequestID: requestID,
		AgencyID:  fx.agencyID,
		TicketID:  first.TicketID,
		Action:    "start",
	}); err != nil {
		t.Fatalf("start first ticket: %v", err)
	}

	_, applied, err := st.ApplyTicketAction(ctx, store.TicketActionInput{
		RequestID: requestID,
		AgencyID:  fx.agencyID,
		TicketID:  second.TicketID,
		Action:    "start",
	})
	if !errors.Is(err, store.ErrConflict) || applied {
		t.Fatalf("expected conflict for request id reused on another ticket, got applied=%v err=%v", applied, err)
	}
	untouched, err := st.GetTicket(ctx, fx.agencyID, second.TicketID)
	if err != nil {
		t.Fatalf("get second ticket: %v", err)
	}
	if untouched.Status != models.TicketOpen {
		t.Fatalf("expected second ticket to stay open, got %s", untouched.Status)
	}
}

func TestOwnerTicketListingFollowsUnitOwnership(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	owned, _ := createTicket(t, ctx, st, fx, uuid.NewString())

	other, err := st.CreateProperty(ctx, models.Property{AgencyID: fx.agencyID, Name: "Mill Yard", City: "Bristol"})
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	otherUnit, err := st.CreateUnit(ctx, models.Unit{AgencyID: fx.agencyID, PropertyID: other.PropertyID, Label: "1A"})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, _, err := st.CreateTicket(ctx, store.CreateTicketInput{
		RequestID:      uuid.NewString(),
		AgencyID:       fx.agencyID,
		UnitID:         otherUnit.UnitID,
		ReporterUserID: fx.tenantID,
		Kind:           models.TicketKindCleaning,
		Priority:       "low",
		Title:          "Stairwell",
	}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	tickets, total, err := st.ListTickets(ctx, fx.agencyID, models.TicketFilter{OwnerUserID: fx.ownerID}, pagination.Params{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}
	if total != 1 || len(tickets) != 1 || tickets[0].TicketID != owned.TicketID {
		t.Fatalf("expected only the ticket on the owner's unit, got total=%d tickets=%+v", total, tickets)
	}
}

func TestMailboxUpsertKeepsSealedPassword(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	if _, err := st.GetMailboxSettings(ctx, fx.agencyID); !errors.Is(err, store.ErrMailboxNotFound) {
		t.Fatalf("expected mailbox not found, got %v", err)
	}

	settings := models.MailboxSettings{
		AgencyID:            fx.agencyID,
		Enabled:             true,
		Protocol:            models.MailboxIMAP,
		Host:                "mail.example.com",
		Port:                993,
		Username:            "inbox",
		UseTLS:              true,
		Folder:              "INBOX",
		ImportAs:            models.ImportAsLead,
		PollIntervalMinutes: 15,
	}
	saved, err := st.UpsertMailboxSettings(ctx, settings, []byte("sealed-bytes"))
	if err != nil {
		t.Fatalf("upsert mailbox: %v", err)
	}
	if !saved.PasswordSet {
		t.Fatalf("expected password to be set")
	}

	settings.ImportAs = models.ImportAsTicket
	if _, err := st.UpsertMailboxSettings(ctx, settings, nil); err != nil {
		t.Fatalf("update mailbox: %v", err)
	}
	got, err := st.GetMailboxSettings(ctx, fx.agencyID)
	if err != nil {
		t.Fatalf("get mailbox: %v", err)
	}
	if !got.PasswordSet || got.ImportAs != models.ImportAsTicket || got.Host != "mail.example.com" {
		t.Fatalf("unexpected mailbox after update: %+v", got)
	}

	settings.AgencyID = uuid.NewString()
	if _, err := st.UpsertMailboxSettings(ctx, settings, nil); !errors.Is(err, store.ErrAgencyNotFound) {
		t.Fatalf("expected agency not found, got %v", err)
	}
}

func TestOutboxClaimSeesLateCommit(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	if _, err := pool.Exec(ctx, `UPDATE outbox_events SET processed_at = NOW()`); err != nil {
		t.Fatalf("settle seed events: %v", err)
	}

	slow, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin slow tx: %v", err)
	}
	defer slow.Rollback(ctx)
	if err := insertOutboxEvent(ctx, slow, fx.agencyID, "lead.created", map[string]string{"name": "slow"}); err != nil {
		t.Fatalf("insert slow event: %v", err)
	}
	if err := insertOutboxEvent(ctx, pool, fx.agencyID, "lead.created", map[string]string{"name": "fast"}); err != nil {
		t.Fatalf("insert fast event: %v", err)
	}

	now := time.Now().UTC()
	claimed, err := st.ClaimOutboxEvents(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected only the committed event, got %d", len(claimed))
	}
	if err := st.MarkOutboxProcessed(ctx, claimed[0].Seq); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	if err := slow.Commit(ctx); err != nil {
		t.Fatalf("commit slow tx: %v", err)
	}
	late, err := st.ClaimOutboxEvents(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim after late commit: %v", err)
	}
	if len(late) != 1 || late[0].Seq >= claimed[0].Seq {
		t.Fatalf("expected the lower seq committed late, got %+v after %d", late, claimed[0].Seq)
	}
}

func TestOutboxRetryThenDeadLetter(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	if _, err := pool.Exec(ctx, `UPDATE outbox_events SET processed_at = NOW()`); err != nil {
		t.Fatalf("settle seed events: %v", err)
	}
	if err := insertOutboxEvent(ctx, pool, fx.agencyID, "lead.created", map[string]string{"name": "Ana"}); err != nil {
		t.Fatalf("insert event: %v", err)
	}

	now := time.Now().UTC()
	claimed, err := st.ClaimOutboxEvents(ctx, now, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %d events, err=%v", len(claimed), err)
	}
	again, err := st.ClaimOutboxEvents(ctx, now, 10)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected claimed event to be leased, got %d err=%v", len(again), err)
	}

	seq := claimed[0].Seq
	if err := st.MarkOutboxRetry(ctx, seq, 1, "boom", now.Add(-time.Second)); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	retried, err := st.ClaimOutboxEvents(ctx, now, 10)
	if err != nil || len(retried) != 1 || retried[0].Attempts != 1 {
		t.Fatalf("expected retried event with one attempt, got %+v err=%v", retried, err)
	}

	if err := st.DeadLetterOutboxEvent(ctx, seq, 2, "boom"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE outbox_events SET next_attempt_at = NOW() - INTERVAL '1 hour' WHERE seq = $1`, seq); err != nil {
		t.Fatalf("rewind retry time: %v", err)
	}
	parked, err := st.ClaimOutboxEvents(ctx, now, 10)
	if err != nil || len(parked) != 0 {
		t.Fatalf("expected dead-lettered event to stay parked, got %d err=%v", len(parked), err)
	}
}

func TestNotificationAnnouncementCarriesOnlyIDs(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	fx := seedBaseData(t, ctx, st)
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire listener: %v", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		t.Fatalf("listen: %v", err)
	}

	title := strings.Repeat("t", 9000)
	body := strings.Repeat("b", 20000)
	created, ok, err := st.InsertNotification(ctx, models.Notification{
		AgencyID:  fx.agencyID,
		UserID:    fx.tenantID,
		Kind:      "ticket",
		EventType: "ticket.commented",
		Title:     title,
		Body:      body,
	}, uuid.NewString())
	if err != nil || !ok {
		t.Fatalf("insert oversized notification: ok=%v err=%v", ok, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := conn.Conn().WaitForNotification(waitCtx)
	if err != nil {
		t.Fatalf("wait for announcement: %v", err)
	}
	var ref store.NotificationRef
	if err := json.Unmarshal([]byte(msg.Payload), &ref); err != nil {
		t.Fatalf("decode announcement: %v", err)
	}
	if ref.NotificationID != created.NotificationID || ref.UserID != fx.tenantID || len(msg.Payload) > 256 {
		t.Fatalf("unexpected announcement %q", msg.Payload)
	}

	loaded, err := st.GetNotification(ctx, ref.AgencyID, ref.UserID, ref.NotificationID)
	if err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if loaded.Title != title || loaded.Body != body {
		t.Fatalf("expected the full row to be loaded")
	}
	if _, err := st.GetNotification(ctx, ref.AgencyID, fx.agentID, ref.NotificationID); !errors.Is(err, store.ErrNotificationNotFound) {
		t.Fatalf("expected another user's lookup to miss, got %v", err)
	}
}

const testPassword = "correct horse battery"

type fixture struct {
	agencyID      string
	agentID       string
	tenantID      string
	maintenanceID string
	ownerID       string
	unitID        string
}

func seedBaseData(t *testing.T, ctx context.Context, st *Store) fixture {
	t.Helper()
	agency, err := st.CreateAgency(ctx, models.Agency{Name: "Harbour Lets", ContactEmail: "office@example.com"}, models.CommissionConfig{
		ListingCommissionBP: 5000,
		AgentSplitBP:        4000,
		AdminFeeBP:          500,
	})
	if err != nil {
		t.Fatalf("create agency: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users := map[string]string{}
	for _, role := range []string{models.RoleAgent, models.RoleTenant, models.RoleMaintenance, models.RoleOwner} {
		user, err := st.CreateUser(ctx, models.User{AgencyID: agency.AgencyID, Role: role, Email: role + "@example.com", FullName: role}, string(hash))
		if err != nil {
			t.Fatalf("create %s: %v", role, err)
		}
		users[role] = user.UserID
	}

	property, err := st.CreateProperty(ctx, models.Property{AgencyID: agency.AgencyID, OwnerUserID: users[models.RoleOwner], Name: "Dock House", City: "Bristol"})
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	unit, err := st.CreateUnit(ctx, models.Unit{AgencyID: agency.AgencyID, PropertyID: property.PropertyID, Label: "2B", Bedrooms: 2, MonthlyRent: 100000})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}

	return fixture{
		agencyID:      agency.AgencyID,
		agentID:       users[models.RoleAgent],
		tenantID:      users[models.RoleTenant],
		maintenanceID: users[models.RoleMaintenance],
		ownerID:       users[models.RoleOwner],
		unitID:        unit.UnitID,
	}
}

func createTicket(t *testing.T, ctx context.Context, st *Store, fx fixture, requestID string) (models.Ticket, bool) {
	t.Helper()
	ticket, created, err := st.CreateTicket(ctx, store.CreateTicketInput{
		RequestID:      requestID,
		AgencyID:       fx.agencyID,
		UnitID:         fx.unitID,
		ReporterUserID: fx.tenantID,
		Kind:           models.TicketKindMaintenance,
		Priority:       "high",
		Title:          "Leaking tap",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket, created
}

func createLease(t *testing.T, ctx context.Context, st *Store, fx fixture) models.Lease {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lease, err := st.CreateLease(ctx, models.Lease{
		AgencyID:     fx.agencyID,
		UnitID:       fx.unitID,
		TenantUserID: fx.tenantID,
		AgentUserID:  fx.agentID,
		StartDate:    start,
		EndDate:      start.AddDate(1, 0, -1),
	})
	if err != nil {
		t.Fatalf("create lease: %v", err)
	}
	return lease
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execAdmin(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if _, err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execAdmin(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewStore(pool), pool, cleanup
}

func execAdmin(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}
