// Package realtime pushes stored notifications to connected SockJS clients.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"rentdesk/internal/hub"
	"rentdesk/internal/models"
	"rentdesk/internal/store"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.uber.org/zap"
)

const Prefix = "/realtime"

type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
}

// Source announces new notifications by reference and loads them on demand.
type Source interface {
	ListenNotifications(ctx context.Context, deliver func(store.NotificationRef)) error
	GetNotification(ctx context.Context, agencyID, userID, notificationID string) (models.Notification, error)
}

type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Handler authenticates the SockJS session once and then only writes; the
// subscription is fixed to the session's agency and user.
func Handler(sessions SessionLookup, h *hub.Hub, logger *zap.Logger) http.Handler {
	return sockjs.NewHandler(Prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		sessionID := sessionIDFromRequest(session.Request())
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		authSession, err := sessions.GetSession(ctx, sessionID)
		cancel()
		if err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &hub.Client{
			ID:           uuid.NewString(),
			Send:         make(chan []byte, 16),
			Subscription: hub.Subscription{AgencyID: authSession.AgencyID, UserID: authSession.UserID},
		}
		h.Register(client)
		defer h.Unregister(client)
		logger.Debug("realtime client connected", zap.String("client_id", client.ID), zap.String("user_id", authSession.UserID))

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			if _, err := session.Recv(); err != nil {
				return
			}
		}
	})
}

// Relay forwards announced notifications into the hub, reconnecting with
// exponential backoff until ctx is cancelled. Rows are only loaded when a
// client of that user is connected.
func Relay(ctx context.Context, source Source, h *hub.Hub, logger *zap.Logger) error {
	deliver := func(ref store.NotificationRef) {
		sub := hub.Subscription{AgencyID: ref.AgencyID, UserID: ref.UserID}
		if !h.HasSubscriber(sub) {
			return
		}
		loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		n, err := source.GetNotification(loadCtx, ref.AgencyID, ref.UserID, ref.NotificationID)
		cancel()
		if err != nil {
			logger.Warn("load announced notification", zap.String("notification_id", ref.NotificationID), zap.Error(err))
			return
		}
		payload, err := json.Marshal(envelope{Type: "notification", Payload: n})
		if err != nil {
			return
		}
		h.Broadcast(payload, sub)
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := source.ListenNotifications(ctx, deliver)
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errors.New("listener stopped")
		}
		logger.Warn("notification listener stopped", zap.Error(err))
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(0))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
