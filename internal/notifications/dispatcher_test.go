package notifications

import (
	"context"
	"errors"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderportal/internal/users"
	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db/dbtest"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
)

type stubMailer struct {
	sent   []Message
	sendFn func(msg Message) error
}

func (s *stubMailer) Send(_ context.Context, msg Message) error {
	if s.sendFn != nil {
		if err := s.sendFn(msg); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestDispatcherDeliversNotificationsAndEmail(t *testing.T) {
	conn := dbtest.Open(t)
	mailer := &stubMailer{}
	dispatcher, err := NewDispatcher(DispatcherParams{
		Repository: NewRepository(conn),
		Users:      users.NewRepository(conn),
		Mailer:     mailer,
		Config:     config.MailConfig{FromAddress: "portal@orderportal.test", AdminEmail: "ops@orderportal.test"},
	})
	require.NoError(t, err)
	ctx := context.Background()
	user := dbtest.SeedUser(t, conn, "0")

	dispatcher.Notify(ctx, user.ID, enums.NotificationTypeOrder, "Order placed", "Thanks", "/orders/1")
	dispatcher.EmailUser(ctx, user.ID, "Order confirmation", "Thanks")
	dispatcher.EmailAdmin(ctx, "New deposit request", "Review it")
	dispatcher.NotifyLowBalance(ctx, user.ID, dbtest.Money("4.5"))

	var stored []models.Notification
	require.NoError(t, conn.Where("user_id = ?", user.ID).Order("created_at ASC").Find(&stored).Error)
	require.Len(t, stored, 2)
	require.Equal(t, "/orders/1", *stored[0].Link)
	require.Equal(t, enums.NotificationTypeBalance, stored[1].Type)
	require.Contains(t, stored[1].Message, "4.50")

	require.Len(t, mailer.sent, 3)
	require.Equal(t, user.Email, mailer.sent[0].To)
	require.Equal(t, "portal@orderportal.test", mailer.sent[0].From)
	require.Equal(t, "ops@orderportal.test", mailer.sent[1].To)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	conn := dbtest.Open(t)
	mailer := &stubMailer{sendFn: func(Message) error { return errors.New("smtp down") }}
	dispatcher, err := NewDispatcher(DispatcherParams{
		Repository: NewRepository(conn),
		Users:      users.NewRepository(conn),
		Mailer:     mailer,
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NotPanics(t, func() {
		dispatcher.EmailUser(ctx, uuid.New(), "subject", "body")
		dispatcher.EmailAdmin(ctx, "subject", "body")
		dispatcher.NotifyLowBalance(ctx, uuid.New(), dbtest.Money("1"))
	})
	require.Empty(t, mailer.sent)
}

func TestPubSubMailerPublishesJSON(t *testing.T) {
	var published *pubsub.Message
	mailer := &PubSubMailer{publish: func(_ context.Context, msg *pubsub.Message) (string, error) {
		published = msg
		return "server-1", nil
	}}

	require.Error(t, mailer.Send(context.Background(), Message{Subject: "no recipient"}))
	require.NoError(t, mailer.Send(context.Background(), Message{To: "a@b.test", Subject: "Hi", Body: "Body"}))
	require.NotNil(t, published)
	require.Equal(t, "email", published.Attributes["kind"])
	require.JSONEq(t, `{"to":"a@b.test","from":"","subject":"Hi","body":"Body"}`, string(published.Data))

	_, err := NewPubSubMailer(nil)
	require.Error(t, err)
}

func TestDispatcherSkipsEmailForDeactivatedUser(t *testing.T) {
	conn := dbtest.Open(t)
	mailer := &stubMailer{}
	dispatcher, err := NewDispatcher(DispatcherParams{
		Repository: NewRepository(conn),
		Users:      users.NewRepository(conn),
		Mailer:     mailer,
	})
	require.NoError(t, err)
	user := dbtest.SeedUser(t, conn, "0")
	require.NoError(t, conn.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)

	dispatcher.EmailUser(context.Background(), user.ID, "Order confirmation", "Thanks")
	require.Empty(t, mailer.sent)
}
