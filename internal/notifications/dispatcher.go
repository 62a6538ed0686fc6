package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/orderportal/internal/users"
	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// UserLookup resolves the recipient of a user email.
type UserLookup interface {
	FindRecipient(ctx context.Context, id uuid.UUID) (users.Recipient, error)
}

// Dispatcher delivers in-app notifications and emails after a unit of work commits.
// Delivery failures are logged and never returned to the caller.
type Dispatcher struct {
	repo   Repository
	users  UserLookup
	mailer Mailer
	cfg    config.MailConfig
	logg   *logger.Logger
}

type DispatcherParams struct {
	Repository Repository
	Users      UserLookup
	Mailer     Mailer
	Config     config.MailConfig
	Logger     *logger.Logger
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	mailer := params.Mailer
	if mailer == nil {
		mailer = NewLogMailer(params.Logger)
	}
	return &Dispatcher{
		repo:   params.Repository,
		users:  params.Users,
		mailer: mailer,
		cfg:    params.Config,
		logg:   params.Logger,
	}, nil
}

func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message, link string) {
	d.report(ctx, userID, "notification.failed", d.notify(ctx, userID, kind, title, message, link))
}

func (d *Dispatcher) EmailUser(ctx context.Context, userID uuid.UUID, subject, body string) {
	d.report(ctx, userID, "email.failed", d.emailUser(ctx, userID, subject, body))
}

func (d *Dispatcher) Email(ctx context.Context, to, subject, body string) {
	d.report(ctx, uuid.Nil, "email.failed", d.send(ctx, to, subject, body))
}

// EmailAdmin is a no-op when no admin address is configured.
func (d *Dispatcher) EmailAdmin(ctx context.Context, subject, body string) {
	if strings.TrimSpace(d.cfg.AdminEmail) == "" {
		return
	}
	d.Email(ctx, d.cfg.AdminEmail, subject, body)
}

// NotifyLowBalance tells the user their balance dropped under the warning threshold.
func (d *Dispatcher) NotifyLowBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) {
	message := fmt.Sprintf("Your balance is low: %s. Request a deposit to keep ordering.", balance.StringFixed(2))
	err := multierr.Append(
		d.notify(ctx, userID, enums.NotificationTypeBalance, "Low balance", message, "/balance"),
		d.emailUser(ctx, userID, "Your balance is running low", message),
	)
	d.report(ctx, userID, "low_balance_notice.failed", err)
}

func (d *Dispatcher) notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message, link string) error {
	if !kind.IsValid() {
		kind = enums.NotificationTypeSystem
	}
	notification := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
	}
	if link != "" {
		notification.Link = &link
	}
	if err := d.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

func (d *Dispatcher) emailUser(ctx context.Context, userID uuid.UUID, subject, body string) error {
	rec, err := d.users.FindRecipient(ctx, userID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if !rec.Active {
		return nil
	}
	return d.send(ctx, rec.Email, subject, body)
}

func (d *Dispatcher) send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("recipient address missing")
	}
	return d.mailer.Send(ctx, Message{
		To:      to,
		From:    d.cfg.FromAddress,
		Subject: subject,
		Body:    body,
	})
}

func (d *Dispatcher) report(ctx context.Context, userID uuid.UUID, msg string, err error) {
	if err == nil || d.logg == nil {
		return
	}
	logCtx := ctx
	if userID != uuid.Nil {
		logCtx = d.logg.WithField(ctx, "user_id", userID.String())
	}
	for _, e := range multierr.Errors(err) {
		d.logg.Warn(d.logg.WithField(logCtx, "error", e.Error()), msg)
	}
}
