package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/raykavin/pricewatch/pkg/core"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mail sends a copy of every alert to the operator mailbox
type Mail struct {
	auth              smtp.Auth
	smtpServerPort    int
	smtpServerAddress string
	to                string
	from              string
	send              sendMailFunc
}

var _ core.Notifier = Mail{}

// MailParams contains all parameters needed to initialize a Mail instance
type MailParams struct {
	SMTPServerPort    int
	SMTPServerAddress string
	To                string
	From              string
	Password          string
}

// NewMail creates a new Mail instance with the provided parameters
func NewMail(params MailParams) Mail {
	return Mail{
		from:              params.From,
		to:                params.To,
		smtpServerPort:    params.SMTPServerPort,
		smtpServerAddress: params.SMTPServerAddress,
		auth: smtp.PlainAuth(
			"",
			params.From,
			params.Password,
			params.SMTPServerAddress,
		),
		send: smtp.SendMail,
	}
}

// Notify implements core.Notifier. The Markdown of the alert is stripped and
// the destination chat is kept in the subject.
func (m Mail) Notify(ctx context.Context, destinationID, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrNotifier, err)
	}

	serverAddress := fmt.Sprintf("%s:%d", m.smtpServerAddress, m.smtpServerPort)
	plain := strings.NewReplacer("*", "", "`", "", "\\_", "_").Replace(text)

	message := fmt.Sprintf(
		"To: \"Operator\" <%s>\r\nFrom: \"pricewatch\" <%s>\r\nSubject: Price alert for chat %s\r\n\r\n%s\r\n",
		m.to,
		m.from,
		destinationID,
		plain,
	)

	if err := m.send(serverAddress, m.auth, m.from, []string{m.to}, []byte(message)); err != nil {
		return fmt.Errorf("%w: failed to send email: %w", core.ErrNotifier, err)
	}

	return nil
}
