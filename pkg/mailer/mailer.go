package mailer

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// Settings holds the per-client SMTP credentials used for one send.
type Settings struct {
	Host        string
	Port        int
	Security    string // ssl or starttls
	Username    string
	Password    string
	FromName    string
	FromAddress string
}

// Message is one outbound email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
}

// Transport sends a message through a client's own mail server and returns a
// provider message id.
type Transport interface {
	Send(settings Settings, msg Message) (string, error)
}

// SMTPTransport implements Transport over SMTP with STARTTLS or implicit TLS.
type SMTPTransport struct {
	Timeout time.Duration
}

// NewSMTPTransport creates a transport with sane timeouts.
func NewSMTPTransport() *SMTPTransport {
	return &SMTPTransport{Timeout: 30 * time.Second}
}

// Send connects, authenticates and transmits the message. The returned id is
// the Message-Id header written into the email.
func (t *SMTPTransport) Send(settings Settings, msg Message) (string, error) {
	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)
	tlsConfig := &tls.Config{ServerName: settings.Host}

	var client *smtp.Client
	var err error
	if settings.Security == "ssl" {
		client, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return "", fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	defer client.Close()

	client.CommandTimeout = t.Timeout
	client.SubmissionTimeout = t.Timeout

	if settings.Username != "" {
		auth := sasl.NewPlainClient("", settings.Username, settings.Password)
		if err := client.Auth(auth); err != nil {
			return "", fmt.Errorf("smtp auth: %w", err)
		}
	}

	messageID := fmt.Sprintf("%s@%s", uuid.New().String(), settings.Host)
	raw, err := buildMessage(settings, msg, messageID)
	if err != nil {
		return "", fmt.Errorf("build message: %w", err)
	}

	if err := client.SendMail(settings.FromAddress, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return "", err
	}

	return messageID, nil
}

func buildMessage(settings Settings, msg Message, messageID string) ([]byte, error) {
	var buf bytes.Buffer

	var header mail.Header
	header.SetDate(time.Now())
	header.SetAddressList("From", []*mail.Address{{Name: settings.FromName, Address: settings.FromAddress}})
	header.SetAddressList("To", []*mail.Address{{Name: msg.ToName, Address: msg.To}})
	header.SetSubject(msg.Subject)
	header.SetMsgIDList("Message-Id", []string{messageID})
	header.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	writer, err := mail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write([]byte(msg.HTMLBody)); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
