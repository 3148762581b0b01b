package mailbox

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// Settings holds one client's inbound mailbox credentials.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
}

// InboundMessage is a normalized inbound email candidate for reply matching.
type InboundMessage struct {
	MessageID  string
	FromEmail  string
	FromName   string
	Subject    string
	Snippet    string
	ReceivedAt time.Time
}

// Reader lists messages received after a time cutoff.
type Reader interface {
	FetchSince(settings Settings, since time.Time) ([]InboundMessage, error)
}

// IMAPReader implements Reader over IMAP with TLS.
type IMAPReader struct{}

// NewIMAPReader creates a mailbox reader.
func NewIMAPReader() *IMAPReader {
	return &IMAPReader{}
}

// FetchSince connects to the client's INBOX and returns messages received
// after the cutoff, each with a normalized sender and a short body snippet.
func (r *IMAPReader) FetchSince(settings Settings, since time.Time) ([]InboundMessage, error) {
	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(settings.Username, settings.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("imap select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var results []InboundMessage
	for msg := range messages {
		if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
			continue
		}
		from := msg.Envelope.From[0]

		inbound := InboundMessage{
			MessageID:  msg.Envelope.MessageId,
			FromEmail:  strings.ToLower(from.Address()),
			FromName:   from.PersonalName,
			Subject:    msg.Envelope.Subject,
			ReceivedAt: msg.Envelope.Date,
		}
		if body := msg.GetBody(section); body != nil {
			inbound.Snippet = extractSnippet(body)
		}
		results = append(results, inbound)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	return results, nil
}

// extractSnippet pulls the first inline text part, truncated for storage.
func extractSnippet(body io.Reader) string {
	mr, err := mail.CreateReader(body)
	if err != nil {
		return ""
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return ""
		}
		if err != nil {
			log.Printf("[Mailbox] Error reading message part: %v", err)
			return ""
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			raw, err := io.ReadAll(io.LimitReader(part.Body, 1000))
			if err != nil {
				return ""
			}
			snippet := strings.TrimSpace(string(raw))
			if len(snippet) > 500 {
				snippet = snippet[:500]
			}
			return snippet
		}
	}
}

// GuessOrganization derives an organization name from an email domain.
// Free mail providers yield no organization.
func GuessOrganization(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(email[at+1:])
	switch domain {
	case "gmail.com", "yahoo.com", "outlook.com", "hotmail.com", "icloud.com", "aol.com", "proton.me", "protonmail.com":
		return ""
	}
	name := domain
	if dot := strings.Index(name, "."); dot > 0 {
		name = name[:dot]
	}
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
