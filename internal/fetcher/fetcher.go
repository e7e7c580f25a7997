package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"

	"support-triage-go/internal/config"
	"support-triage-go/internal/model"
)

// EmailFetcher produces batches of raw support emails for the ingestion
// pipeline. Implementations are transport details; the pipeline treats
// missing fields in their output permissively.
type EmailFetcher interface {
	FetchEmails(ctx context.Context, maxCount int) ([]model.RawEmail, error)
	Close() error
}

// GmailAPIFetcher implements EmailFetcher using the Gmail API
type GmailAPIFetcher struct {
	service   *gmail.Service
	userEmail string
	lastCheck time.Time
}

// IMAPFetcher implements EmailFetcher using IMAP
type IMAPFetcher struct {
	client    *client.Client
	lastCheck time.Time
}

// NewGmailAPIFetcher creates a new Gmail API fetcher
func NewGmailAPIFetcher(cfg *config.MailConfig) (*GmailAPIFetcher, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}
	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailAPIFetcher{
		service:   service,
		userEmail: cfg.UserEmail,
		lastCheck: time.Now().Add(-24 * time.Hour), // Start with emails from last 24 hours
	}, nil
}

// NewIMAPFetcher creates a new IMAP fetcher
func NewIMAPFetcher(cfg *config.MailConfig) (*IMAPFetcher, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return &IMAPFetcher{
		client:    c,
		lastCheck: time.Now().Add(-24 * time.Hour), // Start with emails from last 24 hours
	}, nil
}

// FetchEmails fetches recent emails using the Gmail API
func (f *GmailAPIFetcher) FetchEmails(ctx context.Context, maxCount int) ([]model.RawEmail, error) {
	query := fmt.Sprintf("after:%d", f.lastCheck.Unix())

	call := f.service.Users.Messages.List(f.userEmail).Q(query)
	if maxCount > 0 {
		call = call.MaxResults(int64(maxCount))
	}
	response, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var emails []model.RawEmail

	for _, msg := range response.Messages {
		full, err := f.service.Users.Messages.Get(f.userEmail, msg.Id).Format("full").Context(ctx).Do()
		if err != nil {
			logrus.Warnf("Failed to get message %s: %v", msg.Id, err)
			continue
		}

		email, err := f.parseGmailMessage(full)
		if err != nil {
			logrus.Warnf("Failed to parse message %s: %v", msg.Id, err)
			continue
		}

		emails = append(emails, email)
	}

	f.lastCheck = time.Now()
	return emails, nil
}

// parseGmailMessage parses a Gmail API message into a RawEmail
func (f *GmailAPIFetcher) parseGmailMessage(msg *gmail.Message) (model.RawEmail, error) {
	email := model.RawEmail{
		MessageID: msg.Id,
	}

	if msg.InternalDate > 0 {
		email.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC().Format(time.RFC3339)
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.Sender = header.Value
		case "Message-ID":
			// Prefer the RFC 5322 identifier over Gmail's internal one
			email.MessageID = strings.Trim(header.Value, "<>")
		}
	}

	if err := f.parseGmailBody(msg.Payload, &email); err != nil {
		return email, err
	}

	return email, nil
}

// parseGmailBody recursively walks message parts collecting the plain-text
// body
func (f *GmailAPIFetcher) parseGmailBody(part *gmail.MessagePart, email *model.RawEmail) error {
	if part.Body != nil && part.Body.Data != "" && part.MimeType == "text/plain" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return fmt.Errorf("failed to decode body data: %w", err)
		}
		if email.Body == "" {
			email.Body = string(data)
		}
	}

	for _, subPart := range part.Parts {
		if err := f.parseGmailBody(subPart, email); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the Gmail API fetcher
func (f *GmailAPIFetcher) Close() error {
	// Gmail API service doesn't need explicit closing
	return nil
}

// FetchEmails fetches recent emails using IMAP
func (f *IMAPFetcher) FetchEmails(ctx context.Context, maxCount int) ([]model.RawEmail, error) {
	_, err := f.client.Select("INBOX", false)
	if err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = f.lastCheck

	uids, err := f.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	if len(uids) == 0 {
		f.lastCheck = time.Now()
		return []model.RawEmail{}, nil
	}

	if maxCount > 0 && len(uids) > maxCount {
		uids = uids[len(uids)-maxCount:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	section := &imap.BodySectionName{}
	go func() {
		done <- f.client.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem(), imap.FetchUid}, messages)
	}()

	var emails []model.RawEmail

	for msg := range messages {
		email, err := f.parseIMAPMessage(msg, section)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message: %v", err)
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	f.lastCheck = time.Now()
	return emails, nil
}

// parseIMAPMessage parses an IMAP message into a RawEmail
func (f *IMAPFetcher) parseIMAPMessage(msg *imap.Message, section *imap.BodySectionName) (model.RawEmail, error) {
	var email model.RawEmail

	if msg.Envelope != nil {
		email.MessageID = strings.Trim(msg.Envelope.MessageId, "<>")
		email.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			email.Sender = msg.Envelope.From[0].Address()
		}
		if !msg.Envelope.Date.IsZero() {
			email.ReceivedAt = msg.Envelope.Date.UTC().Format(time.RFC3339)
		}
	}

	if err := f.parseIMAPBody(msg, section, &email); err != nil {
		return email, err
	}

	return email, nil
}

// parseIMAPBody extracts the plain-text body from an IMAP message
func (f *IMAPFetcher) parseIMAPBody(msg *imap.Message, section *imap.BodySectionName, email *model.RawEmail) error {
	r := msg.GetBody(section)
	if r == nil {
		return nil
	}

	entity, err := message.Read(r)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read part: %w", err)
			}

			contentType := p.Header.Get("Content-Type")
			if !strings.Contains(contentType, "text/plain") {
				continue
			}

			content, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read part body: %w", err)
			}
			if email.Body == "" {
				email.Body = string(content)
			}
		}
		return nil
	}

	// Single part message
	content, err := io.ReadAll(entity.Body)
	if err != nil {
		return fmt.Errorf("failed to read message body: %w", err)
	}
	if strings.Contains(entity.Header.Get("Content-Type"), "text/plain") || entity.Header.Get("Content-Type") == "" {
		email.Body = string(content)
	}

	return nil
}

// Close closes the IMAP fetcher
func (f *IMAPFetcher) Close() error {
	return f.client.Logout()
}
