package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nurtura/config"
	"nurtura/engine"
	"nurtura/tracker"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ReplyWorker polls the shared reply inbox over IMAP. A reply from a known
// recipient counts as a conversion: every live sequence instance for that
// recipient is marked converted so pending steps short-circuit instead of
// sending into an active conversation.
type ReplyWorker struct {
	Tracker  tracker.Tracker
	Notifier engine.Notifier // optional
	Logger   *logrus.Entry

	IMAP     config.IMAPConfig
	Google   config.OAuthConfig
	Interval time.Duration
}

func NewReplyWorker(tr tracker.Tracker, logger *logrus.Entry, imapCfg config.IMAPConfig, google config.OAuthConfig, interval time.Duration) *ReplyWorker {
	return &ReplyWorker{
		Tracker:  tr,
		Logger:   logger,
		IMAP:     imapCfg,
		Google:   google,
		Interval: interval,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	if !rw.IMAP.Enabled {
		rw.Logger.Info("Reply worker disabled, no IMAP host configured")
		return
	}

	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)
	rw.Logger.Info("Reply worker started")

	ticker := time.NewTicker(rw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Info("Reply worker shutting down...")
			return
		case <-ticker.C:
			if err := rw.checkInbox(ctx); err != nil {
				rw.Logger.WithError(err).Error("Reply inbox check failed")
			}
		}
	}
}

func (rw *ReplyWorker) checkInbox(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", rw.IMAP.Host, rw.IMAP.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("dialing IMAP server: %w", err)
	}
	defer c.Logout()

	if err := rw.authenticate(ctx, c); err != nil {
		return err
	}

	if _, err := c.Select(rw.IMAP.Mailbox, false); err != nil {
		return fmt.Errorf("selecting mailbox %s: %w", rw.IMAP.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("searching for unseen messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope}, messages)
	}()

	handled := new(imap.SeqSet)
	for msg := range messages {
		if rw.handleMessage(ctx, msg, section) {
			handled.AddNum(msg.SeqNum)
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}
	if handled.Empty() {
		return nil
	}

	// Only handled messages get flagged; a message whose conversion failed
	// stays unseen so the next poll retries it.
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.Store(handled, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("marking messages seen: %w", err)
	}
	return nil
}

func (rw *ReplyWorker) authenticate(ctx context.Context, c *client.Client) error {
	if rw.Google.ClientID != "" && rw.Google.RefreshToken != "" {
		conf := &oauth2.Config{
			ClientID:     rw.Google.ClientID,
			ClientSecret: rw.Google.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: rw.Google.TokenURL},
		}
		tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: rw.Google.RefreshToken}).Token()
		if err != nil {
			return fmt.Errorf("refreshing OAuth token: %w", err)
		}
		auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: rw.IMAP.Username,
			Token:    tok.AccessToken,
			Host:     rw.IMAP.Host,
			Port:     rw.IMAP.Port,
		})
		if err := c.Authenticate(auth); err != nil {
			return fmt.Errorf("OAuth IMAP authentication failed: %w", err)
		}
		return nil
	}

	if err := c.Login(rw.IMAP.Username, rw.IMAP.Password); err != nil {
		return fmt.Errorf("IMAP login failed: %w", err)
	}
	return nil
}

// handleMessage reports whether the message was fully handled. Unparseable
// mail and auto-replies count as handled so they do not loop forever; a
// tracker error does not, so the message stays unseen and is retried.
func (rw *ReplyWorker) handleMessage(ctx context.Context, msg *imap.Message, section *imap.BodySectionName) bool {
	body := msg.GetBody(section)
	if body == nil {
		return true
	}
	mr, err := mail.CreateReader(body)
	if err != nil {
		rw.Logger.WithError(err).Debug("Skipping unparseable message")
		return true
	}

	from, err := mr.Header.AddressList("From")
	if err != nil || len(from) == 0 {
		return true
	}
	subject, _ := mr.Header.Subject()
	if isAutoReply(subject, mr.Header) {
		return true
	}

	sender := strings.ToLower(from[0].Address)
	converted, err := rw.Tracker.ConvertByRecipient(ctx, sender)
	if err != nil {
		rw.Logger.WithError(err).WithField("sender", sender).Error("Failed to convert replying recipient")
		return false
	}
	if converted == 0 {
		return true
	}

	rw.Logger.WithFields(logrus.Fields{
		"sender":    sender,
		"instances": converted,
	}).Info("Reply received, instances converted")
	if rw.Notifier != nil {
		rw.Notifier.Notify(fmt.Sprintf("%s replied (%q); %d sequence(s) stopped", sender, subject, converted))
	}
	return true
}

func isAutoReply(subject string, header mail.Header) bool {
	if v := header.Get("Auto-Submitted"); v != "" && !strings.EqualFold(v, "no") {
		return true
	}
	lower := strings.ToLower(subject)
	for _, marker := range []string{"out of office", "auto-reply", "automatic reply", "autoreply"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
