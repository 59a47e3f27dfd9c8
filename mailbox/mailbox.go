package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/courtdata/results-ingest/model"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	InsecureSkipVerify bool

	// Senders are searched one by one; results are unioned.
	Senders []string
	// Subject is matched as a substring by the server-side SUBJECT search.
	Subject string
	// AttachmentFilter is the case-folded filename substring identifying
	// the report attachment.
	AttachmentFilter string
}

// Scanner finds the newest unread report mail and extracts its attachment.
// Each Scan opens a fresh IMAP session and logs out on every exit path.
type Scanner struct {
	opts   Options
	logger *slog.Logger
}

func NewScanner(opts Options, logger *slog.Logger) (*Scanner, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if len(opts.Senders) == 0 {
		return nil, fmt.Errorf("at least one sender is required")
	}
	if opts.AttachmentFilter == "" {
		return nil, fmt.Errorf("attachment filter is empty")
	}
	return &Scanner{opts: opts, logger: logger}, nil
}

// Scan searches the inbox for unread report mail, claims every match by
// marking it read, and returns the matching attachment of the newest one.
// It returns (nil, nil) when there is no unread match, or when the newest
// match carries no matching attachment; neither case is an error.
func (s *Scanner) Scan(ctx context.Context) (*model.Attachment, error) {
	client, cleanup, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}

	uids, err := s.searchUnread(client)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		if s.logger != nil {
			s.logger.Debug("no unread report mail")
		}
		return nil, nil
	}

	uidSet := imapv2.UIDSetNum(uids...)

	fetchOpts := &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{{}},
	}
	messages, err := client.Fetch(uidSet, fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	// Claim every fetched message now, even the ones we discard below.
	// A stale report left unread would be re-fetched forever.
	storeFlags := &imapv2.StoreFlags{
		Op:     imapv2.StoreFlagsAdd,
		Silent: true,
		Flags:  []imapv2.Flag{imapv2.FlagSeen},
	}
	if err := client.Store(uidSet, storeFlags, nil).Close(); err != nil {
		return nil, fmt.Errorf("mark messages read: %w", err)
	}

	candidates := make([]Candidate, 0, len(messages))
	for _, msg := range messages {
		raw := msg.FindBodySection(&imapv2.FetchItemBodySection{})
		if len(raw) == 0 {
			if s.logger != nil {
				s.logger.Warn("fetched message has no body", "uid", msg.UID)
			}
			continue
		}
		candidates = append(candidates, NewCandidate(raw))
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	selected := PickNewest(candidates)
	if s.logger != nil {
		for i := range candidates {
			if i != selected {
				s.logger.Info("skipped older report mail", "subject", candidates[i].Subject, "date", candidates[i].Date)
			}
		}
	}

	att, err := ExtractReport(candidates[selected].Raw, s.opts.AttachmentFilter)
	if err != nil {
		return nil, err
	}
	if att == nil {
		if s.logger != nil {
			s.logger.Info("selected mail has no matching attachment", "subject", candidates[selected].Subject)
		}
		return nil, nil
	}

	if s.logger != nil {
		s.logger.Info("report attachment found", "filename", att.Filename, "subject", att.Subject, "date", att.Date, "size", len(att.Data))
	}
	return att, nil
}

// searchUnread runs one UNSEEN+FROM+SUBJECT search per configured sender and
// unions the results. A message matching several senders is returned once.
func (s *Scanner) searchUnread(client *imapclient.Client) ([]imapv2.UID, error) {
	seen := make(map[imapv2.UID]struct{})
	var uids []imapv2.UID

	for _, sender := range s.opts.Senders {
		criteria := &imapv2.SearchCriteria{
			NotFlag: []imapv2.Flag{imapv2.FlagSeen},
			Header: []imapv2.SearchCriteriaHeaderField{
				{Key: "From", Value: sender},
				{Key: "Subject", Value: s.opts.Subject},
			},
		}
		data, err := client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return nil, fmt.Errorf("search sender %s: %w", sender, err)
		}
		for _, uid := range data.AllUIDs() {
			if _, ok := seen[uid]; ok {
				continue
			}
			seen[uid] = struct{}{}
			uids = append(uids, uid)
		}
	}

	return uids, nil
}

func (s *Scanner) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		},
	}

	client, err := imapclient.DialTLS(address, options)
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("imap connection established", "address", address, "user", s.opts.Username)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				if s.logger != nil {
					s.logger.Warn("imap logout failed", "err", err)
				}
			}
		}
		if err := client.Close(); err != nil && s.logger != nil {
			s.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}
