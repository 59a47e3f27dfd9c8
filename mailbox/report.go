package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"

	// Registers decoders for non-UTF-8 message charsets.
	_ "github.com/emersion/go-message/charset"

	"github.com/courtdata/results-ingest/model"
)

// Candidate is one fetched message pending selection. Only the newest
// candidate of a scan is processed; the rest are already marked read and
// get discarded.
type Candidate struct {
	Raw     []byte
	Date    time.Time
	Subject string
	From    string
}

// NewCandidate parses the headers used for candidate ordering. A missing or
// unparseable Date header leaves the zero time, which sorts the message as
// oldest.
func NewCandidate(raw []byte) Candidate {
	cand := Candidate{Raw: raw}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return cand
	}

	if date := msg.Header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			cand.Date = t
		}
	}
	cand.Subject = decodeHeader(msg.Header.Get("Subject"))
	cand.From = msg.Header.Get("From")
	return cand
}

// PickNewest returns the index of the candidate with the latest date. Ties
// keep the earliest-listed candidate.
func PickNewest(candidates []Candidate) int {
	selected := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Date.After(candidates[selected].Date) {
			selected = i
		}
	}
	return selected
}

// ExtractReport walks the message parts in declaration order and returns the
// first attachment whose decoded filename contains filenameFilter,
// case-folded. It returns (nil, nil) when no part matches.
func ExtractReport(raw []byte, filenameFilter string) (*model.Attachment, error) {
	cand := NewCandidate(raw)
	needle := strings.ToLower(filenameFilter)

	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read message part: %w", err)
		}

		filename := partFilename(part)
		if filename == "" || !strings.Contains(strings.ToLower(filename), needle) {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", filename, err)
		}

		return &model.Attachment{
			Filename: filename,
			Subject:  cand.Subject,
			Date:     cand.Date,
			Data:     data,
		}, nil
	}

	return nil, nil
}

// partFilename returns the decoded filename of a part that carries a
// content-disposition, or "" for body parts.
func partFilename(part *gomail.Part) string {
	switch h := part.Header.(type) {
	case *gomail.AttachmentHeader:
		filename, err := h.Filename()
		if err != nil {
			return ""
		}
		return decodeHeader(filename)
	case *gomail.InlineHeader:
		disp, params, err := h.ContentDisposition()
		if err != nil || disp == "" {
			return ""
		}
		return decodeHeader(params["filename"])
	default:
		return ""
	}
}

func decodeHeader(raw string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}
