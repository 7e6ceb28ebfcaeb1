package notify

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// Attachment is a file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outgoing email.
type Message struct {
	From     string
	To       []string
	ReplyTo  string
	Subject  string
	TextBody string

	// Calendar, when set, is sent as an inline text/calendar part with
	// METHOD:REQUEST so mail clients render accept/decline controls.
	Calendar []byte

	Attachments []Attachment
}

// Validate checks the fields every message needs and that no header value
// can add header lines of its own.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	if m.Subject == "" {
		return errors.New("subject is required")
	}
	if m.TextBody == "" && len(m.Calendar) == 0 {
		return errors.New("body is required")
	}
	_, err := m.header()
	return err
}

type header struct {
	from    string
	to      []string
	replyTo string
	subject string
}

func (m Message) header() (header, error) {
	var h header
	var err error
	if m.From != "" {
		if h.from, err = headerAddress("from", m.From); err != nil {
			return h, err
		}
	}
	for _, to := range m.To {
		addr, err := headerAddress("to", to)
		if err != nil {
			return h, err
		}
		h.to = append(h.to, addr)
	}
	if m.ReplyTo != "" {
		if h.replyTo, err = headerAddress("reply-to", m.ReplyTo); err != nil {
			return h, err
		}
	}
	if err := CheckHeaderText(m.Subject); err != nil {
		return h, fmt.Errorf("subject: %w", err)
	}
	h.subject = mime.QEncoding.Encode("UTF-8", m.Subject)
	return h, nil
}

// Bytes renders the message in RFC 2822 format with a MIME body.
func (m Message) Bytes() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	h, err := m.header()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if h.from != "" {
		fmt.Fprintf(&buf, "From: %s\r\n", h.from)
	}
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(h.to, ", "))
	if h.replyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", h.replyTo)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", h.subject)
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(m.Calendar) == 0 && len(m.Attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		writeBase64(&buf, []byte(m.TextBody))
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	if m.TextBody != "" {
		if err := writePart(mw, "text/plain; charset=\"UTF-8\"", "", []byte(m.TextBody)); err != nil {
			return nil, err
		}
	}
	if len(m.Calendar) > 0 {
		if err := writePart(mw, "text/calendar; charset=\"UTF-8\"; method=REQUEST", "", m.Calendar); err != nil {
			return nil, err
		}
	}
	for _, a := range m.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})
		if err := writePart(mw, ct, disposition, a.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish MIME body: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType, disposition string, data []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "base64")
	if disposition != "" {
		header.Set("Content-Disposition", disposition)
	}
	w, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create MIME part: %w", err)
	}
	var buf bytes.Buffer
	writeBase64(&buf, data)
	_, err = w.Write(buf.Bytes())
	return err
}

// writeBase64 writes data base64 encoded in 76 character lines.
func writeBase64(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
}
