package core

import (
	"bytes"
	"net/mail"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

type (
	Attachment struct {
		Content     *bytes.Buffer
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // simple text/plain, non-templated content
		Attachments []Attachment

		// templated contents
		Template     *texttmpl.Template
		TemplateData interface{}
		TextContent  string
	}

	// EmailService sends messages out-of-band; implementations must not
	// block the calling goroutine on network I/O.
	EmailService interface {
		SendMessages(messages ...*EmailMessage)
	}
)

// Render resolves the message body: either the plain BodyStr or the executed
// Template with TemplateData.
func (m *EmailMessage) Render() error {
	if m.Template == nil {
		m.TextContent = m.BodyStr
		return nil
	}
	var buf bytes.Buffer
	if err := m.Template.Execute(&buf, m.TemplateData); err != nil {
		return errors.Wrapf(err, "executing template %q", m.Template.Name())
	}
	m.TextContent = buf.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool {
	return len(m.To) > 0 || len(m.Cc) > 0 || len(m.Bcc) > 0
}

func (m *EmailMessage) HasContent() bool {
	return m.TextContent != "" || m.BodyStr != ""
}

func (m *EmailMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}
