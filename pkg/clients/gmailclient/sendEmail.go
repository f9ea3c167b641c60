package gmailclient

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
)

// BuildMessage renders an RFC 5322 plain-text message. The subject is
// Q-encoded so opportunity titles with accents survive.
func BuildMessage(from, to, subject, body string) string {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}

// SendEmail sends a plain-text email, waiting out the send interval first
func (c *Client) SendEmail(to, subject, body string) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if !c.lastSendTime.IsZero() {
		if wait := c.interval - time.Since(c.lastSendTime); wait > 0 {
			c.logger.Debug("Throttling email send", zap.Duration("wait", wait))
			time.Sleep(wait)
		}
	}

	raw := base64.URLEncoding.EncodeToString([]byte(BuildMessage(c.sender, to, subject, body)))

	_, err := c.service.Users.Messages.Send(c.userID, &gmail.Message{Raw: raw}).Context(c.ctx).Do()
	c.lastSendTime = time.Now()
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.logger.Debug("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
