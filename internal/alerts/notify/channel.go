package notify

import (
	"context"
	"strings"
)

// Message is a rendered notification ready for transport.
type Message struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
	HTML    bool
}

// Channel delivers a message. The boolean reports confirmed delivery; callers
// must treat a false result and an error identically as "not sent".
type Channel interface {
	Send(ctx context.Context, msg Message) (bool, error)
}

// SplitRecipients parses a comma-joined recipient string, trimming
// whitespace and dropping empty entries.
func SplitRecipients(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
