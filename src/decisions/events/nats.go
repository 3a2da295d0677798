package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultSubjectPrefix prefixes every NATS subject.
const DefaultSubjectPrefix = "govdecisions"

type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes events as JSON on <prefix>.<type>.
type NATS struct {
	conn   natsPublisher
	prefix string
}

func NewNATS(conn natsPublisher, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{conn: conn, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (n *NATS) Subject(t Type) string {
	return n.prefix + "." + string(t)
}

func (n *NATS) Emit(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("nats: marshal: %w", err)
	}
	if err := n.conn.Publish(n.Subject(e.Meta().Type), body); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}
