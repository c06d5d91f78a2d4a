package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wilhg/daybook/pkg/adapters/llm"
	"github.com/wilhg/daybook/pkg/store"
)

// Journal event types.
const (
	EventMessage = "message"
	EventReset   = "reset"
)

const pageSize = 500

// Journal records a session's history as an append-only event log. A reset
// is an event too, so history discarded from the live state stays in the log.
type Journal struct {
	events store.EventStore
	now    func() time.Time
}

// NewJournal returns a journal over es.
func NewJournal(es store.EventStore) *Journal {
	return &Journal{events: es, now: time.Now}
}

type resetPayload struct {
	Reason string `json:"reason"`
}

// Record appends one message to the session log.
func (j *Journal) Record(ctx context.Context, session string, m llm.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = j.events.AppendEvent(ctx, store.EventRecord{
		SessionID: session,
		Type:      EventMessage,
		Payload:   b,
		CreatedAt: j.now().UTC(),
	})
	return err
}

// Reset marks the point from which Load starts over.
func (j *Journal) Reset(ctx context.Context, session, reason string) error {
	b, _ := json.Marshal(resetPayload{Reason: reason})
	_, err := j.events.AppendEvent(ctx, store.EventRecord{
		SessionID: session,
		Type:      EventReset,
		Payload:   b,
		CreatedAt: j.now().UTC(),
	})
	return err
}

// Load rebuilds the live state of a session: the messages recorded after its
// last reset.
func (j *Journal) Load(ctx context.Context, session string) (*State, error) {
	st := New()
	err := j.replay(ctx, session, func(rec store.EventRecord, m *llm.Message) {
		if m == nil {
			st.Clear()
			return
		}
		st.AppendMessage(*m)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Transcript returns every message ever recorded for the session, including
// those before a reset.
func (j *Journal) Transcript(ctx context.Context, session string) ([]llm.Message, error) {
	var out []llm.Message
	err := j.replay(ctx, session, func(_ store.EventRecord, m *llm.Message) {
		if m != nil {
			out = append(out, *m)
		}
	})
	return out, err
}

// replay walks the log in order. apply receives nil for a reset.
func (j *Journal) replay(ctx context.Context, session string, apply func(store.EventRecord, *llm.Message)) error {
	var after int64
	for {
		recs, err := j.events.ListEvents(ctx, session, after, pageSize)
		if err != nil {
			return fmt.Errorf("list session events: %w", err)
		}
		for _, rec := range recs {
			after = rec.Seq
			switch rec.Type {
			case EventReset:
				apply(rec, nil)
			case EventMessage:
				var m llm.Message
				if err := json.Unmarshal(rec.Payload, &m); err != nil {
					return fmt.Errorf("decode event %d of %s: %w", rec.Seq, session, err)
				}
				apply(rec, &m)
			}
		}
		if len(recs) < pageSize {
			return nil
		}
	}
}
