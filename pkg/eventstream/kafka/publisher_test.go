package kafka

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/reel/pkg/eventstream"
	"github.com/papercomputeco/reel/pkg/llm"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
	deadline bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testEvent() *eventstream.TurnCompletedEvent {
	return eventstream.NewTurnCompletedEvent(
		eventstream.EventSource{Surface: "cli", Model: "gpt-4"},
		eventstream.TurnRequestMeta{DurationMs: 1200},
		eventstream.ConversationMeta{ID: "conv-1", Title: "hello", MessageCount: 2},
		eventstream.Turn{
			User:      llm.NewUserMessage("hello", nil),
			Assistant: llm.NewAssistantMessage("hi", nil),
		},
	)
}

var _ = Describe("Publisher", func() {
	var (
		fw *fakeWriter
		p  *Publisher
	)

	BeforeEach(func() {
		fw = &fakeWriter{}
		p = newPublisher(fw, DefaultTopic, 0)
	})

	It("requires brokers", func() {
		_, err := NewPublisher(Config{})
		Expect(err).To(HaveOccurred())
	})

	It("defaults the topic", func() {
		pub, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(pub.Topic()).To(Equal(DefaultTopic))
	})

	It("writes one JSON message keyed by conversation", func() {
		ev := testEvent()
		Expect(p.PublishTurn(context.Background(), ev)).To(Succeed())

		Expect(fw.messages).To(HaveLen(1))
		msg := fw.messages[0]
		Expect(string(msg.Key)).To(Equal("conv-1"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeTurnCompleted)}))
		Expect(fw.deadline).To(BeTrue())

		var decoded map[string]any
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded["event_type"]).To(Equal("reel.turn.completed"))
		Expect(decoded["event_id"]).To(Equal(ev.EventID))
		Expect(decoded).To(HaveKey("turn"))
		Expect(decoded["conversation"]).To(HaveKeyWithValue("message_count", BeNumerically("==", 2)))
	})

	It("rejects nil events", func() {
		Expect(p.PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilTurnEvent))
		Expect(fw.messages).To(BeEmpty())
	})

	It("wraps writer failures", func() {
		fw.err = errors.New("broker down")
		err := p.PublishTurn(context.Background(), testEvent())
		Expect(err).To(MatchError(ContainSubstring("broker down")))
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(fw.closed).To(BeTrue())
	})
})
