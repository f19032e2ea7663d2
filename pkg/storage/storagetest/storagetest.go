// Package storagetest holds the behavior every storage.Driver must share,
// expressed as ginkgo specs that driver packages register against their own
// constructor.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/storage"
)

// NewConversation builds a conversation with the given title and message
// contents, alternating user and assistant roles.
func NewConversation(title string, updated time.Time, contents ...string) *llm.Conversation {
	conv := llm.NewConversation()
	conv.Title = title
	conv.CreatedAt = updated.Add(-time.Minute)
	conv.UpdatedAt = updated

	for i, c := range contents {
		msg := llm.NewUserMessage(c, nil)
		if i%2 == 1 {
			msg = llm.NewAssistantMessage(c, nil)
		}
		msg.Timestamp = updated
		conv.Messages = append(conv.Messages, msg)
	}

	return conv
}

// DriverSpecs registers the shared driver behavior. newDriver is called
// before each spec and must return an empty driver.
func DriverSpecs(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		driver = nil
		driver = newDriver()
		ctx = context.Background()
		now = time.Now().Truncate(time.Millisecond)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("SaveConversation", func() {
		It("round trips messages, attachments and reasoning", func() {
			conv := NewConversation("greeting", now, "hello")
			conv.Messages[0].Attachments = []llm.Attachment{{
				ID:       "att-1",
				Type:     llm.AttachmentImage,
				Name:     "cat.png",
				Content:  "data:image/png;base64,AAAA",
				Size:     3,
				MimeType: "image/png",
			}}
			reply := llm.NewAssistantMessage("hi", &llm.ReasoningBlock{
				Content: "be polite",
				Summary: []string{"greet back"},
			})
			reply.Timestamp = now
			conv.Messages = append(conv.Messages, reply)

			Expect(driver.SaveConversation(ctx, conv)).To(Succeed())

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("greeting"))
			Expect(got.CreatedAt).To(BeTemporally("~", conv.CreatedAt, time.Millisecond))
			Expect(got.UpdatedAt).To(BeTemporally("~", conv.UpdatedAt, time.Millisecond))
			Expect(got.Messages).To(HaveLen(2))
			Expect(got.Messages[0].Attachments).To(Equal(conv.Messages[0].Attachments))
			Expect(got.Messages[1].Reasoning).To(Equal(&llm.ReasoningBlock{
				Content:     "be polite",
				IsCollapsed: true,
				Summary:     []string{"greet back"},
			}))
		})

		It("replaces an existing conversation", func() {
			conv := NewConversation("first", now, "one")
			Expect(driver.SaveConversation(ctx, conv)).To(Succeed())

			conv.Title = "renamed"
			conv.Messages = append(conv.Messages, llm.NewAssistantMessage("two", nil))
			Expect(driver.SaveConversation(ctx, conv)).To(Succeed())

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("renamed"))
			Expect(got.Messages).To(HaveLen(2))

			all, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("stores an empty conversation", func() {
			conv := NewConversation("", now)
			Expect(driver.SaveConversation(ctx, conv)).To(Succeed())

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages).NotTo(BeNil())
			Expect(got.Messages).To(BeEmpty())
		})

		It("rejects nil", func() {
			Expect(driver.SaveConversation(ctx, nil)).NotTo(Succeed())
		})
	})

	Describe("GetConversation", func() {
		It("returns NotFoundError for a missing id", func() {
			_, err := driver.GetConversation(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})

		It("returns a copy that does not alias the stored value", func() {
			conv := NewConversation("t", now, "hello")
			Expect(driver.SaveConversation(ctx, conv)).To(Succeed())

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			got.Messages[0].Content = "mutated"

			again, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Messages[0].Content).To(Equal("hello"))
		})
	})

	Describe("ListConversations", func() {
		It("returns conversations most recently updated first", func() {
			older := NewConversation("older", now.Add(-time.Hour), "a")
			newest := NewConversation("newest", now, "b")
			middle := NewConversation("middle", now.Add(-time.Minute), "c")

			for _, c := range []*llm.Conversation{older, newest, middle} {
				Expect(driver.SaveConversation(ctx, c)).To(Succeed())
			}

			all, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())

			titles := make([]string, 0, len(all))
			for _, c := range all {
				titles = append(titles, c.Title)
			}
			Expect(titles).To(Equal([]string{"newest", "middle", "older"}))
		})

		It("returns an empty list for an empty store", func() {
			all, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})
	})

	Describe("DeleteConversation", func() {
		It("removes only the named conversation", func() {
			keep := NewConversation("keep", now, "a")
			drop := NewConversation("drop", now, "b")
			Expect(driver.SaveConversation(ctx, keep)).To(Succeed())
			Expect(driver.SaveConversation(ctx, drop)).To(Succeed())

			Expect(driver.DeleteConversation(ctx, drop.ID)).To(Succeed())

			_, err := driver.GetConversation(ctx, drop.ID)
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
			_, err = driver.GetConversation(ctx, keep.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("is not an error for a missing id", func() {
			Expect(driver.DeleteConversation(ctx, "missing")).To(Succeed())
		})
	})

	Describe("Clear", func() {
		It("removes everything", func() {
			Expect(driver.SaveConversation(ctx, NewConversation("a", now, "x"))).To(Succeed())
			Expect(driver.SaveConversation(ctx, NewConversation("b", now, "y"))).To(Succeed())

			Expect(driver.Clear(ctx)).To(Succeed())

			all, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})
	})
}
