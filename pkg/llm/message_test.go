package llm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/llm"
)

var _ = Describe("Message", func() {
	Describe("NewUserMessage", func() {
		It("assigns a unique id and the user role", func() {
			a := llm.NewUserMessage("hi", nil)
			b := llm.NewUserMessage("hi", nil)

			Expect(a.ID).NotTo(BeEmpty())
			Expect(a.ID).NotTo(Equal(b.ID))
			Expect(a.Role).To(Equal(llm.RoleUser))
			Expect(a.Timestamp.IsZero()).To(BeFalse())
		})
	})

	Describe("NewAssistantMessage", func() {
		It("drops an empty reasoning block", func() {
			msg := llm.NewAssistantMessage("answer", &llm.ReasoningBlock{})
			Expect(msg.Reasoning).To(BeNil())
			Expect(msg.IsStreaming).To(BeFalse())
		})

		It("finalizes the reasoning block as collapsed", func() {
			msg := llm.NewAssistantMessage("answer", &llm.ReasoningBlock{
				Content:     "thinking",
				IsStreaming: true,
				Summary:     []string{"s"},
			})

			Expect(msg.Reasoning).NotTo(BeNil())
			Expect(msg.Reasoning.IsStreaming).To(BeFalse())
			Expect(msg.Reasoning.IsCollapsed).To(BeTrue())
			Expect(msg.Reasoning.Summary).To(Equal([]string{"s"}))
		})
	})

	Describe("Clone", func() {
		It("does not share attachments or summaries", func() {
			orig := llm.Message{
				Attachments: []llm.Attachment{{Name: "a.txt"}},
				Reasoning:   &llm.ReasoningBlock{Content: "r", Summary: []string{"x"}},
			}
			cp := orig.Clone()
			cp.Attachments[0].Name = "b.txt"
			cp.Reasoning.Summary[0] = "y"

			Expect(orig.Attachments[0].Name).To(Equal("a.txt"))
			Expect(orig.Reasoning.Summary[0]).To(Equal("x"))
		})
	})
})

var _ = Describe("Conversation", func() {
	It("starts empty with matching timestamps", func() {
		c := llm.NewConversation()
		Expect(c.Messages).To(BeEmpty())
		Expect(c.UpdatedAt).To(Equal(c.CreatedAt))
	})

	It("clones messages deeply", func() {
		c := llm.NewConversation()
		c.Messages = append(c.Messages, llm.NewUserMessage("hello", nil))

		cp := c.Clone()
		cp.Messages[0].Content = "changed"

		Expect(c.Messages[0].Content).To(Equal("hello"))
		Expect(cp.Messages[0].Content).To(Equal("changed"))
	})
})
