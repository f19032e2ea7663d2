package archive_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/archive"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/storage/storagetest"
)

var _ = Describe("Export", func() {
	var (
		cfg   *config.Config
		convs []*llm.Conversation
		now   time.Time
	)

	BeforeEach(func() {
		cfg = config.NewDefaultConfig()
		cfg.Storage.PostgresDSN = "postgres://user:secret@db/reel"
		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		convs = []*llm.Conversation{
			storagetest.NewConversation("first", now.Add(-time.Hour), "hi", "hello"),
			nil,
			storagetest.NewConversation("second", now, "q"),
		}
	})

	It("writes the version, time, config and conversations", func() {
		var buf bytes.Buffer
		Expect(archive.Write(&buf, archive.New(cfg, convs, now))).To(Succeed())

		var raw map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &raw)).To(Succeed())
		Expect(raw).To(HaveKeyWithValue("version", archive.Version))
		Expect(raw).To(HaveKeyWithValue("export_time", "2025-03-01T12:00:00Z"))
		Expect(raw["conversations"]).To(HaveLen(2))

		exported := raw["config"].(map[string]any)
		Expect(exported).To(HaveKeyWithValue("api_key", archive.Hidden))
		Expect(exported).To(HaveKey("client"))
	})

	It("never leaks secrets", func() {
		var buf bytes.Buffer
		Expect(archive.Write(&buf, archive.New(cfg, convs, now))).To(Succeed())

		Expect(buf.String()).NotTo(ContainSubstring("secret"))
		Expect(cfg.Storage.PostgresDSN).To(ContainSubstring("secret"), "the caller's config is left alone")
	})

	It("omits config when none is given", func() {
		var buf bytes.Buffer
		Expect(archive.Write(&buf, archive.New(nil, nil, now))).To(Succeed())
		Expect(buf.String()).NotTo(ContainSubstring(`"config"`))
		Expect(buf.String()).To(ContainSubstring(`"conversations": []`))
	})
})

var _ = Describe("Read", func() {
	It("round trips an export", func() {
		now := time.Now().Truncate(time.Millisecond)
		conv := storagetest.NewConversation("t", now, "a", "b")

		var buf bytes.Buffer
		Expect(archive.Write(&buf, archive.New(config.NewDefaultConfig(), []*llm.Conversation{conv}, now))).To(Succeed())

		doc, err := archive.Read(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Conversations).To(HaveLen(1))
		Expect(doc.Conversations[0].ID).To(Equal(conv.ID))
		Expect(doc.Conversations[0].Messages).To(HaveLen(2))
		Expect(doc.Config.APIKey).To(Equal(archive.Hidden))
	})

	It("restores hidden values from the current config", func() {
		current := config.NewDefaultConfig()
		current.Storage.PostgresDSN = "postgres://local"
		exported := config.NewDefaultConfig()
		exported.Storage.PostgresDSN = "postgres://remote"
		exported.Client.Model = "imported-model"

		var buf bytes.Buffer
		Expect(archive.Write(&buf, archive.New(exported, nil, time.Now()))).To(Succeed())
		doc, err := archive.Read(&buf)
		Expect(err).NotTo(HaveOccurred())

		cfg := doc.ImportedConfig(current)
		Expect(cfg.Client.Model).To(Equal("imported-model"))
		Expect(cfg.Storage.PostgresDSN).To(Equal("postgres://local"))
	})

	It("returns no config when the document has none", func() {
		doc, err := archive.Read(strings.NewReader(`{"version":"1.0.0","conversations":[]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.ImportedConfig(config.NewDefaultConfig())).To(BeNil())
	})

	It("folds a flat message history into one conversation", func() {
		doc, err := archive.Read(strings.NewReader(`{
			"version": "1.0.0",
			"messages": [
				{"id": "1", "role": "user", "content": "legacy question", "timestamp": "2024-01-01T00:00:00Z"},
				{"role": "assistant", "content": "legacy answer", "timestamp": "2024-01-01T00:01:00Z"}
			]
		}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Messages).To(BeNil())
		Expect(doc.Conversations).To(HaveLen(1))

		conv := doc.Conversations[0]
		Expect(conv.Title).To(Equal("legacy question"))
		Expect(conv.Messages[1].ID).NotTo(BeEmpty())
		Expect(conv.CreatedAt).To(BeTemporally("==", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
		Expect(conv.UpdatedAt).To(BeTemporally("==", time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)))
	})

	DescribeTable("rejects invalid input",
		func(input string) {
			_, err := archive.Read(strings.NewReader(input))
			Expect(err).To(MatchError(archive.ErrInvalid))
		},
		Entry("not json", "nope"),
		Entry("not an object", `[1,2]`),
		Entry("future version", `{"version":"2.0.0"}`),
	)
})
