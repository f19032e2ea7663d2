package conversationscmder_test

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	conversationscmder "github.com/papercomputeco/reel/cmd/reel/conversations"
	"github.com/papercomputeco/reel/pkg/archive"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/dotdir"
	"github.com/papercomputeco/reel/pkg/llm"
)

var _ = Describe("reel conversations", func() {
	var (
		dir string
		out *bytes.Buffer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	run := func(args ...string) error {
		root := &cobra.Command{Use: "reel", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", dir, "")
		root.PersistentFlags().Bool("debug", false, "")
		root.AddCommand(conversationscmder.NewConversationsCmd())

		out.Reset()
		root.SetOut(out)
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"conversations"}, args...))
		return root.Execute()
	}

	conv := func(id, title string, updated time.Time, contents ...string) *llm.Conversation {
		c := &llm.Conversation{ID: id, Title: title, CreatedAt: updated, UpdatedAt: updated}
		for i, content := range contents {
			role := llm.RoleUser
			if i%2 == 1 {
				role = llm.RoleAssistant
			}
			c.Messages = append(c.Messages, llm.Message{
				ID: id + "-" + string(rune('a'+i)), Role: role, Content: content, Timestamp: updated,
			})
		}
		return c
	}

	writeExport := func(cfg *config.Config, convs ...*llm.Conversation) string {
		path := filepath.Join(dir, "export.json")
		f, err := os.Create(path)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		Expect(archive.Write(f, archive.New(cfg, convs, time.Now()))).To(Succeed())
		return path
	}

	seed := func() {
		now := time.Now().Add(-time.Hour)
		path := writeExport(nil,
			conv("older", "Go generics", now, "what are type params?", "They parameterize types."),
			conv("newer", "Rust lifetimes", now.Add(time.Minute), "explain 'a"),
		)
		Expect(run("import", path)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Imported 2 conversations"))
	}

	It("registers the storage flags on each subcommand", func() {
		cmd := conversationscmder.NewConversationsCmd()
		for _, sub := range cmd.Commands() {
			Expect(sub.Flags().Lookup("storage")).NotTo(BeNil(), sub.Name())
			Expect(sub.Flags().Lookup("sqlite")).NotTo(BeNil(), sub.Name())
		}
	})

	It("lists imported conversations newest first", func() {
		seed()

		Expect(run("list")).To(Succeed())
		listing := out.String()
		Expect(listing).To(ContainSubstring("Rust lifetimes"))
		Expect(listing).To(ContainSubstring("Go generics"))
		Expect(bytes.Index(out.Bytes(), []byte("Rust"))).To(BeNumerically("<", bytes.Index(out.Bytes(), []byte("Go generics"))))
	})

	It("persists imports to the JSON file in the reel directory", func() {
		seed()
		Expect(filepath.Join(dir, "conversations.json")).To(BeAnExistingFile())
	})

	It("shows a conversation's messages", func() {
		seed()

		Expect(run("show", "older")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("what are type params?"))
		Expect(out.String()).To(ContainSubstring("They parameterize types."))
	})

	It("fails to show an unknown conversation", func() {
		seed()
		Expect(run("show", "missing")).To(MatchError(ContainSubstring("missing")))
	})

	It("records the selected conversation in state.json", func() {
		seed()

		Expect(run("use", "older")).To(Succeed())
		state, err := dotdir.NewManager().LoadState(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.ConversationID).To(Equal("older"))

		Expect(run("show")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Go generics"))
	})

	It("deletes a conversation", func() {
		seed()

		Expect(run("delete", "older")).To(Succeed())
		Expect(run("list")).To(Succeed())
		Expect(out.String()).NotTo(ContainSubstring("Go generics"))
		Expect(out.String()).To(ContainSubstring("Rust lifetimes"))
	})

	It("clears every conversation", func() {
		seed()

		Expect(run("clear")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Cleared 2 conversations"))

		Expect(run("list")).To(Succeed())
		Expect(out.String()).NotTo(ContainSubstring("Rust lifetimes"))
		Expect(out.String()).NotTo(ContainSubstring("Go generics"))
	})

	It("exports conversations with the API key hidden", func() {
		seed()

		Expect(run("export")).To(Succeed())
		doc, err := archive.Read(bytes.NewReader(out.Bytes()))
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Conversations).To(HaveLen(2))
		Expect(doc.Config).NotTo(BeNil())
		Expect(doc.Config.APIKey).To(Equal(archive.Hidden))
	})

	It("exports to a file", func() {
		seed()

		path := filepath.Join(dir, "backup.json")
		Expect(run("export", path)).To(Succeed())

		f, err := os.Open(path)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		doc, err := archive.Read(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Conversations).To(HaveLen(2))
	})

	It("rejects an invalid import", func() {
		path := filepath.Join(dir, "bad.json")
		Expect(os.WriteFile(path, []byte("not json"), 0o600)).To(Succeed())
		Expect(run("import", path)).To(MatchError(archive.ErrInvalid))
	})

	It("restores configuration with --config", func() {
		cfg := config.NewDefaultConfig()
		cfg.Client.Model = "imported-model"
		path := writeExport(cfg, conv("one", "Only", time.Now(), "hi"))

		Expect(run("import", path, "--config")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Restored configuration"))

		cfger, err := config.NewConfiger(dir)
		Expect(err).NotTo(HaveOccurred())
		loaded, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Client.Model).To(Equal("imported-model"))
	})

	It("leaves config.toml alone without --config", func() {
		cfg := config.NewDefaultConfig()
		cfg.Client.Model = "imported-model"
		path := writeExport(cfg, conv("one", "Only", time.Now(), "hi"))

		Expect(run("import", path)).To(Succeed())
		Expect(filepath.Join(dir, "config.toml")).NotTo(BeAnExistingFile())
	})
})
