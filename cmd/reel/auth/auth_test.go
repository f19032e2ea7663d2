package authcmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/reel/cmd/reel/auth"
	"github.com/papercomputeco/reel/pkg/credentials"
)

func newAuthCmd(dir, stdin string, out *bytes.Buffer, args ...string) *cobra.Command {
	cmd := authcmder.NewAuthCmd()
	cmd.PersistentFlags().String("config-dir", "", "Override path to .reel/ config directory")
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append(args, "--config-dir", dir))
	return cmd
}

var _ = Describe("Auth Command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
		mgr    *credentials.Manager
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
		GinkgoT().Setenv(credentials.EnvAPIKey, "")
		GinkgoT().Setenv("OPENAI_API_KEY", "")

		var err error
		mgr, err = credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewAuthCmd", func() {
		It("creates a command with expected properties", func() {
			cmd := authcmder.NewAuthCmd()
			Expect(cmd.Use).To(Equal("auth [profile]"))
			Expect(cmd.Short).NotTo(BeEmpty())
			Expect(cmd.Flags().Lookup("list")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("remove")).NotTo(BeNil())
		})
	})

	Describe("storing a key", func() {
		It("stores a piped key under the default profile", func() {
			Expect(newAuthCmd(tmpDir, "sk-test\n", out).Execute()).To(Succeed())

			key, err := mgr.GetKey(credentials.DefaultProfile)
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-test"))
			Expect(out.String()).To(ContainSubstring("default"))
		})

		It("stores a key under a named profile", func() {
			Expect(newAuthCmd(tmpDir, "  sk-or \n", out, "OpenRouter").Execute()).To(Succeed())

			key, err := mgr.GetKey("openrouter")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-or"))
		})

		It("warns when an environment variable shadows the stored key", func() {
			GinkgoT().Setenv("OPENAI_API_KEY", "sk-env")
			Expect(newAuthCmd(tmpDir, "sk-test\n", out, "openai").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("OPENAI_API_KEY"))
		})

		It("rejects an empty key", func() {
			err := newAuthCmd(tmpDir, "   \n", out).Execute()
			Expect(err).To(MatchError(ContainSubstring("cannot be empty")))
		})

		It("rejects missing input", func() {
			Expect(newAuthCmd(tmpDir, "", out).Execute()).NotTo(Succeed())
		})
	})

	Describe("--list flag", func() {
		It("shows no keys when none stored", func() {
			Expect(newAuthCmd(tmpDir, "", out, "--list").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No stored keys"))
		})

		It("lists stored profiles", func() {
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())
			Expect(mgr.SetKey("work", "sk-work")).To(Succeed())

			Expect(newAuthCmd(tmpDir, "", out, "--list").Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("openai"))
			Expect(out.String()).To(ContainSubstring("work"))
			Expect(out.String()).To(ContainSubstring("OPENAI_API_KEY"))
			Expect(out.String()).NotTo(ContainSubstring("sk-test"))
		})
	})

	Describe("--remove flag", func() {
		It("removes stored keys", func() {
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())

			Expect(newAuthCmd(tmpDir, "", out, "--remove", "openai").Execute()).To(Succeed())

			key, err := mgr.GetKey("openai")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(BeEmpty())
		})
	})

	It("accepts at most one profile", func() {
		Expect(newAuthCmd(tmpDir, "sk\n", out, "a", "b").Execute()).NotTo(Succeed())
	})
})
