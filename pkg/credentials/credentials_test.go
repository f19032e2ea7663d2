package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		mgr    *credentials.Manager
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		var err error
		mgr, err = credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewManager", func() {
		It("targets credentials.toml in the override directory", func() {
			Expect(mgr.GetTarget()).To(Equal(filepath.Join(tmpDir, "credentials.toml")))
		})
	})

	Describe("Load", func() {
		It("returns empty credentials when no file exists", func() {
			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Profiles).To(BeEmpty())
		})

		It("loads existing credentials", func() {
			data := `version = 0

[profiles.openrouter]
api_key = "sk-or-test"
`
			Expect(os.WriteFile(filepath.Join(tmpDir, "credentials.toml"), []byte(data), 0o600)).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Profiles).To(HaveKeyWithValue("openrouter", credentials.ProfileCredential{APIKey: "sk-or-test"}))
		})

		It("returns error for malformed TOML", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "credentials.toml"), []byte("not valid [[["), 0o600)).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).To(HaveOccurred())
			Expect(creds).To(BeNil())
		})
	})

	Describe("Save", func() {
		It("persists credentials with restricted permissions", func() {
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())

			info, err := os.Stat(mgr.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("returns error for nil credentials", func() {
			Expect(mgr.Save(nil)).To(HaveOccurred())
		})
	})

	Describe("keys", func() {
		It("overwrites and preserves keys per profile", func() {
			Expect(mgr.SetKey("openai", "sk-old")).To(Succeed())
			Expect(mgr.SetKey("openai", "sk-new")).To(Succeed())
			Expect(mgr.SetKey("openrouter", "sk-or")).To(Succeed())

			Expect(mgr.GetKey("openai")).To(Equal("sk-new"))
			Expect(mgr.GetKey("openrouter")).To(Equal("sk-or"))
		})

		It("maps the empty profile to the default profile", func() {
			Expect(mgr.SetKey("", "sk-default")).To(Succeed())

			Expect(mgr.GetKey(credentials.DefaultProfile)).To(Equal("sk-default"))
			Expect(mgr.ListProfiles()).To(Equal([]string{credentials.DefaultProfile}))
		})

		It("returns empty string for unknown profiles", func() {
			Expect(mgr.GetKey("nonexistent")).To(BeEmpty())
		})

		It("removes keys and ignores missing ones", func() {
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())
			Expect(mgr.RemoveKey("openai")).To(Succeed())
			Expect(mgr.RemoveKey("nonexistent")).To(Succeed())

			Expect(mgr.GetKey("openai")).To(BeEmpty())
		})

		It("lists profiles in sorted order", func() {
			Expect(mgr.SetKey("openrouter", "sk-1")).To(Succeed())
			Expect(mgr.SetKey("default", "sk-2")).To(Succeed())

			Expect(mgr.ListProfiles()).To(Equal([]string{"default", "openrouter"}))
		})
	})

	Describe("ResolveKey", func() {
		BeforeEach(func() {
			GinkgoT().Setenv(credentials.EnvAPIKey, "")
			GinkgoT().Setenv("OPENAI_API_KEY", "")
			Expect(mgr.SetKey("openai", "sk-stored")).To(Succeed())
		})

		It("falls back to the stored key", func() {
			Expect(mgr.ResolveKey("openai")).To(Equal("sk-stored"))
		})

		It("prefers the provider variable over the stored key", func() {
			GinkgoT().Setenv("OPENAI_API_KEY", "sk-provider-env")
			Expect(mgr.ResolveKey("openai")).To(Equal("sk-provider-env"))
		})

		It("prefers REEL_API_KEY over everything", func() {
			GinkgoT().Setenv("OPENAI_API_KEY", "sk-provider-env")
			GinkgoT().Setenv(credentials.EnvAPIKey, "sk-reel-env")
			Expect(mgr.ResolveKey("openai")).To(Equal("sk-reel-env"))
		})

		It("returns empty for profiles without any key", func() {
			Expect(mgr.ResolveKey("ollama")).To(BeEmpty())
		})
	})
})

var _ = Describe("EnvVarForProfile", func() {
	It("knows the hosted providers", func() {
		Expect(credentials.EnvVarForProfile("openai")).To(Equal("OPENAI_API_KEY"))
		Expect(credentials.EnvVarForProfile("openrouter")).To(Equal("OPENROUTER_API_KEY"))
	})

	It("returns empty string for other profiles", func() {
		Expect(credentials.EnvVarForProfile("ollama")).To(BeEmpty())
		Expect(credentials.EnvVarForProfile("")).To(BeEmpty())
	})
})
