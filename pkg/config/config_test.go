package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/reel/pkg/config"
)

func writeConfig(dir, data string) {
	Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(data), 0o600)).To(Succeed())
}

var _ = Describe("Configer", func() {
	var (
		tmpDir string
		c      *config.Configer
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		var err error
		c, err = config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("LoadConfig", func() {
		It("returns the defaults when no config file exists", func() {
			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file and fills the gaps with defaults", func() {
			writeConfig(tmpDir, `version = 0

[client]
api_url = "https://example.test/v1/chat/completions"
model = "my-model"
max_tokens = 512

[client.headers]
HTTP-Referer = "https://reel.test"

[storage]
driver = "sqlite"
sqlite_path = "/tmp/reel.db"
`)

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Client.APIURL).To(Equal("https://example.test/v1/chat/completions"))
			Expect(cfg.Client.Model).To(Equal("my-model"))
			Expect(cfg.Client.MaxTokens).To(Equal(512))
			Expect(cfg.Client.Headers).To(HaveKeyWithValue("HTTP-Referer", "https://reel.test"))
			Expect(cfg.Storage.Driver).To(Equal("sqlite"))

			defaults := config.NewDefaultConfig()
			Expect(cfg.Client.Temperature).To(Equal(defaults.Client.Temperature))
			Expect(cfg.Storage.MaxMessages).To(Equal(defaults.Storage.MaxMessages))
			Expect(cfg.Server.Listen).To(Equal(defaults.Server.Listen))
		})

		It("keeps an explicit zero temperature", func() {
			writeConfig(tmpDir, "[client]\ntemperature = 0.0\n")

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Client.Temperature).To(BeZero())
		})

		It("rejects malformed TOML", func() {
			writeConfig(tmpDir, "not valid [[[")

			_, err := c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})

		It("rejects unsupported versions", func() {
			writeConfig(tmpDir, "version = 9\n")

			_, err := c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 9")))
		})
	})

	Describe("SaveConfig", func() {
		It("round trips through config.toml with restricted permissions", func() {
			cfg, err := config.PresetConfig("openrouter")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))

			info, err := os.Stat(c.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("returns error for nil config", func() {
			Expect(c.SaveConfig(nil)).To(HaveOccurred())
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		DescribeTable("valid values",
			func(key, value, want string) {
				Expect(c.SetConfigValue(key, value)).To(Succeed())
				Expect(c.GetConfigValue(key)).To(Equal(want))
			},
			Entry("model", "client.model", "gpt-5", "gpt-5"),
			Entry("temperature", "client.temperature", "0.2", "0.2"),
			Entry("zero temperature", "client.temperature", "0", "0"),
			Entry("max tokens", "client.max_tokens", "1024", "1024"),
			Entry("unlimited max tokens", "client.max_tokens", "", ""),
			Entry("reasoning", "client.reasoning", "true", "true"),
			Entry("timeout", "client.timeout", "90s", "90s"),
			Entry("models list", "client.models", "a, b,,c", "a,b,c"),
			Entry("storage driver", "storage.driver", "postgres", "postgres"),
			Entry("max messages", "storage.max_messages", "20", "20"),
			Entry("events provider", "events.provider", "kafka", "kafka"),
			Entry("brokers", "events.brokers", "k1:9092,k2:9092", "k1:9092,k2:9092"),
		)

		DescribeTable("invalid values",
			func(key, value string) {
				Expect(c.SetConfigValue(key, value)).To(HaveOccurred())
			},
			Entry("temperature not a number", "client.temperature", "warm"),
			Entry("temperature out of range", "client.temperature", "3"),
			Entry("negative max tokens", "client.max_tokens", "-1"),
			Entry("bad bool", "client.reasoning", "maybe"),
			Entry("bad duration", "client.timeout", "soon"),
			Entry("unknown driver", "storage.driver", "mongo"),
			Entry("zero max messages", "storage.max_messages", "0"),
			Entry("unknown events provider", "events.provider", "nats"),
			Entry("unknown key", "client.nope", "x"),
		)

		It("keeps other values when setting one key", func() {
			Expect(c.SetConfigValue("client.model", "a")).To(Succeed())
			Expect(c.SetConfigValue("client.api_url", "http://b")).To(Succeed())

			Expect(c.GetConfigValue("client.model")).To(Equal("a"))
		})

		It("manages per-header keys with canonical names", func() {
			Expect(c.SetConfigValue("client.headers.x-title", "reel")).To(Succeed())
			Expect(c.GetConfigValue("client.headers.X-Title")).To(Equal("reel"))

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.HeaderKeys()).To(Equal([]string{"client.headers.X-Title"}))

			Expect(c.SetConfigValue("client.headers.X-Title", "")).To(Succeed())
			cfg, err = c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Client.Headers).To(BeEmpty())
		})

		It("errors for unknown keys on get", func() {
			_, err := c.GetConfigValue("nope")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("lists every key once, in section order", func() {
		keys := config.ValidConfigKeys()
		Expect(keys[0]).To(Equal("profile"))
		Expect(keys).To(ContainElements("client.api_url", "storage.driver", "events.topic"))

		seen := map[string]bool{}
		for _, k := range keys {
			Expect(seen).NotTo(HaveKey(k))
			seen[k] = true
			Expect(config.IsValidConfigKey(k)).To(BeTrue())
		}
	})

	It("accepts header keys but not the bare prefix", func() {
		Expect(config.IsValidConfigKey("client.headers.Authorization")).To(BeTrue())
		Expect(config.IsValidConfigKey("client.headers.")).To(BeFalse())
		Expect(config.IsValidConfigKey("client.unknown")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	It("builds every advertised preset", func() {
		for _, name := range config.ValidPresetNames() {
			cfg, err := config.PresetConfig(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Profile).To(Equal(name))
			Expect(cfg.Client.APIURL).To(HavePrefix("http"))
		}
	})

	It("points ollama at the local server", func() {
		cfg, err := config.PresetConfig("OLLAMA")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Client.APIURL).To(Equal("http://localhost:11434/v1/chat/completions"))
	})

	It("rejects unknown presets", func() {
		_, err := config.PresetConfig("nope")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})
})

var _ = Describe("ClientConfig.TimeoutDuration", func() {
	It("parses the configured duration", func() {
		Expect(config.ClientConfig{Timeout: "90s"}.TimeoutDuration()).To(Equal(90 * time.Second))
	})

	It("falls back to the default on bad input", func() {
		Expect(config.ClientConfig{Timeout: "later"}.TimeoutDuration()).To(Equal(60 * time.Second))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("resolves the defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.FromViper(v)
		defaults := config.NewDefaultConfig()
		Expect(cfg.Client.APIURL).To(Equal(defaults.Client.APIURL))
		Expect(cfg.Client.Temperature).To(Equal(defaults.Client.Temperature))
		Expect(cfg.Storage.Driver).To(Equal(defaults.Storage.Driver))
		Expect(cfg.Storage.MaxMessages).To(Equal(defaults.Storage.MaxMessages))
	})

	It("reads config file values over defaults", func() {
		writeConfig(tmpDir, `[client]
model = "file-model"
models = ["a", "b"]

[client.headers]
x-title = "reel"
`)

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.FromViper(v)
		Expect(cfg.Client.Model).To(Equal("file-model"))
		Expect(cfg.Client.Models).To(Equal([]string{"a", "b"}))
		Expect(cfg.Client.Headers).To(HaveKeyWithValue("X-Title", "reel"))
		Expect(cfg.Server.Listen).To(Equal(config.NewDefaultConfig().Server.Listen))
	})

	It("lets REEL_ environment variables win over the file", func() {
		writeConfig(tmpDir, "[client]\nmodel = \"file-model\"\n")
		GinkgoT().Setenv("REEL_CLIENT_MODEL", "env-model")
		GinkgoT().Setenv("REEL_EVENTS_BROKERS", "k1:9092,k2:9092")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.FromViper(v)
		Expect(cfg.Client.Model).To(Equal("env-model"))
		Expect(cfg.Events.Brokers).To(Equal([]string{"k1:9092", "k2:9092"}))
	})
})

var _ = Describe("flag registry", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("lets a set flag win over the config file", func() {
		writeConfig(tmpDir, "[server]\nlisten = \":5555\"\n")
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagListen})

		Expect(config.FromViper(v).Server.Listen).To(Equal(":7777"))
	})

	It("falls through to the config file when the flag is not set", func() {
		writeConfig(tmpDir, "[client]\ntemperature = 0.1\n")
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var temp float64
		config.AddFloatFlag(cmd, config.Flags, config.FlagTemperature, &temp)

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagTemperature})

		Expect(config.FromViper(v).Client.Temperature).To(Equal(0.1))
	})

	It("takes names, shorthands and defaults from the registry", func() {
		cmd := &cobra.Command{Use: "test"}
		var (
			model     string
			maxTokens int
			reasoning bool
		)
		config.AddStringFlag(cmd, config.Flags, config.FlagModel, &model)
		config.AddIntFlag(cmd, config.Flags, config.FlagMaxTokens, &maxTokens)
		config.AddBoolFlag(cmd, config.Flags, config.FlagReasoning, &reasoning)

		f := cmd.Flags().Lookup("model")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("m"))
		Expect(f.DefValue).To(Equal(config.NewDefaultConfig().Client.Model))

		Expect(cmd.Flags().Lookup("max-tokens").DefValue).To(Equal("0"))
		Expect(cmd.Flags().Lookup("reasoning").Shorthand).To(Equal("r"))
	})

	It("skips registry keys that are unknown or unregistered", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{"nonexistent", config.FlagModel})

		Expect(config.FromViper(v).Client.Model).To(Equal(config.NewDefaultConfig().Client.Model))
	})
})
