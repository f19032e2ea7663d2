package jsonfile_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/storage/jsonfile"
	"github.com/papercomputeco/reel/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DriverSpecs(func() storage.Driver {
		driver, err := jsonfile.NewDriver(filepath.Join(GinkgoT().TempDir(), jsonfile.FileName))
		Expect(err).NotTo(HaveOccurred())
		return driver
	})

	Describe("on disk", func() {
		var (
			ctx  context.Context
			path string
		)

		BeforeEach(func() {
			ctx = context.Background()
			path = filepath.Join(GinkgoT().TempDir(), "nested", jsonfile.FileName)
		})

		It("does not create the file until the first write", func() {
			_, err := jsonfile.NewDriver(path)
			Expect(err).NotTo(HaveOccurred())

			_, err = os.Stat(path)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("reloads what was written", func() {
			driver, err := jsonfile.NewDriver(path)
			Expect(err).NotTo(HaveOccurred())

			conv := storagetest.NewConversation("kept", time.Now(), "hello", "hi")
			Expect(driver.SaveConversation(ctx, conv)).To(Succeed())

			reopened, err := jsonfile.NewDriver(path)
			Expect(err).NotTo(HaveOccurred())

			got, err := reopened.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("kept"))
			Expect(got.Messages).To(HaveLen(2))
		})

		It("removes the file on Clear", func() {
			driver, err := jsonfile.NewDriver(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.SaveConversation(ctx, storagetest.NewConversation("x", time.Now(), "a"))).To(Succeed())

			Expect(driver.Clear(ctx)).To(Succeed())

			_, err = os.Stat(path)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("rejects a corrupt document", func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
			Expect(os.WriteFile(path, []byte("{not json"), 0o600)).To(Succeed())

			_, err := jsonfile.NewDriver(path)
			Expect(err).To(HaveOccurred())
		})

		It("treats an empty file as an empty store", func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
			Expect(os.WriteFile(path, nil, 0o600)).To(Succeed())

			driver, err := jsonfile.NewDriver(path)
			Expect(err).NotTo(HaveOccurred())

			all, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})
	})
})
