package attachment_test

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/attachment"
	"github.com/papercomputeco/reel/pkg/llm"
)

var _ = Describe("Process", func() {
	It("inlines text files", func() {
		att, err := attachment.Process(attachment.File{Name: "notes.md", MimeType: "text/markdown", Data: []byte("# hi")})
		Expect(err).NotTo(HaveOccurred())
		Expect(att.Type).To(Equal(llm.AttachmentFile))
		Expect(att.Content).To(Equal("# hi"))
		Expect(att.Size).To(Equal(int64(4)))
		Expect(att.ID).NotTo(BeEmpty())
	})

	It("truncates long text at a rune boundary with a marker", func() {
		data := []byte(strings.Repeat("é", attachment.MaxTextRunes+10))

		att, err := attachment.Process(attachment.File{Name: "long.txt", MimeType: "text/plain", Data: data})
		Expect(err).NotTo(HaveOccurred())
		Expect(att.Content).To(HaveSuffix(attachment.TruncationMarker))

		body := strings.TrimSuffix(att.Content, attachment.TruncationMarker)
		Expect([]rune(body)).To(HaveLen(attachment.MaxTextRunes))
	})

	It("encodes images as data URLs", func() {
		data := []byte{0x89, 'P', 'N', 'G'}

		att, err := attachment.Process(attachment.File{Name: "a.png", MimeType: "image/png", Data: data})
		Expect(err).NotTo(HaveOccurred())
		Expect(att.Type).To(Equal(llm.AttachmentImage))
		Expect(att.IsImage()).To(BeTrue())
		Expect(att.Content).To(Equal("data:image/png;base64," + base64.StdEncoding.EncodeToString(data)))
	})

	It("describes PDFs with a placeholder", func() {
		att, err := attachment.Process(attachment.File{Name: "paper.pdf", MimeType: "application/pdf", Data: make([]byte, 1536)})
		Expect(err).NotTo(HaveOccurred())
		Expect(att.Type).To(Equal(llm.AttachmentFile))
		Expect(att.Content).To(HavePrefix("[PDF file: paper.pdf, size: 1.5 KB]"))
	})

	It("accepts any text or image subtype", func() {
		Expect(attachment.Validate(attachment.File{Name: "a.go", MimeType: "text/x-go"})).To(Succeed())
		Expect(attachment.Validate(attachment.File{Name: "a.bmp", MimeType: "image/bmp"})).To(Succeed())
	})

	It("rejects unsupported types", func() {
		_, err := attachment.Process(attachment.File{Name: "a.zip", MimeType: "application/zip"})
		Expect(err).To(MatchError(attachment.ErrUnsupported))

		var aerr *attachment.Error
		Expect(errors.As(err, &aerr)).To(BeTrue())
		Expect(aerr.Name).To(Equal("a.zip"))
	})

	It("rejects files over the size limit", func() {
		_, err := attachment.Process(attachment.File{Name: "big.txt", MimeType: "text/plain", Data: make([]byte, attachment.MaxSize+1)})
		Expect(err).To(MatchError(attachment.ErrTooLarge))
	})
})

var _ = Describe("ProcessAll", func() {
	It("returns nothing when any file fails", func() {
		atts, err := attachment.ProcessAll([]attachment.File{
			{Name: "ok.txt", MimeType: "text/plain", Data: []byte("ok")},
			{Name: "bad.bin", MimeType: "application/octet-stream"},
			{Name: "bad2.zip", MimeType: "application/zip"},
		})
		Expect(atts).To(BeNil())
		Expect(err).To(MatchError(ContainSubstring("bad.bin")))
		Expect(err).To(MatchError(ContainSubstring("bad2.zip")))
	})

	It("keeps input order", func() {
		atts, err := attachment.ProcessAll([]attachment.File{
			{Name: "a.txt", MimeType: "text/plain", Data: []byte("a")},
			{Name: "b.txt", MimeType: "text/plain", Data: []byte("b")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(atts).To(HaveLen(2))
		Expect(atts[0].Name).To(Equal("a.txt"))
		Expect(atts[1].Name).To(Equal("b.txt"))
	})
})

var _ = Describe("ProcessPaths", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("reads files and detects their type", func() {
		path := filepath.Join(dir, "README.md")
		Expect(os.WriteFile(path, []byte("# readme"), 0o600)).To(Succeed())

		atts, err := attachment.ProcessPaths(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(atts).To(HaveLen(1))
		Expect(atts[0].Name).To(Equal("README.md"))
		Expect(atts[0].MimeType).To(Equal("text/markdown"))
		Expect(atts[0].Content).To(Equal("# readme"))
	})

	It("fails for missing files", func() {
		_, err := attachment.ProcessPaths(filepath.Join(dir, "missing.txt"))
		Expect(err).To(MatchError(os.ErrNotExist))
	})

	It("fails for directories", func() {
		_, err := attachment.ProcessPaths(dir)
		Expect(err).To(HaveOccurred())
	})
})

var _ = DescribeTable("DetectType",
	func(name string, data []byte, want string) {
		Expect(attachment.DetectType(name, data)).To(Equal(want))
	},
	Entry("markdown", "a.md", nil, "text/markdown"),
	Entry("csv", "a.CSV", nil, "text/csv"),
	Entry("json", "a.json", nil, "application/json"),
	Entry("sniffed png", "noext", []byte("\x89PNG\r\n\x1a\n0000"), "image/png"),
	Entry("sniffed text strips charset", "noext", []byte("plain words"), "text/plain"),
)

var _ = DescribeTable("FormatSize",
	func(n int64, want string) {
		Expect(attachment.FormatSize(n)).To(Equal(want))
	},
	Entry("zero", int64(0), "0 B"),
	Entry("bytes", int64(512), "512 B"),
	Entry("kilobytes", int64(1536), "1.5 KB"),
	Entry("megabytes", int64(20<<20), "20 MB"),
	Entry("rounded", int64(1234567), "1.18 MB"),
)
