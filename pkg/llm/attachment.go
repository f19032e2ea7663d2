package llm

// AttachmentType distinguishes inline files from images.
type AttachmentType string

const (
	AttachmentFile  AttachmentType = "file"
	AttachmentImage AttachmentType = "image"
)

// Attachment is a file or image attached to a user message. Content is a
// base64 data URL for images and extracted text for files. It is always fully
// resolved before the message is sent.
type Attachment struct {
	ID       string         `json:"id"`
	Type     AttachmentType `json:"type"`
	Name     string         `json:"name"`
	Content  string         `json:"content"`
	Size     int64          `json:"size"`
	MimeType string         `json:"mimeType"`
}

// IsImage reports whether the attachment is sent as a multimodal image part.
func (a Attachment) IsImage() bool {
	return a.Type == AttachmentImage
}
