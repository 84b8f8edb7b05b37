package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AttachmentKind buckets an attachment into the content categories the
// provider wire formats distinguish.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
	AttachmentVideo    AttachmentKind = "video"
)

// Attachment references a local media file already typed by extension.
type Attachment struct {
	Path   string         `json:"path"`
	Kind   AttachmentKind `json:"kind"`
	Format string         `json:"format"`
	Name   string         `json:"name,omitempty"` // set for documents only
}

// format tables mirror the vendor-supported extensions; jpg normalizes to jpeg.
var (
	imageFormats    = map[string]string{"jpg": "jpeg", "jpeg": "jpeg", "png": "png", "gif": "gif", "webp": "webp"}
	documentFormats = map[string]struct{}{"pdf": {}, "csv": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {}, "txt": {}, "md": {}}
	videoFormats    = map[string]struct{}{"mkv": {}, "mov": {}, "mp4": {}, "webm": {}, "flv": {}, "mpeg": {}, "mpg": {}, "wmv": {}, "3gp": {}}
)

// DetectAttachment types a file by extension. Unsupported extensions are
// rejected here, before any vendor call is attempted.
func DetectAttachment(path string) (Attachment, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if format, ok := imageFormats[ext]; ok {
		return Attachment{Path: path, Kind: AttachmentImage, Format: format}, nil
	}
	if _, ok := documentFormats[ext]; ok {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return Attachment{Path: path, Kind: AttachmentDocument, Format: ext, Name: name}, nil
	}
	if _, ok := videoFormats[ext]; ok {
		return Attachment{Path: path, Kind: AttachmentVideo, Format: ext}, nil
	}
	return Attachment{}, NewError(CodeInvalidInput,
		fmt.Sprintf("unsupported attachment type %q", ext))
}

// DetectAttachments types every path, failing on the first unsupported one.
func DetectAttachments(paths []string) ([]Attachment, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	out := make([]Attachment, 0, len(paths))
	for _, p := range paths {
		att, err := DetectAttachment(p)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, nil
}

// Bytes reads the attachment content from disk.
func (a Attachment) Bytes() ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, NewError(CodeInvalidInput, fmt.Sprintf("read attachment %s", a.Path), WithWrapped(err))
	}
	return data, nil
}

// Describe returns the history placeholder text used when flattening
// multimodal turns for a follow-up request.
func (a Attachment) Describe(role Role) string {
	if role == RoleAssistant {
		return fmt.Sprintf("[Generated %s %s in response]", article(string(a.Kind)), a.Kind)
	}
	return fmt.Sprintf("[User shared %s %s]", article(string(a.Kind)), a.Kind)
}

func article(noun string) string {
	switch noun[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return "an"
	default:
		return "a"
	}
}
