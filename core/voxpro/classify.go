package voxpro

import (
	"net/url"
	"path"
	"strings"
)

// MediaMode is how the player surface renders an assignment.
type MediaMode string

const (
	ModeVideo    MediaMode = "video"
	ModeAudio    MediaMode = "audio"
	ModeImage    MediaMode = "image"
	ModeDocument MediaMode = "document"
	ModeUnknown  MediaMode = "unknown"
)

// HasTransport reports whether the mode has play/pause/seek controls.
func (m MediaMode) HasTransport() bool {
	return m == ModeVideo || m == ModeAudio
}

// extensionModes is the fixed extension table. ogg is listed once, as audio;
// a declared video/ogg type still classifies as video.
var extensionModes = map[string]MediaMode{
	"mp4":  ModeVideo,
	"webm": ModeVideo,
	"mov":  ModeVideo,
	"avi":  ModeVideo,
	"ogg":  ModeAudio,
	"mp3":  ModeAudio,
	"wav":  ModeAudio,
	"aac":  ModeAudio,
	"m4a":  ModeAudio,
	"jpg":  ModeImage,
	"jpeg": ModeImage,
	"png":  ModeImage,
	"gif":  ModeImage,
	"webp": ModeImage,
	"svg":  ModeImage,
	"pdf":  ModeDocument,
	"doc":  ModeDocument,
	"docx": ModeDocument,
	"txt":  ModeDocument,
}

var documentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

// Classify maps a media URL and an optional declared MIME type (or bare
// extension) to a render mode. A declared video/, audio/ or image/ type
// wins over the URL.
func Classify(rawURL, declaredType string) MediaMode {
	declared := strings.ToLower(strings.TrimSpace(declaredType))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}

	if declared != "" {
		switch {
		case strings.HasPrefix(declared, "video/"):
			return ModeVideo
		case strings.HasPrefix(declared, "audio/"):
			return ModeAudio
		case strings.HasPrefix(declared, "image/"):
			return ModeImage
		case documentTypes[declared]:
			return ModeDocument
		case !strings.Contains(declared, "/"):
			if mode, ok := extensionModes[strings.TrimPrefix(declared, ".")]; ok {
				return mode
			}
		}
	}

	return ModeForExtension(Extension(rawURL))
}

// ModeForExtension looks an extension up in the fixed table.
func ModeForExtension(ext string) MediaMode {
	if mode, ok := extensionModes[strings.ToLower(ext)]; ok {
		return mode
	}
	return ModeUnknown
}

// Extension returns the lower-cased text after the last '.' of the URL's
// final path segment, ignoring query and fragment. It is empty when there
// is no extension.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	base := path.Base(p)
	i := strings.LastIndexByte(base, '.')
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}
