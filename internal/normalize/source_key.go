package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Source is the canonical identity of a content source. Key is what locking
// and caching key on, so two refs that point at the same underlying content
// must normalize to the same Key.
type Source struct {
	Kind string // "youtube", "pdf", "audio", "image", "text"
	Key  string
	Raw  string
}

const (
	KindYouTube = "youtube"
	KindPDF     = "pdf"
	KindAudio   = "audio"
	KindImage   = "image"
	KindText    = "text"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseSourceRef rejects malformed refs before any lock, quota check, or
// cache lookup happens.
func ParseSourceRef(raw string) (Source, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return Source{}, fmt.Errorf("empty source ref")
	}

	if id, ok := extractYouTubeID(ref); ok {
		return Source{Kind: KindYouTube, Key: "yt:" + id, Raw: raw}, nil
	}
	if looksLikeYouTube(ref) {
		return Source{}, fmt.Errorf("unsupported youtube url shape: %q", ref)
	}

	kind, ok := classifyFileKind(ref)
	if !ok {
		return Source{}, fmt.Errorf("unsupported source ref: %q", ref)
	}
	return Source{Kind: kind, Key: "file:" + hashPath(cleanFileRef(ref)), Raw: raw}, nil
}

func looksLikeYouTube(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be")
}

func extractYouTubeID(ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com":
		p := strings.Trim(u.EscapedPath(), "/")
		switch {
		case p == "watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(p, "shorts/"),
			strings.HasPrefix(p, "embed/"),
			strings.HasPrefix(p, "live/"),
			strings.HasPrefix(p, "v/"):
			parts := strings.Split(p, "/")
			if len(parts) >= 2 {
				id = parts[1]
			}
		}
	default:
		return "", false
	}

	if !videoIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// classifyFileKind accepts gs://, file:// and bare storage keys. Arbitrary
// web URLs are rejected here so they fail validation instead of holding a
// lock and then missing in the bucket.
func classifyFileKind(ref string) (string, bool) {
	name := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		switch u.Scheme {
		case "gs", "file":
			name = u.Path
		default:
			return "", false
		}
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF, true
	case ".mp3", ".wav", ".m4a", ".flac", ".ogg", ".opus":
		return KindAudio, true
	case ".png", ".jpg", ".jpeg", ".webp":
		return KindImage, true
	case ".txt", ".md":
		return KindText, true
	default:
		return "", false
	}
}

// cleanFileRef strips scheme noise and query strings so equivalent refs to
// the same object hash identically.
func cleanFileRef(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		host := strings.ToLower(u.Hostname())
		return u.Scheme + "://" + host + path.Clean("/"+u.Path)
	}
	return path.Clean("/" + strings.TrimPrefix(ref, "/"))
}

// ObjectPath returns the bucket object path for a file-backed source.
func ObjectPath(src Source) string {
	ref := src.Raw
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		ref = u.Path
	}
	return strings.TrimPrefix(path.Clean("/"+ref), "/")
}

// MimeFor maps a file-backed source to the MIME type providers expect.
func MimeFor(src Source) string {
	switch strings.ToLower(filepath.Ext(ObjectPath(src))) {
	case ".pdf":
		return "application/pdf"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".md":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

func hashPath(cleaned string) string {
	sum := sha256.Sum256([]byte(cleaned))
	return hex.EncodeToString(sum[:])[:32]
}
