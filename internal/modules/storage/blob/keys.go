package blob

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/mx-space/capture/internal/modules/processing/audioformat"
)

// Kind is the contribution family an object belongs to.
type Kind string

const (
	KindAudio Kind = "audio"
	KindText  Kind = "text"
)

// ObjectKey returns a fresh key notes/<owner>/<note>/<kind>/<uuid>.<ext>.
func ObjectKey(ownerID, noteID string, kind Kind, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s%s.%s", KeyPrefix(ownerID, noteID, kind), uuid.New().String(), ext)
}

// KeyPrefix is the prefix every object of one note and kind lives under.
func KeyPrefix(ownerID, noteID string, kind Kind) string {
	return fmt.Sprintf("notes/%s/%s/%s/", ownerID, noteID, kind)
}

// ValidateKey checks that key was issued for this owner, note and kind.
func ValidateKey(key, ownerID, noteID string, kind Kind) error {
	return validateUnder(key, KeyPrefix(ownerID, noteID, kind), string(kind)+" object of this note")
}

// CaptureKey returns a fresh key captures/<owner>/<uuid>.<ext> for a
// single-capture recording that has no note yet.
func CaptureKey(ownerID, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s%s.%s", CapturePrefix(ownerID), uuid.New().String(), ext)
}

func CapturePrefix(ownerID string) string {
	return fmt.Sprintf("captures/%s/", ownerID)
}

// ValidateCaptureKey checks that key was issued to ownerID by CaptureKey.
func ValidateCaptureKey(key, ownerID string) error {
	return validateUnder(key, CapturePrefix(ownerID), "capture of this user")
}

func validateUnder(key, prefix, what string) error {
	if key == "" {
		return fmt.Errorf("storage key is required")
	}
	if path.Clean(key) != key || strings.Contains(key, "..") {
		return fmt.Errorf("storage key %q is not canonical", key)
	}
	if !strings.HasPrefix(key, prefix) {
		return fmt.Errorf("storage key is not a %s", what)
	}
	name := strings.TrimPrefix(key, prefix)
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("storage key %q is not a %s", key, what)
	}
	return nil
}

// ExtensionFor picks the file extension for an upload of mediaType.
func ExtensionFor(kind Kind, mediaType string) string {
	if kind == KindAudio {
		return strings.TrimPrefix(audioformat.Resolve(nil, mediaType).Extension, ".")
	}
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "text/markdown", "text/x-markdown":
		return "md"
	default:
		return "txt"
	}
}
