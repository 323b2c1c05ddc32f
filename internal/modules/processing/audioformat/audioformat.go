// Package audioformat identifies the real container of an audio payload from
// its leading bytes. Browsers routinely mislabel recordings (Safari sends MP4
// as audio/webm, for example), and the transcription backend routes on the
// file extension, so the declared type is only a fallback.
package audioformat

import (
	"bytes"
	"strings"
)

// Format is a resolved media type with the file extension the transcription
// backend expects for it. When nothing was sniffed, MediaType is the declared
// type exactly as given.
type Format struct {
	MediaType string
	Extension string // with leading dot
	Sniffed   bool   // true when matched by signature rather than declared type
}

const defaultExtension = ".bin"

var (
	ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
	ftypMagic = []byte("ftyp")
	id3Magic  = []byte("ID3")
	oggMagic  = []byte("OggS")
	flacMagic = []byte("fLaC")
)

var (
	webm = Format{MediaType: "audio/webm", Extension: ".webm", Sniffed: true}
	wav  = Format{MediaType: "audio/wav", Extension: ".wav", Sniffed: true}
	mp3  = Format{MediaType: "audio/mpeg", Extension: ".mp3", Sniffed: true}
	m4a  = Format{MediaType: "audio/mp4", Extension: ".m4a", Sniffed: true}
	mp4  = Format{MediaType: "audio/mp4", Extension: ".mp4", Sniffed: true}
	ogg  = Format{MediaType: "audio/ogg", Extension: ".ogg", Sniffed: true}
	flac = Format{MediaType: "audio/flac", Extension: ".flac", Sniffed: true}
)

var declaredExtensions = map[string]string{
	"audio/webm":      ".webm",
	"video/webm":      ".webm",
	"audio/wav":       ".wav",
	"audio/wave":      ".wav",
	"audio/x-wav":     ".wav",
	"audio/vnd.wave":  ".wav",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/mpga":      ".mpga",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"audio/m4a":       ".m4a",
	"video/mp4":       ".mp4",
	"audio/ogg":       ".ogg",
	"audio/opus":      ".ogg",
	"audio/flac":      ".flac",
	"audio/x-flac":    ".flac",
	"video/quicktime": ".mov",
}

// Resolve returns the actual format of data. It inspects only the first few
// bytes, never fails, and returns the declared type unchanged when no
// signature matches.
func Resolve(data []byte, declared string) Format {
	if f, ok := sniff(data); ok {
		return f
	}
	return fromDeclared(declared)
}

func sniff(b []byte) (Format, bool) {
	switch {
	case bytes.HasPrefix(b, ebmlMagic):
		return webm, true
	case len(b) >= 12 && bytes.Equal(b[4:8], ftypMagic):
		return isoBrand(b[8:12]), true
	case len(b) >= 12 && bytes.HasPrefix(b, riffMagic) && bytes.Equal(b[8:12], waveMagic):
		return wav, true
	case bytes.HasPrefix(b, oggMagic):
		return ogg, true
	case bytes.HasPrefix(b, flacMagic):
		return flac, true
	case bytes.HasPrefix(b, id3Magic):
		return mp3, true
	case isMPEGFrameSync(b):
		return mp3, true
	}
	return Format{}, false
}

// isoBrand maps the ftyp major brand onto the ISO base media extension.
func isoBrand(brand []byte) Format {
	switch string(brand) {
	case "M4A ", "M4B ", "M4P ":
		return m4a
	}
	return mp4
}

// isMPEGFrameSync matches an MPEG audio frame header: 11 set sync bits and a
// non-reserved layer. ADTS AAC shares the sync word but uses layer 00.
func isMPEGFrameSync(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return false
	}
	layer := (b[1] >> 1) & 0x03
	return layer != 0
}

func fromDeclared(declared string) Format {
	return Format{MediaType: declared, Extension: declaredExtension(normalizeMediaType(declared))}
}

func declaredExtension(mediaType string) string {
	if ext, ok := declaredExtensions[mediaType]; ok {
		return ext
	}
	if !strings.HasPrefix(mediaType, "audio/") && !strings.HasPrefix(mediaType, "video/") {
		return defaultExtension
	}
	return subtypeExtension(mediaType)
}

func normalizeMediaType(raw string) string {
	mt := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	return mt
}

func subtypeExtension(mediaType string) string {
	idx := strings.Index(mediaType, "/")
	if idx < 0 || idx == len(mediaType)-1 {
		return defaultExtension
	}
	sub := strings.TrimPrefix(mediaType[idx+1:], "x-")
	for _, r := range sub {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultExtension
		}
	}
	if sub == "" {
		return defaultExtension
	}
	return "." + sub
}
