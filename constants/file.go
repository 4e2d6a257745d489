package constants

import (
	"mime"
	"net/http"
	"strings"
)

const (
	MimePDF  = "application/pdf"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeTIFF = "image/tiff"
	MimeBMP  = "image/bmp"
	MimeGIF  = "image/gif"
	MimeWebP = "image/webp"
)

// SupportedMimeTypes are the source formats the OCR engine accepts.
var SupportedMimeTypes = map[string]struct{}{
	MimePDF:  {},
	MimePNG:  {},
	MimeJPEG: {},
	MimeTIFF: {},
	MimeBMP:  {},
	MimeGIF:  {},
	MimeWebP: {},
}

// AllowedExtensions holds the default allowed file extensions for ingestion.
var AllowedExtensions = map[string]string{
	"pdf":  MimePDF,
	"png":  MimePNG,
	"jpg":  MimeJPEG,
	"jpeg": MimeJPEG,
	"tif":  MimeTIFF,
	"tiff": MimeTIFF,
	"bmp":  MimeBMP,
	"gif":  MimeGIF,
	"webp": MimeWebP,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeMime drops parameters (";charset=...") and lowercases.
func NormalizeMime(m string) string {
	if mt, _, err := mime.ParseMediaType(m); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(m))
}

func IsSupportedMime(m string) bool {
	_, ok := SupportedMimeTypes[NormalizeMime(m)]
	return ok
}

func IsPDFMime(m string) bool {
	return NormalizeMime(m) == MimePDF
}

// MimeForExt maps an extension (with or without dot) to a supported MIME type, or "".
func MimeForExt(ext string) string {
	return AllowedExtensions[NormalizeExt(ext)]
}

// DetectMime prefers the extension mapping and falls back to content sniffing.
func DetectMime(ext string, head []byte) string {
	if m := MimeForExt(ext); m != "" {
		return m
	}
	if len(head) == 0 {
		return ""
	}
	return NormalizeMime(http.DetectContentType(head))
}
