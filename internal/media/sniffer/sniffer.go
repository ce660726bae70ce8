package sniffer

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
)

type MediaType string

const (
	TypeJPEG  MediaType = "jpeg"
	TypePNG   MediaType = "png"
	TypeDICOM MediaType = "dicom"
	TypeGIF   MediaType = "gif"
	TypeWEBP  MediaType = "webp"
)

var ErrUnknownType = errors.New("unknown media type")

// dicomPreamble is the fixed-length preamble that precedes the "DICM" prefix in Part 10 files.
const dicomPreamble = 128

// HeadSize is how many leading bytes Detect needs to recognise every supported type.
const HeadSize = 512

type Result struct {
	Type MediaType
	MIME string
}

// Supported reports whether the type is accepted for diagnosis.
func (r Result) Supported() bool {
	switch r.Type {
	case TypeJPEG, TypePNG, TypeDICOM:
		return true
	}
	return false
}

// Extension is the file extension used when archiving the upload.
func (r Result) Extension() string {
	switch r.Type {
	case TypeJPEG:
		return "jpg"
	case TypeDICOM:
		return "dcm"
	default:
		return string(r.Type)
	}
}

func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, HeadSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	if isJPEG(head) {
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	}
	if isPNG(head) {
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	}
	if isDICOM(head) {
		return Result{Type: TypeDICOM, MIME: "application/dicom"}, nil
	}
	if isGIF(head) {
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	}
	if isWEBP(head) {
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	}

	return Result{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isDICOM(head []byte) bool {
	return len(head) >= dicomPreamble+4 && bytes.Equal(head[dicomPreamble:dicomPreamble+4], []byte("DICM"))
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

func MimeTypeFromHTTP(header http.Header) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}
