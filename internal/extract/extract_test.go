package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("photo.png"))
	assert.True(t, IsImage("scan.JPG"))
	assert.True(t, IsImage("pic.jpeg"))
	assert.False(t, IsImage("report.pdf"))
	assert.False(t, IsImage("notes.txt"))
	assert.False(t, IsImage("archive.png.zip"))
}

func TestExtract_PlainTextVerbatim(t *testing.T) {
	e := New(zap.NewNop())

	text, err := e.Extract([]byte("line one\nline two"), "notes.txt")
	assert.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)

	// Unknown suffixes are treated as text too.
	text, err = e.Extract([]byte("key = value"), "settings.conf")
	assert.NoError(t, err)
	assert.Equal(t, "key = value", text)
}

func TestExtract_InvalidUTF8(t *testing.T) {
	e := New(zap.NewNop())

	_, err := e.Extract([]byte{0xff, 0xfe, 0x00, 0x01}, "blob.bin")
	assert.Error(t, err)
}

func TestExtract_MalformedPDFReturnsError(t *testing.T) {
	e := New(zap.NewNop())

	_, err := e.Extract([]byte("definitely not a pdf"), "broken.pdf")
	assert.Error(t, err)
}

func TestExtract_MalformedDocxReturnsError(t *testing.T) {
	e := New(zap.NewNop())

	_, err := e.Extract([]byte("definitely not a zip archive"), "broken.docx")
	assert.Error(t, err)
}
