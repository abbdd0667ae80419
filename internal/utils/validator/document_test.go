package validator

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"image"
	"image/png"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
)

// pngHeader is enough for content sniffing but not for decoding.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// hugePNG is a valid 1x1 PNG whose IHDR claims w x h pixels.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := pngImage(t, 1, 1)
	// 8 字节签名 + 4 长度 + "IHDR", 宽高紧随其后, CRC 覆盖类型和数据
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}

func TestValidateImage(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), nil)

	res, err := v.ValidateFile(fileHeader(t, "scan.png", pngImage(t, 40, 20)))
	require.NoError(t, err)
	assert.True(t, res.IsValid, "%v", res.Errors)
	assert.Equal(t, "image/png", res.FileInfo.MimeType)
	assert.Len(t, res.FileInfo.Hash, 64)
	sum := md5.Sum(pngImage(t, 40, 20))
	assert.Equal(t, hex.EncodeToString(sum[:]), res.FileInfo.ContentMD5)
	assert.Equal(t, 40, res.FileInfo.Width)
	assert.Equal(t, 20, res.FileInfo.Height)
}

func TestValidateImageContent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDimension = 30
	v := NewDocumentValidator(logger.NewTestLogger(), cfg)

	res, err := v.ValidateFile(fileHeader(t, "scan.png", pngHeader))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "INVALID_IMAGE", res.Errors[0].Code)

	res, err = v.ValidateFile(fileHeader(t, "scan.png", pngImage(t, 40, 20)))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "IMAGE_TOO_LARGE", res.Errors[0].Code)
}

func TestOversizedImageRejectedFromHeader(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), nil)

	// 20000x20000 的灰度图完整解码需要 400MB, 头部检查必须先拒绝
	res, err := v.ValidateFile(fileHeader(t, "scan.png", hugePNG(t, 20000, 20000)))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "IMAGE_TOO_LARGE", res.Errors[0].Code)
	assert.Equal(t, 20000, res.FileInfo.Width)
	assert.Equal(t, 20000, res.FileInfo.Height)

	// 头部尺寸在限制内但像素数据不匹配
	res, err = v.ValidateFile(fileHeader(t, "scan.png", hugePNG(t, 50, 50)))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "INVALID_IMAGE", res.Errors[0].Code)
}

func TestValidateRejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFileSize = 16
	v := NewDocumentValidator(logger.NewTestLogger(), cfg)

	cases := map[string]struct {
		name    string
		content []byte
		code    string
	}{
		"extension": {"notes.docx", []byte("x"), "INVALID_FILE_TYPE"},
		"empty":     {"scan.png", nil, "EMPTY_FILE"},
		"too large": {"scan.png", bytes.Repeat([]byte("a"), 17), "FILE_TOO_LARGE"},
		"mime":      {"scan.png", []byte("plain text file"), "INVALID_MIME_TYPE"},
		"no name":   {".pdf", []byte("%PDF-1.4"), "MISSING_FILENAME"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := v.ValidateFile(fileHeader(t, tc.name, tc.content))
			require.NoError(t, err)
			assert.False(t, res.IsValid)
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, tc.code, res.Errors[0].Code)
		})
	}
}

func TestValidateBrokenPDF(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), nil)

	res, err := v.ValidateFile(fileHeader(t, "broken.pdf", []byte("%PDF-1.4\nnot really a pdf")))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "INVALID_PDF", res.Errors[0].Code)
}
