package httpds

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// MaxBodyBytes caps how much of a response body ReadText will read.
const MaxBodyBytes = 8 << 20

// ReadText reads resp.Body (up to MaxBodyBytes) and converts it to UTF-8
// according to the charset parameter of Content-Type. A missing or unknown
// charset is treated as UTF-8. It returns the decoded text and the charset
// name that was applied.
func ReadText(resp *http.Response) ([]byte, string, error) {
	lr := &io.LimitedReader{R: resp.Body, N: MaxBodyBytes + 1}
	raw, err := io.ReadAll(lr)
	if err != nil {
		return nil, "", fmt.Errorf("httpds: read body: %w", err)
	}
	if int64(len(raw)) > MaxBodyBytes {
		return nil, "", fmt.Errorf("httpds: body exceeds %d bytes", MaxBodyBytes)
	}
	return DecodeCharset(raw, resp.Header.Get("Content-Type"))
}

// DecodeCharset converts raw to UTF-8 using the charset named in contentType.
func DecodeCharset(raw []byte, contentType string) ([]byte, string, error) {
	charset := "utf-8"
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := strings.TrimSpace(params["charset"]); cs != "" {
			charset = strings.ToLower(cs)
		}
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return stripBOM(raw), "utf-8", nil
	}
	name, _ := htmlindex.Name(enc)
	if name == "utf-8" {
		return stripBOM(raw), name, nil
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return nil, name, fmt.Errorf("httpds: decode %s body: %w", name, err)
	}
	return out, name, nil
}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
}
