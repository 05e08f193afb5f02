// Package content turns the base64-encoded HTML document bodies returned by
// the remote API into plain text suitable for full-text search.
package content

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

func decoderLogger() *slog.Logger {
	return slog.Default().With("component", "content-decoder")
}

// Decode decodes a base64 payload and strips its markup. A payload that is
// not valid base64 or not UTF-8 decodes to the empty string and is logged. If
// the markup cannot be tokenized the decoded text is returned unchanged.
func Decode(encoded string) string {
	raw, err := decodeBase64(encoded)
	if err != nil {
		decoderLogger().Warn("content decode failed", "error", err, "size", len(encoded))
		return ""
	}
	text, err := StripMarkup(raw)
	if err != nil {
		decoderLogger().Warn("markup parse failed, keeping decoded text", "error", err)
		return raw
	}
	return text
}

func decodeBase64(encoded string) (string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if rawErr != nil {
			return "", fmt.Errorf("decoding base64: %w", err)
		}
	}
	if !utf8.Valid(data) {
		return "", errors.New("decoded content is not valid utf-8")
	}
	return string(data), nil
}

// StripMarkup keeps only the text nodes of an HTML fragment, trims each one
// and joins them with single spaces. Script and style bodies are dropped.
func StripMarkup(markup string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	var (
		parts []string
		skip  int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.Join(parts, " "), nil
			}
			return "", z.Err()
		case html.StartTagToken:
			if isRawTextTag(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawTextTag(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if t := strings.TrimSpace(string(z.Text())); t != "" {
				parts = append(parts, t)
			}
		}
	}
}

func isRawTextTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
