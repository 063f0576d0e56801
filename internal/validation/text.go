package validation

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// errUndecodable is returned when content is neither UTF-8 nor GBK.
var errUndecodable = errors.New("cannot decode text content as UTF-8 or GBK")

// DecodeText decodes TXT/MD content, trying UTF-8 first and falling back to
// GBK. The returned encoding name is "utf-8" or "gbk".
func DecodeText(content []byte) (string, string, error) {
	if utf8.Valid(content) {
		return string(content), "utf-8", nil
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(content)
	if err != nil {
		return "", "", errUndecodable
	}
	text := string(decoded)
	// The GBK decoder substitutes U+FFFD for byte sequences it cannot map;
	// GBK itself cannot encode U+FFFD, so its presence means invalid input.
	if strings.ContainsRune(text, utf8.RuneError) {
		return "", "", errUndecodable
	}
	return text, "gbk", nil
}
