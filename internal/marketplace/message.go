package marketplace

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the marketplace limit for a post-sale message.
const MaxMessageLength = 350

// ProductPlaceholder is replaced with the product name in message templates.
const ProductPlaceholder = "{product}"

const ellipsis = "..."

// ComposePostSaleMessage renders template with productName, shortening the product
// name so the whole message fits MaxMessageLength runes.
func ComposePostSaleMessage(template, productName string) string {
	text := strings.ReplaceAll(template, ProductPlaceholder, productName)
	if utf8.RuneCountInString(text) <= MaxMessageLength {
		return text
	}

	uses := strings.Count(template, ProductPlaceholder)
	if uses == 0 {
		return truncateRunes(text, MaxMessageLength)
	}

	fixed := utf8.RuneCountInString(template) - uses*utf8.RuneCountInString(ProductPlaceholder)
	budget := (MaxMessageLength-fixed)/uses - utf8.RuneCountInString(ellipsis)
	if budget <= 0 {
		return truncateRunes(strings.ReplaceAll(template, ProductPlaceholder, ""), MaxMessageLength)
	}
	short := truncateRunes(productName, budget) + ellipsis
	return strings.ReplaceAll(template, ProductPlaceholder, short)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
