package scripts

import consts "github.com/khanhnv2901/pagescope/internal/shared/constants"

const (
	byteLT     = '<'
	byteGT     = '>'
	byteSlash  = '/'
	byteEqual  = '='
	byteDQuote = '"'
	byteSQuote = '\''
)

// MarkerPositions returns every position of marker inside body[lo:hi], in order.
func MarkerPositions(body []byte, lo, hi int, marker byte) []int {
	lo, hi = clamp(body, lo, hi)
	var out []int
	for i := lo; i < hi; i++ {
		if body[i] == marker {
			out = append(out, i)
		}
	}
	return out
}

// QuotePositions returns the positions of the first two quote bytes (either kind)
// found in body[from:limit]. ok is false when fewer than two are found.
func QuotePositions(body []byte, from, limit int) (first, second int, ok bool) {
	from, limit = clamp(body, from, limit)
	first = -1
	for i := from; i < limit; i++ {
		if body[i] != byteDQuote && body[i] != byteSQuote {
			continue
		}
		if first < 0 {
			first = i
			continue
		}
		return first, i, true
	}
	return first, -1, false
}

// quotedValue returns the bytes between the first two quote markers after the
// '=' at eq, searching up to limit (the tag's '>'). A negative limit falls back
// to the attribute lookahead. The value must open right after '=', so an
// unquoted value never borrows the quotes of the next attribute.
func quotedValue(body []byte, eq, limit int) ([]byte, bool) {
	if limit < 0 {
		limit = eq + consts.AttributeValueLookahead
	}
	first, second, ok := QuotePositions(body, eq+1, limit)
	if !ok {
		return nil, false
	}
	for i := eq + 1; i < first; i++ {
		if !isSpace(body[i]) {
			return nil, false
		}
	}
	return body[first+1 : second], true
}

// hasKeywordAt reports whether body at pos case-insensitively starts with keyword.
// keyword must be lowercase ASCII letters.
func hasKeywordAt(body []byte, pos int, keyword string) bool {
	if pos < 0 || pos+len(keyword) > len(body) {
		return false
	}
	for i := 0; i < len(keyword); i++ {
		if body[pos+i]|0x20 != keyword[i] {
			return false
		}
	}
	return true
}

// tagKeywordAt reports whether the tag starting at lt ('<') names keyword.
// Whitespace after '<' or '</' is tolerated inside the keyword window, and the
// keyword must be followed by a delimiter so that <header> never matches head.
func tagKeywordAt(body []byte, lt int, keyword string, closing bool) bool {
	i := lt + 1
	if closing {
		i++
	}
	window := lt + consts.TagKeywordWindow
	for i < len(body) && i < window && isSpace(body[i]) {
		i++
	}
	if i >= window || !hasKeywordAt(body, i, keyword) {
		return false
	}
	after := i + len(keyword)
	if after >= len(body) {
		return true
	}
	return isTagDelimiter(body[after])
}

// matchAttributeKey reports whether the bytes right before an '=' at eq name key,
// allowing whitespace between the name and '=' and requiring a delimiter before it.
func matchAttributeKey(body []byte, eq int, key string) bool {
	i := eq - 1
	for i >= 0 && isSpace(body[i]) {
		i--
	}
	start := i - len(key) + 1
	if start < 1 || !hasKeywordAt(body, start, key) {
		return false
	}
	return isSpace(body[start-1]) || body[start-1] == byteSlash || body[start-1] == byteDQuote || body[start-1] == byteSQuote
}

// hasBareAttribute reports whether key appears as an attribute without a value in body[lo:hi].
func hasBareAttribute(body []byte, lo, hi int, key string) bool {
	lo, hi = clamp(body, lo, hi)
	for i := lo + 1; i+len(key) <= hi; i++ {
		if !isSpace(body[i-1]) || !hasKeywordAt(body, i, key) {
			continue
		}
		after := i + len(key)
		if after >= hi || isSpace(body[after]) || body[after] == byteGT || body[after] == byteSlash {
			return true
		}
	}
	return false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

func isTagDelimiter(b byte) bool {
	return isSpace(b) || b == byteGT || b == byteSlash
}

func clamp(body []byte, lo, hi int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > len(body) {
		hi = len(body)
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}
