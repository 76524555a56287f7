package scripts

import (
	"bytes"
	"strings"

	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	"golang.org/x/net/html"
)

const metaCSPEquiv = "content-security-policy"

// ExtractMetaCSP returns the content of a <meta http-equiv="Content-Security-Policy">
// found among the first tags of head. Entities in the content are decoded.
func ExtractMetaCSP(body []byte, head Range) (string, bool) {
	lo, hi := clamp(body, head.Start, head.End)
	if lo >= hi {
		return "", false
	}

	z := html.NewTokenizer(bytes.NewReader(body[lo:hi]))
	seen := 0
	for seen < consts.MetaTagsInHead {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data == "head" {
				continue
			}
			seen++
			if tok.Data != "meta" {
				continue
			}
			if content, ok := metaCSPContent(tok.Attr); ok {
				return content, true
			}
		}
	}
	return "", false
}

func metaCSPContent(attrs []html.Attribute) (string, bool) {
	var equiv, content string
	hasContent := false
	for _, a := range attrs {
		switch a.Key {
		case "http-equiv":
			equiv = strings.ToLower(strings.TrimSpace(a.Val))
		case "content":
			content = strings.TrimSpace(a.Val)
			hasContent = true
		}
	}
	if equiv != metaCSPEquiv || !hasContent || content == "" {
		return "", false
	}
	return content, true
}
