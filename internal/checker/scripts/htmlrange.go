package scripts

import (
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	serrors "github.com/khanhnv2901/pagescope/internal/shared/errors"
)

// FindHTMLRange locates <html> in the first bytes of body and </html> in the
// last bytes. When </html> is missing the range runs to the end of the body.
//
// A body that is truncated or too large for the fast scan, or that has no
// <html> tag at all, returns an error and no range.
func FindHTMLRange(ctx *analysis.Context, body []byte, truncated bool) (Range, error) {
	if truncated || len(body) >= consts.LargeBodyBytes {
		ctx.Add(analysis.Warning{
			Message:  "Body too large for fast scan.",
			Severity: analysis.SeveritySuspicious,
			Penalty:  consts.PenaltyBodyTooLarge,
			Source:   analysis.SourceBody,
		})
		return Range{}, serrors.ErrBodyTooLarge
	}

	start := findOpenHTML(body)
	if start < 0 {
		ctx.Add(analysis.Warning{
			Message:  "No HTML structure detected in the response body. This is unexpected for a web page and may indicate a server issue or a malicious response.",
			Severity: analysis.SeverityCritical,
			Penalty:  consts.PenaltyCritical,
			Source:   analysis.SourceBody,
		})
		return Range{}, serrors.ErrNoHTML
	}

	end := findCloseHTML(body)
	if end < 0 {
		ctx.Add(analysis.Warning{
			Message:  "Missing closing </html> tag. This indicates a malformed HTML structure, which can be a sign of development errors or potentially malicious intent.",
			Severity: analysis.SeveritySuspicious,
			Penalty:  consts.PenaltyUnclosedHTML,
			Source:   analysis.SourceBody,
		})
		end = len(body)
	}
	return Range{Start: start, End: end}, nil
}

func findOpenHTML(body []byte) int {
	limit := consts.HTMLEdgeWindow
	if limit > len(body) {
		limit = len(body)
	}
	for i := 0; i+5 <= limit; i++ {
		if body[i] == byteLT && hasKeywordAt(body, i+1, "html") {
			return i
		}
	}
	return -1
}

// findCloseHTML returns the position just past the '>' of </html>, or -1.
func findCloseHTML(body []byte) int {
	from := len(body) - consts.HTMLEdgeWindow
	if from < 0 {
		from = 0
	}
	for j := from; j+6 <= len(body); j++ {
		if body[j] != byteLT || body[j+1] != byteSlash || !hasKeywordAt(body, j+2, "html") {
			continue
		}
		k := j + 6
		for k < len(body) && body[k] != byteGT {
			k++
		}
		if k < len(body) {
			k++
		}
		return k
	}
	return -1
}
