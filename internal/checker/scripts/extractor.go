package scripts

import (
	"fmt"

	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	serrors "github.com/khanhnv2901/pagescope/internal/shared/errors"
)

// layout holds the tag positions found in the first pass over the '<' markers.
type layout struct {
	headPos      int
	headEndPos   int
	bodyPos      int
	bodyEndPos   int
	scriptOpens  []int
	scriptCloses []int
}

// Extract locates every <script> element inside html and resolves its attributes.
//
// Structural problems (missing <head>, misordered head/body, open/close count
// mismatch, a script tag that never closes) emit one warning and return an
// error from internal/shared/errors. When the head was located, the returned
// Result still carries the Head range, but no targets. A page without scripts
// returns an empty Result and no error.
func Extract(ctx *analysis.Context, body []byte, html Range) (*Result, error) {
	l := scanLayout(body, html)

	if l.headPos < 0 || l.headEndPos < 0 {
		ctx.Add(analysis.Warning{
			Message:  "Missing or malformed <head> tag.",
			Severity: analysis.SeverityCritical,
			Penalty:  consts.PenaltyCritical,
			Source:   analysis.SourceBody,
		})
		return nil, serrors.ErrMissingHead
	}

	res := &Result{
		HTMLRange: html,
		Head:      Range{Start: l.headPos, End: l.headEndPos},
	}

	if l.bodyPos < 0 || l.bodyEndPos < 0 {
		missing := "</body>"
		if l.bodyPos < 0 {
			missing = "<body>"
		}
		ctx.Add(analysis.Warning{
			Message:  fmt.Sprintf("Missing or malformed %s tag.", missing),
			Severity: analysis.SeveritySuspicious,
			Penalty:  consts.PenaltyMissingBodyTag,
			Source:   analysis.SourceBody,
		})
	}

	if l.headPos >= l.bodyPos {
		ctx.Add(analysis.Warning{
			Message:  "Invalid document structure <head> or <body> tag are not in the correct order or malformed.",
			Severity: analysis.SeverityCritical,
			Penalty:  consts.PenaltyCritical,
			Source:   analysis.SourceBody,
		})
		return res, serrors.ErrInvalidStructure
	}

	if len(l.scriptOpens) == 0 {
		return res, nil
	}

	if len(l.scriptOpens) != len(l.scriptCloses) {
		reportMismatch(ctx)
		return res, serrors.ErrScriptTagMismatch
	}

	targets := make([]Target, len(l.scriptOpens))
	for i, start := range l.scriptOpens {
		end := findTagEnd(body, start)
		if end < 0 {
			ctx.Add(analysis.Warning{
				Message:  fmt.Sprintf("Script tag could not be closed within %d bytes. This is highly unusual and may indicate malformed or suspicious HTML. HTML body was not analyzed", consts.ScriptTagLookahead),
				Severity: analysis.SeveritySuspicious,
				Penalty:  consts.PenaltyScriptUnclosed,
				Source:   analysis.SourceBody,
			})
			return res, serrors.ErrUnclosedScriptTag
		}
		targets[i] = Target{
			Start:         start,
			End:           end,
			EndTagPos:     l.scriptCloses[i],
			IsSelfClosing: body[end-1] == byteSlash,
			Context:       classifyContext(start, l.headPos, l.bodyPos),
			srcPos:        -1,
			typePos:       -1,
		}
		if targets[i].EndTagPos < targets[i].End {
			reportMismatch(ctx)
			return res, serrors.ErrScriptTagMismatch
		}
	}

	res.Targets = targets
	resolveAttributes(ctx, body, res)
	return res, nil
}

func reportMismatch(ctx *analysis.Context) {
	ctx.Add(analysis.Warning{
		Message:  "Mismatch in script open/close tag count. HTML might be malformed or cloaked.",
		Severity: analysis.SeverityCritical,
		Penalty:  consts.PenaltyCritical,
		Source:   analysis.SourceBody,
	})
}

// scanLayout classifies every '<' in the range. Only the first <head>, </head>,
// <body> and </body> are kept; every <script> open and </script> close is kept.
func scanLayout(body []byte, html Range) layout {
	l := layout{headPos: -1, headEndPos: -1, bodyPos: -1, bodyEndPos: -1}

	for _, pos := range MarkerPositions(body, html.Start, html.End, byteLT) {
		if pos+1 >= len(body) {
			continue
		}
		if body[pos+1] == byteSlash {
			switch {
			case tagKeywordAt(body, pos, "script", true):
				l.scriptCloses = append(l.scriptCloses, pos)
			case l.headEndPos < 0 && tagKeywordAt(body, pos, "head", true):
				l.headEndPos = pos
			case l.bodyEndPos < 0 && tagKeywordAt(body, pos, "body", true):
				l.bodyEndPos = pos
			}
			continue
		}
		switch {
		case l.headPos < 0 && tagKeywordAt(body, pos, "head", false):
			l.headPos = pos
		case l.bodyPos < 0 && tagKeywordAt(body, pos, "body", false):
			l.bodyPos = pos
		case tagKeywordAt(body, pos, "script", false):
			l.scriptOpens = append(l.scriptOpens, pos)
		}
	}
	return l
}

// findTagEnd returns the first '>' within the script tag lookahead, or -1.
func findTagEnd(body []byte, start int) int {
	limit := start + consts.ScriptTagLookahead
	if limit > len(body) {
		limit = len(body)
	}
	for i := start + 1; i < limit; i++ {
		if body[i] == byteGT {
			return i
		}
	}
	return -1
}

func classifyContext(pos, headPos, bodyPos int) Context {
	switch {
	case pos < headPos:
		return ContextUnknown
	case pos < bodyPos:
		return ContextInHead
	default:
		return ContextInBody
	}
}
