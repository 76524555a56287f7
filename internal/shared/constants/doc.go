// Package constants centralizes scan bounds, score penalties and CLI defaults.
//
// Every lookahead bound used by the byte scanners lives here so that a single
// malformed document can never force an unbounded scan. Penalty values feed the
// page score directly and must stay stable between releases.
package constants
