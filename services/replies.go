package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ReplyKind classifies a driver's free-text reply.
type ReplyKind int

const (
	ReplyUnknown ReplyKind = iota
	ReplyAccept
	ReplyReject
	ReplyComplete
)

var (
	acceptReplies = map[string]bool{
		"acepto": true, "aceptar": true, "ok": true, "listo": true, "si": true,
	}
	rejectReplies = map[string]bool{
		"no puedo": true, "rechazo": true, "no": true, "cancelar": true,
	}
	completeReplies = map[string]bool{
		"completado": true, "completo": true, "entregado": true,
		"finalizado": true, "terminado": true, "listo entregado": true,
	}
)

// foldReply lowercases, trims and strips diacritics so "SÍ" matches "si"
// and "rechazó" matches "rechazo".
func foldReply(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// ClassifyReply maps driver text onto accept/reject/complete. Anything else
// is ReplyUnknown, which callers answer with a keyword prompt, never an
// error.
func ClassifyReply(text string) ReplyKind {
	t := foldReply(text)
	switch {
	case acceptReplies[t]:
		return ReplyAccept
	case rejectReplies[t]:
		return ReplyReject
	case completeReplies[t]:
		return ReplyComplete
	}
	return ReplyUnknown
}
