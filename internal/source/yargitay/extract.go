package yargitay

import (
	"regexp"
	"strings"
	"time"
)

// Patterns derived from observed decision texts, e.g.
// "14. Hukuk Dairesi  2011/2628 E., 2011/3698 K." and
// "23.03.2011 tarihinde oybirliği ile".
var (
	headerPattern = regexp.MustCompile(`(?is)([0-9]+\.\s+[a-zA-Z\s]+Dairesi).*?(\d{4}/\d+)\s*E\..*?(\d{4}/\d+)\s*K\.`)
	datePattern   = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})\s+tarihinde`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// Metadata holds the index fields extractable from a raw decision text.
type Metadata struct {
	Daire       string
	EsasNo      string
	KararNo     string
	KararTarihi string // YYYY-MM-DD
}

// ExtractMetadata pulls chamber, docket and verdict numbers, and the verdict
// date out of a decision body. Missing fields stay empty.
func ExtractMetadata(text string) Metadata {
	clean := StripHTML(text)

	var meta Metadata
	if m := headerPattern.FindStringSubmatch(clean); m != nil {
		meta.Daire = strings.TrimSpace(m[1])
		meta.EsasNo = strings.TrimSpace(m[2])
		meta.KararNo = strings.TrimSpace(m[3])
	}
	if m := datePattern.FindStringSubmatch(clean); m != nil {
		meta.KararTarihi = NormalizeDate(m[1])
	}
	return meta
}

// StripHTML removes markup and entity noise from an upstream document and
// collapses whitespace.
func StripHTML(raw string) string {
	s := strings.ReplaceAll(raw, "\u00a0", " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeDate converts the upstream DD.MM.YYYY form to YYYY-MM-DD.
// Unparseable input returns the empty string.
func NormalizeDate(raw string) string {
	t, err := time.Parse("02.01.2006", strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// Summarize derives a short summary from the decision body, truncating at
// limit runes with an ellipsis.
func Summarize(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
