package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"f2_scrooper/models"
)

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// CleanText trims s and collapses inner whitespace runs to single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeScore maps a raw score cell to a numeric string. Dashes and empty
// cells mean no points. Annotated cells ("12 FL") keep their first number.
func NormalizeScore(raw string) string {
	s := CleanText(raw)
	if s == "" || s == "-" {
		return "0"
	}
	if models.IsNumeric(s) {
		return s
	}
	if m := numberRe.FindString(s); m != "" {
		return m
	}
	return "0"
}

func firstText(sel *goquery.Selection, query string) string {
	return CleanText(sel.Find(query).First().Text())
}

func textOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
