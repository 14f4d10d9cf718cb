// Package dates reduces free-text dates scraped in French, English and Arabic
// to compact numeric tokens, and parses those tokens with strptime-style
// formats.
package dates

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var tagPattern = regexp.MustCompile(`(?s)<.*?>`)

// Characters and boilerplate prefixes removed before anything else.
var (
	strippedChars = []string{",", "،", "◔"}
	prefixes      = []string{"تاريخ النشر: ", "Date de création: "}
)

// Weekday names, French then Arabic (both spellings of Monday).
var weekdays = []string{
	"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi",
	"الأحد", "الإثنين", "الاثنين", "الثلاثاء", "الأربعاء", "الخميس", "الجمعة", "السبت",
}

// Month substitutions. Order matters: longer names come before their
// abbreviations so "janvier" is not rewritten as "01vier".
var months = [][2]string{
	{"janvier", "01"}, {"january", "01"}, {"jan", "01"},
	{"février", "02"}, {"fevrier", "02"}, {"fév", "02"}, {"fev", "02"}, {"february", "02"}, {"feb", "02"},
	{"mars", "03"}, {"march", "03"}, {"mar", "03"},
	{"avril", "04"}, {"april", "04"}, {"avr", "04"}, {"apr", "04"},
	{"mai", "05"}, {"may", "05"},
	{"juin", "06"}, {"june", "06"}, {"jun", "06"},
	{"juillet", "07"}, {"juil", "07"}, {"july", "07"}, {"jul", "07"},
	{"august", "08"}, {"août", "08"}, {"aout", "08"}, {"aoû", "08"}, {"aou", "08"}, {"aug", "08"},
	{"septembre", "09"}, {"september", "09"}, {"sept", "09"}, {"sep", "09"},
	{"octobre", "10"}, {"october", "10"}, {"oct", "10"},
	{"novembre", "11"}, {"november", "11"}, {"nov", "11"},
	{"décembre", "12"}, {"decembre", "12"}, {"december", "12"}, {"décember", "12"}, {"déc", "12"}, {"dec", "12"},

	// Syriac-derived names used in Tunisia and Algeria.
	{"جانفي", "01"}, {"فيفري", "02"}, {"مارس", "03"}, {"أفريل", "04"}, {"أبريل", "04"},
	{"مايو", "05"}, {"ماي", "05"}, {"جوان", "06"}, {"جويلية", "07"}, {"أوت", "08"}, {"اوت", "08"},
	{"سبتمبر", "09"}, {"أكتوير", "10"}, {"أكتوبر", "10"}, {"نوفمبر", "11"}, {"ديسمبر", "12"},

	// Gregorian transliterations, Mashreq and Moroccan spellings.
	{"يناير", "01"}, {"فبراير", "02"}, {"ابريل", "04"}, {"يونيو", "06"},
	{"يوليوز", "07"}, {"يوليو", "07"}, {"اغسطس", "08"}, {"أغسطس", "08"},
	{"شتنبر", "09"}, {"نونبر", "11"}, {"دجنبر", "12"},
}

// agoMarker starts relative deadlines such as "il y a 3 jours".
const agoMarker = "ilya"

// Batches whose 7-character dates are missing the month's leading zero
// rather than the day's.
var monthPaddedBatches = map[string]bool{
	"minis-culture":              true,
	"minis-culture-news-ar":      true,
	"minis-culture-actions-ar":   true,
	"minis-culture-activites-fr": true,
}

// lastCharBatches keep only the final character of hyphenated dates.
// TODO: replace with a per-batch regexp column once the affected source
// publishes a stable date format.
var lastCharBatches = map[string]bool{
	"contemporaryand": true,
}

// Normalize reduces raw date text to a compact token such as "12052022".
// The result is meant to be parsed with the source's strptime format and is
// not guaranteed to be parseable. Normalize is idempotent.
func Normalize(raw, batchID string) string {
	date := norm.NFKC.String(raw)
	date = tagPattern.ReplaceAllString(date, "")
	for _, c := range strippedChars {
		date = strings.ReplaceAll(date, c, "")
	}
	for _, p := range prefixes {
		date = strings.ReplaceAll(date, p, "")
	}
	date = removeSpace(date)
	date = strings.ToLower(date)

	for _, day := range weekdays {
		date = strings.ReplaceAll(date, day, "")
	}
	for _, m := range months {
		date = strings.ReplaceAll(date, m[0], m[1])
	}

	if before, _, found := strings.Cut(date, agoMarker); found {
		date = before
	}

	// Each suffix rule can expose another, so they repeat until stable.
	for {
		next := trimSuffixes(date, batchID)
		if next == date {
			return date
		}
		date = next
	}
}

// trimSuffixes applies one pass of the trailing noise rules and restores a
// dropped leading zero.
func trimSuffixes(date, batchID string) string {
	date = padSevenChars(date, batchID)
	date = strings.TrimSuffix(date, ":")

	if strings.HasSuffix(date, "-12:00") {
		date = strings.TrimSpace(strings.ReplaceAll(date, "-12:00", ""))
		if runeLen(date) == 7 {
			date = insertZero(date, 2)
		}
	}

	if lastCharBatches[batchID] && strings.Contains(date, "-") {
		r := []rune(date)
		date = string(r[len(r)-1:])
	}

	date = strings.TrimSpace(date)
	date = strings.Trim(date, "-")
	date = strings.ReplaceAll(date, "misàjourle", "")

	return padSevenChars(date, batchID)
}

// padSevenChars restores the missing leading zero of a ddmyyyy or dmmyyyy
// token.
func padSevenChars(date, batchID string) string {
	if runeLen(date) != 7 {
		return date
	}
	if monthPaddedBatches[batchID] {
		return insertZero(date, 2)
	}
	return "0" + date
}

func insertZero(s string, at int) string {
	r := []rune(s)
	return string(r[:at]) + "0" + string(r[at:])
}

func runeLen(s string) int {
	return len([]rune(s))
}

func removeSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
