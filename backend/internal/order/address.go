package order

import (
	"strings"
	"unicode"
)

var directionals = map[string]bool{
	"n": true, "s": true, "e": true, "w": true,
	"ne": true, "nw": true, "se": true, "sw": true,
	"north": true, "south": true, "east": true, "west": true,
}

var spokenDigits = map[string]string{
	"zero": "0", "oh": "0", "o": "0", "one": "1", "two": "2", "three": "3",
	"four": "4", "five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

// addressReadBack reports whether transcript contains the street number
// and the street name of address. Numbers read digit by digit ("one two
// three") count as the number.
func addressReadBack(address, transcript string) bool {
	number, street := streetParts(address)
	if street == "" && number == "" {
		return false
	}

	spoken := transcriptTokens(transcript)
	if number != "" && !spoken[number] {
		return false
	}
	if street != "" && !spoken[street] {
		return false
	}
	return true
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// streetParts returns the house number and the first street-name word.
func streetParts(address string) (number, street string) {
	tokens := tokenize(address)
	start := 0
	if len(tokens) > 0 && startsWithDigit(tokens[0]) {
		number = tokens[0]
		start = 1
	}
	for _, tok := range tokens[start:] {
		if directionals[tok] {
			continue
		}
		street = tok
		break
	}
	return number, street
}

// transcriptTokens returns the words of transcript plus every number
// spelled out digit by digit, joined.
func transcriptTokens(transcript string) map[string]bool {
	tokens := tokenize(transcript)
	set := make(map[string]bool, len(tokens))
	var run strings.Builder
	flush := func() {
		if run.Len() > 1 {
			set[run.String()] = true
		}
		run.Reset()
	}
	for _, tok := range tokens {
		set[tok] = true
		if d, ok := spokenDigits[tok]; ok {
			run.WriteString(d)
			continue
		}
		if isDigits(tok) && (run.Len() > 0 || len(tok) == 1) {
			run.WriteString(tok)
			continue
		}
		flush()
	}
	flush()
	return set
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
