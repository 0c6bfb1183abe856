package model

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ParseFloat parses s, returning def when s is not a finite number.
//
// Form input is coerced rather than rejected so that a partially filled KPI
// form still records a snapshot.
func ParseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// ParseInt parses s as a base-10 integer, returning def when it is not one.
func ParseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// ParseCount is ParseInt with a zero default and a floor of zero.
func ParseCount(s string) int {
	n := ParseInt(s, 0)
	if n < 0 {
		return 0
	}
	return n
}

// NormalizeRAG maps free text onto a RAG tag. Known tags match
// case-insensitively, blank input defaults to Green, and anything else is
// title-cased and kept.
func NormalizeRAG(s string) RAG {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return RAGGreen
	case "green", "g":
		return RAGGreen
	case "amber", "a", "yellow":
		return RAGAmber
	case "red", "r":
		return RAGRed
	}
	return RAG(cases.Title(language.English).String(s))
}
