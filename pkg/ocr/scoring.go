package ocr

import "strings"

// MinDigitRun is the shortest digit run BestDigits treats as a reading.
// Meter readings are four digits or more; shorter runs are usually noise.
const MinDigitRun = 4

// BestDigits picks the most plausible meter reading from raw OCR text using
// the default MinDigitRun.
func BestDigits(raw string) string {
	return bestDigits(raw, MinDigitRun)
}

// bestDigits returns the longest maximal run of at least minRun digits,
// first one wins on ties. Without such a run it returns every digit of raw
// in order.
func bestDigits(raw string, minRun int) string {
	if minRun < 1 {
		minRun = 1
	}
	best := ""
	start := -1
	for i := 0; i <= len(raw); i++ {
		if i < len(raw) && isDigit(raw[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if run := raw[start:i]; len(run) >= minRun && len(run) > len(best) {
				best = run
			}
			start = -1
		}
	}
	if best != "" {
		return best
	}
	return onlyDigits(raw)
}

// digitRuns lists the maximal digit runs of s in scan order.
func digitRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r < '0' || r > '9' })
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// onlyDigits extracts decimal digits from a string.
func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
