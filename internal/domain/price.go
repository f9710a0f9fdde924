package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	okuPattern  = regexp.MustCompile(`([\d,.]+)\s*億`)
	manPattern  = regexp.MustCompile(`([\d,.]+)\s*万`)
	yenPattern  = regexp.MustCompile(`([\d,]+)\s*円`)
	barePattern = regexp.MustCompile(`^[\d,]+$`)
)

// ParsePriceYen converts a listing price label to yen. Labels combine
// 億 (hundred million) and 万 (ten thousand) units, e.g. "1億2,500万円"
// or "8.5万円". Returns false for labels with no parsable amount, such
// as "応相談".
func ParsePriceYen(label string) (int64, bool) {
	s := strings.TrimSpace(label)
	if s == "" {
		return 0, false
	}

	var total float64
	matched := false

	if m := okuPattern.FindStringSubmatch(s); m != nil {
		if v, err := parseAmount(m[1]); err == nil {
			total += v * 100_000_000
			matched = true
			s = s[strings.Index(s, m[0])+len(m[0]):]
		}
	}
	if m := manPattern.FindStringSubmatch(s); m != nil {
		if v, err := parseAmount(m[1]); err == nil {
			total += v * 10_000
			matched = true
			s = s[strings.Index(s, m[0])+len(m[0]):]
		}
	}
	if !matched {
		if m := yenPattern.FindStringSubmatch(s); m != nil {
			if v, err := parseAmount(m[1]); err == nil {
				total += v
				matched = true
			}
		} else if barePattern.MatchString(s) {
			if v, err := parseAmount(s); err == nil {
				total += v
				matched = true
			}
		}
	}

	if !matched || total <= 0 {
		return 0, false
	}
	return int64(total), true
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
