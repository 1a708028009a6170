package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
)

var ErrInvalidDuration = errors.New("invalid time format")

var durationPattern = regexp.MustCompile(`(?i)(?P<len>\d+(\.\d{0,8})?)\s{0,2}(?P<span>s(ec(ond)?)?|m(in(ute)?)?|h((ou)?r)?|d(ay)?|w(eek)?)s?`)

// separatorPattern matches what may sit between spans, e.g. "1h, 30m" or
// "1 day and 2 hours".
var separatorPattern = regexp.MustCompile(`(?i)^(\s|,|\band\b)*$`)

var spanSeconds = map[byte]float64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
	'w': 604800,
}

// ParseDuration parses relative spans such as "30 seconds", "1d" or "1h30m".
// The spans are summed. Any other text in the input is an error.
func ParseDuration(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	matches := durationPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return 0, ErrInvalidDuration
	}

	lenIdx := 2 * durationPattern.SubexpIndex("len")
	spanIdx := 2 * durationPattern.SubexpIndex("span")
	var seconds float64
	last := 0
	for _, match := range matches {
		if !separatorPattern.MatchString(input[last:match[0]]) {
			return 0, ErrInvalidDuration
		}
		last = match[1]

		length, err := strconv.ParseFloat(input[match[lenIdx]:match[lenIdx+1]], 64)
		if err != nil {
			return 0, ErrInvalidDuration
		}
		unit := strings.ToLower(input[match[spanIdx]:match[spanIdx+1]])[0]
		seconds += length * spanSeconds[unit]
	}
	if last != len(input) {
		return 0, ErrInvalidDuration
	}
	if seconds > math.MaxInt64/float64(time.Second) {
		return 0, ErrInvalidDuration
	}
	return time.Duration(seconds) * time.Second, nil
}
