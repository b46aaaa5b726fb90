package textutil

import (
	"regexp"
	"strings"
)

var plateSeparatorRegex = regexp.MustCompile(`[\s\-·.]+`)

// NormalizePlate uppercases a license plate and strips the separators people
// type into them, "ba 123-xy" becomes "BA123XY".
func NormalizePlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	return plateSeparatorRegex.ReplaceAllString(plate, "")
}
