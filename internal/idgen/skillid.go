package idgen

import (
	"fmt"
	"regexp"
)

var skillIDPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ValidateSkillID checks that id is a valid catalog key.
// Rules: lowercase letters, digits, and dashes; must start with a letter and
// end with a letter or digit; max 64 characters.
func ValidateSkillID(id string) error {
	if len(id) > 64 {
		return fmt.Errorf("skill id too long (max 64 characters)")
	}
	if !skillIDPattern.MatchString(id) {
		return fmt.Errorf("skill id %q is invalid: must match %s", id, skillIDPattern.String())
	}
	return nil
}
