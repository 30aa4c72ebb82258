// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"fmt"
	"regexp"
)

// exclusions maps the text of each exclusion pattern to its compiled form.
type exclusions map[string]*regexp.Regexp

func (o exclusions) add(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid exclusion URL regex %q: %w", pattern, err)
	}

	o[pattern] = re

	return nil
}

func (o exclusions) remove(pattern string) {
	delete(o, pattern)
}

// matches reports whether any pattern matches somewhere in url
func (o exclusions) matches(url string) bool {
	for _, re := range o {
		if re.MatchString(url) {
			return true
		}
	}

	return false
}
