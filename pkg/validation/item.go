// Package validation checks document item content against the type and rules
// captured on the item.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

// MsgRequired is reported for an empty required item.
const MsgRequired = "is required"

// ValidateItem returns the validation errors for content of the given type
// under rules. An empty optional item is valid. The result is never nil.
func ValidateItem(itemType models.ItemType, rules models.ValidationRules, required bool, content string) []string {
	errs := []string{}

	if IsEmpty(itemType, content) {
		if required {
			errs = append(errs, MsgRequired)
		}
		return errs
	}

	switch itemType {
	case models.ItemTypeText, models.ItemTypeTextarea, models.ItemTypeRichText, models.ItemTypeMarkdown:
		errs = append(errs, checkText(rules, content)...)
	case models.ItemTypeURL:
		errs = append(errs, checkText(rules, content)...)
		if !isURL(content) {
			errs = append(errs, "must be a valid http or https URL")
		}
	case models.ItemTypeEmail:
		errs = append(errs, checkText(rules, content)...)
		if !isEmail(content) {
			errs = append(errs, "must be a valid email address")
		}
	case models.ItemTypeNumber:
		errs = append(errs, checkNumber(rules, content)...)
	case models.ItemTypeDate:
		errs = append(errs, checkDate(rules, content)...)
	case models.ItemTypeSelect:
		if len(rules.Options) > 0 && !slices.Contains(rules.Options, strings.TrimSpace(content)) {
			errs = append(errs, fmt.Sprintf("must be one of: %s", strings.Join(rules.Options, ", ")))
		}
	case models.ItemTypeMultiSelect:
		errs = append(errs, checkMultiSelect(rules, content)...)
	case models.ItemTypeCheckbox:
		checked, err := strconv.ParseBool(strings.TrimSpace(content))
		if err != nil {
			errs = append(errs, "must be true or false")
		} else if required && !checked {
			errs = append(errs, "must be checked")
		}
	}

	return errs
}

// IsEmpty reports whether content counts as missing for the item type.
func IsEmpty(itemType models.ItemType, content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	if itemType == models.ItemTypeMultiSelect {
		return len(parseSelection(trimmed)) == 0
	}
	return false
}

func checkText(rules models.ValidationRules, content string) []string {
	var errs []string
	length := utf8.RuneCountInString(content)

	if rules.MinLength != nil && length < *rules.MinLength {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", *rules.MinLength))
	}
	if rules.MaxLength != nil && length > *rules.MaxLength {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", *rules.MaxLength))
	}
	if rules.Pattern != "" {
		re, err := compilePattern(rules.Pattern)
		switch {
		case err != nil:
			errs = append(errs, "has an invalid pattern rule")
		case !re.MatchString(content):
			errs = append(errs, "does not match the required format")
		}
	}
	if rules.SafeContent {
		if res := CheckContent(content); res != nil {
			errs = append(errs, "contains unsafe content")
		}
	}
	return errs
}

func checkNumber(rules models.ValidationRules, content string) []string {
	n, err := strconv.ParseFloat(strings.TrimSpace(content), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return []string{"must be a number"}
	}

	var errs []string
	if rules.Integer && n != float64(int64(n)) {
		errs = append(errs, "must be a whole number")
	}
	if rules.Min != nil && n < *rules.Min {
		errs = append(errs, fmt.Sprintf("must be at least %s", formatFloat(*rules.Min)))
	}
	if rules.Max != nil && n > *rules.Max {
		errs = append(errs, fmt.Sprintf("must be at most %s", formatFloat(*rules.Max)))
	}
	return errs
}

func checkDate(rules models.ValidationRules, content string) []string {
	layout := rules.DateLayout()
	d, err := time.Parse(layout, strings.TrimSpace(content))
	if err != nil {
		return []string{fmt.Sprintf("must be a date in the format %s", layout)}
	}

	var errs []string
	if rules.After != "" {
		bound, err := time.Parse(layout, rules.After)
		switch {
		case err != nil:
			errs = append(errs, "has an invalid after rule")
		case !d.After(bound):
			errs = append(errs, fmt.Sprintf("must be after %s", rules.After))
		}
	}
	if rules.Before != "" {
		bound, err := time.Parse(layout, rules.Before)
		switch {
		case err != nil:
			errs = append(errs, "has an invalid before rule")
		case !d.Before(bound):
			errs = append(errs, fmt.Sprintf("must be before %s", rules.Before))
		}
	}
	return errs
}

func checkMultiSelect(rules models.ValidationRules, content string) []string {
	selected := parseSelection(strings.TrimSpace(content))

	var errs []string
	seen := make(map[string]bool, len(selected))
	for _, s := range selected {
		if seen[s] {
			errs = append(errs, fmt.Sprintf("selects %q more than once", s))
			continue
		}
		seen[s] = true
		if len(rules.Options) > 0 && !slices.Contains(rules.Options, s) {
			errs = append(errs, fmt.Sprintf("%q is not an allowed option", s))
		}
	}
	if rules.MinSelected != nil && len(selected) < *rules.MinSelected {
		errs = append(errs, fmt.Sprintf("must select at least %d options", *rules.MinSelected))
	}
	if rules.MaxSelected != nil && len(selected) > *rules.MaxSelected {
		errs = append(errs, fmt.Sprintf("must select at most %d options", *rules.MaxSelected))
	}
	return errs
}

// parseSelection accepts a JSON array of strings or a comma-separated list.
func parseSelection(content string) []string {
	var values []string
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &values); err != nil {
			return []string{content}
		}
	} else {
		values = strings.Split(content, ",")
	}

	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func isURL(content string) bool {
	u, err := url.ParseRequestURI(strings.TrimSpace(content))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isEmail(content string) bool {
	trimmed := strings.TrimSpace(content)
	addr, err := mail.ParseAddress(trimmed)
	return err == nil && addr.Address == trimmed
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var patternCache sync.Map // string -> *regexp.Regexp

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}
