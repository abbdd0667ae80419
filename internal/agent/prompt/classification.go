package prompt

import (
	"strings"
	"unicode"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
)

// ClosedClassification asks for exactly one label from labels.
func ClosedClassification(text string, labels []string) string {
	var sb strings.Builder
	sb.WriteString("Given the document\n\n<document>")
	sb.WriteString(text)
	sb.WriteString("</document>\n\nclassify the document into the following classes\n\n<classes>\n")
	for _, label := range labels {
		sb.WriteString(label)
		sb.WriteString("\n")
	}
	sb.WriteString("</classes>\n\nreturn only the CLASS_NAME with no preamble or explanation.\n")
	return sb.String()
}

// OpenClassification asks for a free-text category.
func OpenClassification(text string) string {
	return "Classify the following document text into categories like 'Invoice', 'Receipt', 'Report', etc.\n" +
		"Return only the category name with no preamble or explanation.\n\n<document>" + text + "</document>\n"
}

// NormalizeLabel turns a completion like ` "Bank statement." ` into BANK_STATEMENT.
func NormalizeLabel(raw string) string {
	s := strings.TrimSpace(raw)
	// 只取第一行
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '_')
	})
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	}), "_")
	return strings.ToUpper(s)
}

// ParseLabel maps a completion onto labels. Only the first line counts, and
// a "CLASS_NAME: W2" style prefix is dropped. Labels are compared on their
// letters and digits alone, so "W-2" matches W2 and "Driver's License"
// matches DRIVERS_LICENSE. Anything outside the set is models.Unclassified.
func ParseLabel(raw string, labels []string) string {
	got := labelKey(raw)
	if got == "" {
		return models.Unclassified
	}
	for _, label := range labels {
		if got == labelKey(label) {
			return label
		}
	}
	return models.Unclassified
}

func labelKey(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 && strings.TrimSpace(s[i+1:]) != "" {
		s = s[i+1:]
	}
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToUpper(r))
		}
	}
	return sb.String()
}
