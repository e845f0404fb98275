package carrier

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// IssueKind names a formatting problem in a warehouse name.
type IssueKind string

const (
	IssueNonASCIIDash       IssueKind = "non_ascii_dash"
	IssueZeroWidth          IssueKind = "zero_width"
	IssueLeadingWhitespace  IssueKind = "leading_whitespace"
	IssueTrailingWhitespace IssueKind = "trailing_whitespace"
	IssueDoubleSpace        IssueKind = "double_space"
	IssueNonASCII           IssueKind = "non_ascii"
)

// Likely causes of a pickup rejection, most specific first.
const (
	CauseNameFormat        = "warehouse name contains characters that differ from the name registered with the carrier; retype it using plain ASCII"
	CauseTokenPermissions  = "API token lacks pickup-request permission; check token permissions in the carrier dashboard"
	CauseNameMismatch      = "warehouse name does not exactly match the registered name; case and spacing must be identical"
	CauseWarehouseInactive = "warehouse is not active or not yet approved at the carrier"
)

// CharInfo describes one rune of the analyzed name.
type CharInfo struct {
	Position  int    `json:"position"`
	Char      string `json:"char"`
	CodePoint string `json:"codePoint"`
	ASCII     bool   `json:"ascii"`
}

// Issue is a single formatting problem.
type Issue struct {
	Kind        IssueKind `json:"kind"`
	Position    int       `json:"position"`
	CodePoint   string    `json:"codePoint,omitempty"`
	Description string    `json:"description"`
}

// Diagnostics is a report on why a warehouse name may be rejected.
type Diagnostics struct {
	Name         string     `json:"name"`
	Length       int        `json:"length"`
	ByteLength   int        `json:"byteLength"`
	Chars        []CharInfo `json:"chars"`
	Issues       []Issue    `json:"issues"`
	LikelyCauses []string   `json:"likelyCauses"`
}

// HasFormatIssues reports whether any formatting issue was found.
func (d *Diagnostics) HasFormatIssues() bool {
	return len(d.Issues) > 0
}

var dashRunes = map[rune]string{
	'\u2010': "HYPHEN",
	'\u2011': "NON-BREAKING HYPHEN",
	'\u2012': "FIGURE DASH",
	'\u2013': "EN DASH",
	'\u2014': "EM DASH",
	'\u2015': "HORIZONTAL BAR",
	'\u2212': "MINUS SIGN",
	'\uFE58': "SMALL EM DASH",
	'\uFE63': "SMALL HYPHEN-MINUS",
	'\uFF0D': "FULLWIDTH HYPHEN-MINUS",
}

var zeroWidthRunes = map[rune]string{
	'\u200B': "ZERO WIDTH SPACE",
	'\u200C': "ZERO WIDTH NON-JOINER",
	'\u200D': "ZERO WIDTH JOINER",
	'\u2060': "WORD JOINER",
	'\uFEFF': "ZERO WIDTH NO-BREAK SPACE",
}

// AnalyzeWarehouseName inspects a warehouse name for characters that commonly
// make a carrier reject an otherwise valid pickup request. carrierMessage is
// the carrier's error text, if any; it only influences the cause ordering.
// The function is pure.
func AnalyzeWarehouseName(name, carrierMessage string) *Diagnostics {
	d := &Diagnostics{
		Name:       name,
		Length:     utf8.RuneCountInString(name),
		ByteLength: len(name),
		Chars:      make([]CharInfo, 0, len(name)),
		Issues:     []Issue{},
	}

	runes := []rune(name)
	for i, r := range runes {
		d.Chars = append(d.Chars, CharInfo{
			Position:  i,
			Char:      string(r),
			CodePoint: codePoint(r),
			ASCII:     r < utf8.RuneSelf,
		})

		switch {
		case dashRunes[r] != "":
			d.Issues = append(d.Issues, Issue{
				Kind:        IssueNonASCIIDash,
				Position:    i,
				CodePoint:   codePoint(r),
				Description: fmt.Sprintf("%s used where a plain hyphen '-' is expected", dashRunes[r]),
			})
		case zeroWidthRunes[r] != "":
			d.Issues = append(d.Issues, Issue{
				Kind:        IssueZeroWidth,
				Position:    i,
				CodePoint:   codePoint(r),
				Description: fmt.Sprintf("invisible %s", zeroWidthRunes[r]),
			})
		case r >= utf8.RuneSelf:
			d.Issues = append(d.Issues, Issue{
				Kind:        IssueNonASCII,
				Position:    i,
				CodePoint:   codePoint(r),
				Description: fmt.Sprintf("non-ASCII character %q", r),
			})
		}
	}

	if len(runes) > 0 && unicode.IsSpace(runes[0]) {
		d.Issues = append(d.Issues, Issue{
			Kind:        IssueLeadingWhitespace,
			Position:    0,
			Description: "name starts with whitespace",
		})
	}
	if n := len(runes); n > 0 && unicode.IsSpace(runes[n-1]) {
		d.Issues = append(d.Issues, Issue{
			Kind:        IssueTrailingWhitespace,
			Position:    n - 1,
			Description: "name ends with whitespace",
		})
	}
	for i := 1; i < len(runes); i++ {
		if runes[i] == ' ' && runes[i-1] == ' ' && (i < 2 || runes[i-2] != ' ') {
			d.Issues = append(d.Issues, Issue{
				Kind:        IssueDoubleSpace,
				Position:    i - 1,
				Description: "consecutive spaces",
			})
		}
	}

	d.LikelyCauses = likelyCauses(d.HasFormatIssues(), carrierMessage)
	return d
}

func likelyCauses(formatIssues bool, carrierMessage string) []string {
	msg := strings.ToLower(carrierMessage)
	causes := make([]string, 0, 4)
	if formatIssues {
		causes = append(causes, CauseNameFormat)
	}
	if strings.Contains(msg, "inactive") || strings.Contains(msg, "not active") {
		return append(causes, CauseWarehouseInactive, CauseTokenPermissions, CauseNameMismatch)
	}
	return append(causes, CauseTokenPermissions, CauseNameMismatch, CauseWarehouseInactive)
}

func codePoint(r rune) string {
	return fmt.Sprintf("U+%04X", r)
}
