package guard

import (
	"regexp"
	"strings"

	"github.com/rowapi/rowapi/pkg/apierr"
)

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Injection patterns, tested against the normalized (comment-stripped,
// whitespace-collapsed, upper-cased) query text.
var injectionPatterns = []*regexp.Regexp{
	// UNION-based extraction.
	regexp.MustCompile(`\bUNION\s+(ALL\s+)?SELECT\b`),
	// DDL and DML keywords: this engine executes reads only.
	regexp.MustCompile(`\b(DROP|TRUNCATE|ALTER|CREATE|DELETE|INSERT|UPDATE|MERGE|GRANT|REVOKE|EXEC|EXECUTE)\b`),
	// Timing-attack and file-access functions.
	regexp.MustCompile(`\b(SLEEP|BENCHMARK|PG_SLEEP|WAITFOR|LOAD_FILE|DBMS_LOCK)\b`),
	regexp.MustCompile(`\bINTO\s+(OUT|DUMP)FILE\b`),
}

// NormalizeQuery strips SQL comments, collapses whitespace and upper-cases
// the text so keyword patterns cannot be split or hidden.
func NormalizeQuery(query string) string {
	q := lineComment.ReplaceAllString(query, " ")
	q = blockComment.ReplaceAllString(q, " ")
	q = whitespace.ReplaceAllString(q, " ")
	return strings.ToUpper(strings.TrimSpace(q))
}

// ScreenQuery tests literal query text against the injection pattern set.
// A match always fails with a SecurityError; it is never silently dropped.
// The error detail names the matched pattern for server-side logs only.
func (g *Guard) ScreenQuery(query string) error {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return apierr.Security("empty query")
	}

	// Stacked statements: any ';' other than a single trailing one.
	if i := strings.Index(normalized, ";"); i >= 0 && i != len(normalized)-1 {
		return apierr.Security("stacked statements in query: " + normalized)
	}

	for _, p := range injectionPatterns {
		if m := p.FindString(normalized); m != "" {
			return apierr.Security("query matched injection pattern " + m)
		}
	}
	return nil
}

// Sensitive column-name patterns. Columns matching these are redacted at
// the response-mapping boundary; intermediate steps still see real values.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)passw(or)?d|^pwd$|_pwd$`),
	regexp.MustCompile(`(?i)secret|token|credential`),
	regexp.MustCompile(`(?i)api_?key|private_?key|secret_?key`),
	regexp.MustCompile(`(?i)^ssn$|social_security|national_id|resident_(reg(istration)?_)?no`),
}

// IsSensitive reports whether a projected column name matches the
// sensitive-data pattern set.
func (g *Guard) IsSensitive(column string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(column) {
			return true
		}
	}
	return false
}
