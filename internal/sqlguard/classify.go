package sqlguard

import (
	"strings"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
)

type Kind string

const (
	KindRead     Kind = "read"
	KindWrite    Kind = "write"
	KindDDL      Kind = "ddl"
	KindOther    Kind = "other"
	KindUnparsed Kind = "unparsed"
	// KindRejected labels text that failed Validate and was never classified.
	KindRejected Kind = "rejected"
)

// Classify labels a statement for logs, metrics and the audit trail. It has
// no say in whether the statement runs.
func Classify(stmt string) Kind {
	parsed, err := sqlparser.Parse(stripTrailingSemicolons(stmt))
	if err != nil {
		return KindUnparsed
	}
	switch parsed.(type) {
	case *sqlparser.Select, *sqlparser.Union:
		return KindRead
	case *sqlparser.Insert, *sqlparser.Update, *sqlparser.Delete:
		return KindWrite
	case *sqlparser.DDL:
		return KindDDL
	default:
		return KindOther
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
