package shlog

import "time"

type StmtType string

const (
	StmtTypeQuery   = StmtType("QUERY")
	StmtTypeUpdate  = StmtType("UPDATE")
	StmtTypeExplain = StmtType("EXPLAIN")
)

var SLogger = NewStmtLogger(-1)

type StmtLogger struct {
	logMinDurationStatement time.Duration
}

// NewStmtLogger returns a logger reporting statements slower than the
// threshold. A negative threshold disables reporting.
func NewStmtLogger(logMinDurationStatement time.Duration) *StmtLogger {
	return &StmtLogger{
		logMinDurationStatement: logMinDurationStatement,
	}
}

func ReloadSLogger(logMinDurationStatement time.Duration) {
	SLogger = NewStmtLogger(logMinDurationStatement)
}

func (s *StmtLogger) shouldLogStatement(t time.Duration) bool {
	return s.logMinDurationStatement >= 0 && t > s.logMinDurationStatement
}

func (s *StmtLogger) ReportStatement(typ StmtType, stmt string, units int, t time.Duration) {
	if s.shouldLogStatement(t) {
		Zero.Info().
			Str("stmt", stmt).
			Str("stmt_type", string(typ)).
			Int("units", units).
			Dur("duration", t).
			Msg("log statement")
	}
}
