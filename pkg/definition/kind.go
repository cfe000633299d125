package definition

import "fmt"

// LogicKind is the closed set of execution strategies a version may declare.
// Dispatch is an exhaustive switch over these values; adding a kind without
// handling it everywhere is a compile-review error, not a runtime surprise.
type LogicKind string

const (
	KindSingleQuery    LogicKind = "SINGLE_QUERY"
	KindMultiQuery     LogicKind = "MULTI_QUERY"
	KindPipeline       LogicKind = "PIPELINE"
	KindExternalCall   LogicKind = "EXTERNAL_CALL"
	KindStaticResponse LogicKind = "STATIC_RESPONSE"

	// KindExpression is permanently disabled. It previously evaluated
	// arbitrary expressions against request parameters; it is retained only
	// as a rejected tag so legacy rows still parse, and dispatch fails it
	// before any execution.
	KindExpression LogicKind = "EXPRESSION"
)

// ParseLogicKind validates a stored tag against the closed set.
func ParseLogicKind(s string) (LogicKind, error) {
	k := LogicKind(s)
	switch k {
	case KindSingleQuery, KindMultiQuery, KindPipeline, KindExternalCall,
		KindStaticResponse, KindExpression:
		return k, nil
	}
	return "", fmt.Errorf("unknown logic kind %q", s)
}

// Executable reports whether the kind may be dispatched. KindExpression is
// valid as a stored tag but never executable.
func (k LogicKind) Executable() bool {
	switch k {
	case KindSingleQuery, KindMultiQuery, KindPipeline, KindExternalCall, KindStaticResponse:
		return true
	}
	return false
}

// QueryBearing reports whether the kind's payload contains literal query
// text and therefore must pass injection screening.
func (k LogicKind) QueryBearing() bool {
	return k == KindSingleQuery || k == KindMultiQuery
}

func (k LogicKind) String() string { return string(k) }
