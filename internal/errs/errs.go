// Package errs implements the service's single error value: a tagged kind
// plus an ordered context chain, replacing ad-hoc wrapped-error chains at
// every boundary that needs to route on error kind (terminal vs transient
// vs infrastructure).
package errs

import "strings"

// Kind classifies an error for routing purposes. It is never logged or
// serialized alongside secrets; only the kind name and context strings are.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindMalformedInput
	KindInternal
	KindNotSupported
	KindConnectionTimeout
	KindRabbitURL
	KindTCPConnection
	KindRabbitConnection
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "Unauthorized"
	case KindMalformedInput:
		return "MalformedInput"
	case KindInternal:
		return "Internal"
	case KindNotSupported:
		return "NotSupported"
	case KindConnectionTimeout:
		return "ConnectionTimeout"
	case KindRabbitURL:
		return "RabbitUrl"
	case KindTCPConnection:
		return "TcpConnection"
	case KindRabbitConnection:
		return "RabbitConnection"
	default:
		return "Unknown"
	}
}

// Error is the service-wide error value. Source, if present, is the
// underlying foreign error mapped in at the boundary. Context is an ordered
// list of human-readable annotations added as the error propagates upward.
type Error struct {
	Kind    Kind
	Source  error
	Context []string
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Context: []string{msg}}
}

func Wrap(kind Kind, source error, msg string) *Error {
	return &Error{Kind: kind, Source: source, Context: []string{msg}}
}

// WithContext returns a copy of e with msg appended to its context chain.
func (e *Error) WithContext(msg string) *Error {
	ctx := make([]string, 0, len(e.Context)+1)
	ctx = append(ctx, e.Context...)
	ctx = append(ctx, msg)
	return &Error{Kind: e.Kind, Source: e.Source, Context: ctx}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	for _, c := range e.Context {
		b.WriteString(": ")
		b.WriteString(c)
	}
	if e.Source != nil {
		b.WriteString(" (")
		b.WriteString(e.Source.Error())
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Source
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}

// Transient reports whether kind indicates a retryable delivery failure.
func Transient(kind Kind) bool {
	switch kind {
	case KindInternal, KindConnectionTimeout, KindTCPConnection, KindRabbitConnection:
		return true
	default:
		return false
	}
}
