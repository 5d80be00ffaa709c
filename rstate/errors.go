package rstate

import (
	"fmt"
	"strings"

	"github.com/mwcore/wikirender/span"
)

// StackOverflowError reports a transclusion stack deeper than the
// configured limit. It aborts the current article render.
type StackOverflowError struct {
	Title     string
	Backtrace []string
}

func (e *StackOverflowError) Error() string {
	if len(e.Backtrace) == 0 {
		return fmt.Sprintf("template stack overflow at %s", e.Title)
	}
	return fmt.Sprintf("template stack overflow at %s\n  %s", e.Title, strings.Join(e.Backtrace, "\n  "))
}

// TemplateRecursionError reports a transclusion cycle: the callee is
// already on the frame stack above the root.
type TemplateRecursionError struct {
	Title string
}

func (e *TemplateRecursionError) Error() string {
	return fmt.Sprintf("template recursion detected at %s", e.Title)
}

// RedirectError reports an unresolvable redirect chain (a cycle, or a
// chain longer than the resolution bound).
type RedirectError struct {
	Title string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect loop or overlong redirect chain at %s", e.Title)
}

// NodeError wraps an inner error with the frame title and source
// position where it surfaced; the inner error is carried unaltered, so
// the accumulated chain reads outermost-first.
type NodeError struct {
	Frame string
	Pos   span.Position
	Inner error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("in %s at %s: %v", e.Frame, e.Pos, e.Inner)
}

func (e *NodeError) Unwrap() error { return e.Inner }

// ModuleError reports a failed module execution. The root cause is
// rendered into a visible error span; the article render continues.
type ModuleError struct {
	Name   string
	FnName string
	Inner  error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s.%s: %v", e.Name, e.FnName, e.Inner)
}

func (e *ModuleError) Unwrap() error { return e.Inner }

// ExtensionError reports a failed extension-tag handler; surfaced the
// same way as a module error.
type ExtensionError struct {
	Name  string
	Inner error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("extension <%s>: %v", e.Name, e.Inner)
}

func (e *ExtensionError) Unwrap() error { return e.Inner }

// StripMarkerError reports an unknown marker index encountered while
// resolving the final output. Fatal for the article: it means the
// intermediate stream was corrupted.
type StripMarkerError struct {
	Index int
}

func (e *StripMarkerError) Error() string {
	return fmt.Sprintf("unknown strip marker index %d", e.Index)
}

// RootCause walks an error chain to its innermost error, the one shown
// in a degraded inline error span.
func RootCause(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := u.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}
