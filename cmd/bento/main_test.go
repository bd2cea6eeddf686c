package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitVerboseCountsEveryOccurrence(t *testing.T) {
	count, rest := splitVerbose([]string{"-v", "create", "vm1", "--verbose"})
	require.Equal(t, 2, count)
	require.Equal(t, []string{"create", "vm1"}, rest)
}

func TestSplitVerboseLeavesOtherArgsInOrder(t *testing.T) {
	count, rest := splitVerbose([]string{"status", "vm1"})
	require.Equal(t, 0, count)
	require.Equal(t, []string{"status", "vm1"}, rest)
}

func TestErrorChainDepthCountsWrappedErrors(t *testing.T) {
	base := errors.New("root cause")
	mid := &wrapErr{msg: "mid", cause: base}
	top := &wrapErr{msg: "top", cause: mid}

	require.Equal(t, 3, errorChainDepth(top))
}

type wrapErr struct {
	msg   string
	cause error
}

func (e *wrapErr) Error() string { return e.msg }
func (e *wrapErr) Unwrap() error { return e.cause }
