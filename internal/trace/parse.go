// Package trace replays allocation scripts against a heap and verifies that payloads are
// never corrupted by other allocations.
//
// A trace is a text file with one operation per line. Blank lines and lines starting with
// '#' are ignored.
//
//	a <id> <size>           allocate size bytes and bind the result to id
//	z <id> <count> <size>   allocate count*size zeroed bytes and bind the result to id
//	r <id> <size>           reallocate the allocation bound to id
//	f <id>                  release the allocation bound to id
//	c                       check the heap structure
package trace

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type OpKind byte

const (
	OpAllocate       OpKind = 'a'
	OpAllocateZeroed OpKind = 'z'
	OpReallocate     OpKind = 'r'
	OpRelease        OpKind = 'f'
	OpCheck          OpKind = 'c'
)

var opKindMapping = map[OpKind]string{
	OpAllocate:       "Allocate",
	OpAllocateZeroed: "AllocateZeroed",
	OpReallocate:     "Reallocate",
	OpRelease:        "Release",
	OpCheck:          "Check",
}

func (k OpKind) String() string {
	return opKindMapping[k]
}

// Op is a single parsed trace line
type Op struct {
	Kind  OpKind
	ID    int
	Count int
	Size  int
	// Line is the 1-based line number the op was read from
	Line int
}

var argumentCounts = map[OpKind]int{
	OpAllocate:       2,
	OpAllocateZeroed: 3,
	OpReallocate:     2,
	OpRelease:        1,
	OpCheck:          0,
}

// Parse reads a trace from r
func Parse(r io.Reader) ([]Op, error) {
	var ops []Op

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields[0]) != 1 {
			return nil, errors.Newf("line %d: unknown operation %q", lineNumber, fields[0])
		}

		kind := OpKind(fields[0][0])
		argCount, ok := argumentCounts[kind]
		if !ok {
			return nil, errors.Newf("line %d: unknown operation %q", lineNumber, fields[0])
		}
		if len(fields)-1 != argCount {
			return nil, errors.Newf("line %d: %s takes %d arguments but %d were provided", lineNumber, kind, argCount, len(fields)-1)
		}

		args := make([]int, argCount)
		for i := range args {
			value, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: argument %d", lineNumber, i+1)
			}
			if value < 0 {
				return nil, errors.Newf("line %d: argument %d must not be negative", lineNumber, i+1)
			}
			args[i] = value
		}

		op := Op{Kind: kind, Line: lineNumber}
		switch kind {
		case OpAllocate, OpReallocate:
			op.ID, op.Size = args[0], args[1]
		case OpAllocateZeroed:
			op.ID, op.Count, op.Size = args[0], args[1], args[2]
		case OpRelease:
			op.ID = args[0]
		}

		ops = append(ops, op)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading trace")
	}

	return ops, nil
}
