// Package core prepares local files and folders for submission to the
// portal: argument checking, tree walking and the multipart payload.
package core

import (
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

type PathKind int

const (
	PathFile PathKind = iota
	PathDir
)

func (k PathKind) String() string {
	if k == PathDir {
		return "dir"
	}
	return "file"
}

type ParsedPath struct {
	FullPath string
	Kind     PathKind
}

// ParseArgs checks that every argument exists and classifies it. Two
// arguments with the same base name would collide as top-level items on
// the server, so they are rejected here.
func ParseArgs(args []string) ([]ParsedPath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []ParsedPath
	seen := make(map[string]string)

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		kind := PathFile
		if info.IsDir() {
			kind = PathDir
		}

		base := filepath.Base(p)
		if base == "." || base == ".." || base == string(filepath.Separator) {
			return nil, &ValidationError{Arg: raw, Cause: "cannot upload a path without a name"}
		}
		if prev, dup := seen[base]; dup {
			return nil, &ValidationError{Arg: raw, Cause: fmt.Sprintf("same name as %q", prev)}
		}
		seen[base] = raw

		out = append(out, ParsedPath{FullPath: p, Kind: kind})
	}

	return out, nil
}
