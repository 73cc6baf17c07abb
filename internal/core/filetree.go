package core

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// Filetree holds one root node per command-line argument. Each root
// becomes a top-level item on the server.
type Filetree struct {
	Roots []Node
}

func BuildFiletree(paths []ParsedPath) (*Filetree, error) {
	var roots []Node

	for _, parsedPath := range paths {
		name := filepath.Base(parsedPath.FullPath)
		if parsedPath.Kind == PathDir {
			dirNode, err := buildDirTree(parsedPath.FullPath, name)
			if err != nil {
				return nil, err
			}
			roots = append(roots, dirNode)
			continue
		}

		info, err := os.Stat(parsedPath.FullPath)
		if err != nil {
			return nil, err
		}
		roots = append(roots, &File{
			path:    parsedPath.FullPath,
			name:    name,
			relPath: name,
			size:    info.Size(),
		})
	}

	if len(roots) == 0 {
		return nil, fmt.Errorf("no valid paths provided")
	}

	return &Filetree{Roots: roots}, nil
}

func buildDirTree(dirPath, relPath string) (*Dir, error) {
	dir := &Dir{
		path:     dirPath,
		name:     filepath.Base(dirPath),
		relPath:  relPath,
		children: []Node{},
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		childPath := filepath.Join(dirPath, entry.Name())
		childRel := path.Join(relPath, entry.Name())

		if entry.IsDir() {
			childDir, err := buildDirTree(childPath, childRel)
			if err != nil {
				return nil, err
			}
			dir.children = append(dir.children, childDir)
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		dir.children = append(dir.children, &File{
			path:    childPath,
			name:    entry.Name(),
			relPath: childRel,
			size:    info.Size(),
		})
	}

	return dir, nil
}

// Files returns every file in argument order, walking directories
// depth-first with entries sorted by name.
// Empty directories contribute nothing, since the server only stores files.
func (ft *Filetree) Files() []*File {
	var out []*File
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *File:
			out = append(out, v)
		case *Dir:
			for _, child := range v.children {
				walk(child)
			}
		}
	}
	for _, root := range ft.Roots {
		walk(root)
	}
	return out
}

// TotalSize is the sum of all file sizes in the tree.
func (ft *Filetree) TotalSize() int64 {
	var total int64
	for _, f := range ft.Files() {
		total += f.size
	}
	return total
}
