package core

type Node interface {
	// Path is the location on the local disk.
	Path() string
	Name() string
	// RelPath is the slash-separated path the server will see.
	RelPath() string
}

type File struct {
	path    string
	name    string
	relPath string
	size    int64
}

type Dir struct {
	path     string
	name     string
	relPath  string
	children []Node
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Name() string {
	return f.name
}

func (f *File) RelPath() string {
	return f.relPath
}

func (f *File) Size() int64 {
	return f.size
}

func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) Name() string {
	return d.name
}

func (d *Dir) RelPath() string {
	return d.relPath
}

func (d *Dir) Children() []Node {
	return d.children
}
