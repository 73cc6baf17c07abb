package core

import "testing"

func TestNodes(t *testing.T) {
	t.Run("file accessors", func(t *testing.T) {
		f := &File{path: "/home/user/photos/img1.jpg", name: "img1.jpg", relPath: "photos/img1.jpg", size: 42}

		if f.Path() != "/home/user/photos/img1.jpg" {
			t.Errorf("unexpected path %s", f.Path())
		}
		if f.Name() != "img1.jpg" {
			t.Errorf("unexpected name %s", f.Name())
		}
		if f.RelPath() != "photos/img1.jpg" {
			t.Errorf("unexpected relative path %s", f.RelPath())
		}
		if f.Size() != 42 {
			t.Errorf("unexpected size %d", f.Size())
		}
	})

	t.Run("dir accessors", func(t *testing.T) {
		child := &File{name: "img1.jpg", relPath: "photos/img1.jpg"}
		d := &Dir{path: "/home/user/photos", name: "photos", relPath: "photos", children: []Node{child}}

		if d.Path() != "/home/user/photos" || d.Name() != "photos" || d.RelPath() != "photos" {
			t.Errorf("unexpected dir %+v", d)
		}
		if len(d.Children()) != 1 || d.Children()[0] != Node(child) {
			t.Errorf("unexpected children %v", d.Children())
		}
	})

	t.Run("both implement Node", func(t *testing.T) {
		var _ Node = &File{}
		var _ Node = &Dir{}
	})
}
