package core

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
)

// Payload streams files as a multipart upload request body. Each part's
// filename is the file's relative path so folder structure survives.
type Payload struct {
	files   []*File
	subpath string
}

func NewPayload(files []*File, subpath string) *Payload {
	return &Payload{files: files, subpath: subpath}
}

// Files returns the files carried by the payload.
func (p *Payload) Files() []*File {
	return p.files
}

// Reader returns the body and its content type. Files are read lazily as
// the body is consumed; a read failure surfaces as an error from the reader.
func (p *Payload) Reader() (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	contentType := mw.FormDataContentType()

	go func() {
		pw.CloseWithError(p.write(mw))
	}()

	return pr, contentType
}

func (p *Payload) write(mw *multipart.Writer) error {
	if p.subpath != "" {
		if err := mw.WriteField("subpath", p.subpath); err != nil {
			return err
		}
	}

	for _, f := range p.files {
		part, err := mw.CreateFormFile("file", f.RelPath())
		if err != nil {
			return err
		}
		if err := copyFile(part, f.Path()); err != nil {
			return fmt.Errorf("failed to read %s: %w", f.Path(), err)
		}
	}

	return mw.Close()
}

func copyFile(w io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(w, src)
	return err
}
