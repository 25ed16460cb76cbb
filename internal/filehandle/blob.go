// internal/filehandle/blob.go
package filehandle

// Blob is file content together with its type and, when it came from a
// picker, the handle it was read through.
type Blob struct {
	Data     []byte
	Name     string
	MIMEType string
	Handle   Handle
}

// OpenOptions describe an open-file dialog. KeepHandle asks the picker to
// register a reusable handle for the chosen file; without it the returned
// blob has no handle.
type OpenOptions struct {
	Description string
	Extensions  []string
	KeepHandle  bool
}

// SaveOptions describe a save-file dialog.
type SaveOptions struct {
	FileName    string
	Description string
	Extensions  []string
}
