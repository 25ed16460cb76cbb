// internal/models/document.go
package models

// 文档类型判别值
const (
	DocumentTypeScene   = "excalidraw"
	DocumentTypeLibrary = "excalidrawlib"
)

// 当前写出的文档版本
const (
	SceneDocumentVersion   = 2
	LibraryDocumentVersion = 1
)

// MIME types and extensions used when documents are persisted.
const (
	MIMETypeScene   = "application/vnd.excalidraw+json"
	MIMETypeLibrary = "application/vnd.excalidrawlib+json"

	ExtensionScene   = ".excalidraw"
	ExtensionLibrary = ".excalidrawlib"

	LibraryFileName = "library" + ExtensionLibrary

	DefaultExportSource = "https://excalidraw.com"
)

// Element is a single drawing element. Its fields belong to the drawing model
// and are carried through untouched.
type Element map[string]interface{}

// AppState holds application settings. Only the exportable subset ends up in a document.
type AppState map[string]interface{}

// LibraryItem is a reusable group of elements.
type LibraryItem []Element

// SceneDocument 场景文档
type SceneDocument struct {
	Type     string    `json:"type"`
	Version  int       `json:"version"`
	Source   string    `json:"source"`
	Elements []Element `json:"elements"`
	AppState AppState  `json:"appState"`
}

// LibraryDocument 素材库文档
type LibraryDocument struct {
	Type    string        `json:"type"`
	Version int           `json:"version"`
	Source  string        `json:"source"`
	Library []LibraryItem `json:"library"`
}

// Name returns the scene name stored under "name", or "" when missing.
func (s AppState) Name() string {
	name, _ := s["name"].(string)
	return name
}

// Clone returns a shallow copy.
func (s AppState) Clone() AppState {
	out := make(AppState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// IsDeleted reports whether the element carries isDeleted: true.
func (e Element) IsDeleted() bool {
	deleted, _ := e["isDeleted"].(bool)
	return deleted
}

// ElementType returns the "type" field of the element.
func (e Element) ElementType() string {
	t, _ := e["type"].(string)
	return t
}
