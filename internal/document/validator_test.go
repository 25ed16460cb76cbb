package document

import (
	"encoding/json"
	"testing"

	"github.com/Corphon/SketchKeeper/internal/models"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	v, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("解析失败 %q: %v", raw, err)
	}
	return v
}

func TestIsSceneDocument(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"type only", `{"type":"excalidraw"}`, true},
		{"empty sequences", `{"type":"excalidraw","version":2,"elements":[],"appState":{}}`, true},
		{"null elements", `{"type":"excalidraw","elements":null}`, true},
		{"elements not array", `{"type":"excalidraw","elements":"not-an-array"}`, false},
		{"elements object", `{"type":"excalidraw","elements":{"0":{}}}`, false},
		{"appState array", `{"type":"excalidraw","elements":[],"appState":[]}`, false},
		{"appState primitive", `{"type":"excalidraw","appState":"dark"}`, false},
		{"wrong discriminant", `{"type":"excalidrawlib","elements":[]}`, false},
		{"missing type", `{"elements":[]}`, false},
		{"future version still shaped", `{"type":"excalidraw","version":99}`, true},
		{"nested garbage ignored", `{"type":"excalidraw","elements":[1,"x",null]}`, true},
		{"array root", `[]`, false},
		{"null root", `null`, false},
		{"number root", `42`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSceneDocument(decode(t, tc.raw)); got != tc.want {
				t.Errorf("IsSceneDocument(%s) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestIsLibraryDocument(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"version one", `{"type":"excalidrawlib","version":1}`, true},
		{"version one float", `{"type":"excalidrawlib","version":1.0,"library":[]}`, true},
		{"version two", `{"type":"excalidrawlib","version":2}`, false},
		{"version zero", `{"type":"excalidrawlib","version":0}`, false},
		{"version string", `{"type":"excalidrawlib","version":"1"}`, false},
		{"missing version", `{"type":"excalidrawlib"}`, false},
		{"scene discriminant", `{"type":"excalidraw","version":1}`, false},
		{"number root", `42`, false},
		{"string root", `"excalidrawlib"`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsLibraryDocument(decode(t, tc.raw)); got != tc.want {
				t.Errorf("IsLibraryDocument(%s) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestValidatorsNeverPanic(t *testing.T) {
	inputs := []interface{}{
		nil,
		42,
		"excalidraw",
		[]interface{}{map[string]interface{}{"type": "excalidraw"}},
		map[string]interface{}(nil),
		models.AppState(nil),
		struct{ Type string }{"excalidraw"},
		json.Number("1"),
	}
	for _, in := range inputs {
		if IsSceneDocument(in) {
			t.Errorf("IsSceneDocument(%#v) = true", in)
		}
		if IsLibraryDocument(in) {
			t.Errorf("IsLibraryDocument(%#v) = true", in)
		}
	}
}

func TestValidatorsAcceptTypedMaps(t *testing.T) {
	scene := map[string]interface{}{
		"type":     models.DocumentTypeScene,
		"elements": []models.Element{{"id": "a"}},
		"appState": models.AppState{"gridSize": 20},
	}
	if !IsSceneDocument(scene) {
		t.Error("typed scene candidate should validate")
	}

	library := map[string]interface{}{
		"type":    models.DocumentTypeLibrary,
		"version": models.LibraryDocumentVersion,
	}
	if !IsLibraryDocument(library) {
		t.Error("typed library candidate should validate")
	}
}

func TestDocumentVersion(t *testing.T) {
	v, ok := DocumentVersion(decode(t, `{"type":"excalidraw","version":2}`))
	if !ok || v != 2 {
		t.Fatalf("DocumentVersion = %v, %v", v, ok)
	}
	if _, ok := DocumentVersion(decode(t, `{"type":"excalidraw"}`)); ok {
		t.Fatal("missing version should report ok=false")
	}
}
