// internal/document/validator.go
package document

import (
	"encoding/json"
	"math"

	"github.com/Corphon/SketchKeeper/internal/models"
)

// IsSceneDocument reports whether candidate looks like a scene document.
// The check only looks at the discriminant and the container kinds of
// "elements" and "appState"; element contents are left to consumers.
func IsSceneDocument(candidate interface{}) bool {
	doc, ok := asObject(candidate)
	if !ok {
		return false
	}
	if t, _ := doc["type"].(string); t != models.DocumentTypeScene {
		return false
	}
	if elements, present := doc["elements"]; present && elements != nil && !isSequence(elements) {
		return false
	}
	if appState, present := doc["appState"]; present && appState != nil {
		if _, ok := asObject(appState); !ok {
			return false
		}
	}
	return true
}

// IsLibraryDocument reports whether candidate is a library document of the
// exact supported version. Newer or older versions are rejected.
func IsLibraryDocument(candidate interface{}) bool {
	doc, ok := asObject(candidate)
	if !ok {
		return false
	}
	if t, _ := doc["type"].(string); t != models.DocumentTypeLibrary {
		return false
	}
	version, ok := numberValue(doc["version"])
	return ok && version == models.LibraryDocumentVersion
}

// DocumentVersion extracts the numeric "version" of a decoded candidate.
func DocumentVersion(candidate interface{}) (float64, bool) {
	doc, ok := asObject(candidate)
	if !ok {
		return 0, false
	}
	return numberValue(doc["version"])
}

// asObject accepts the map shapes a candidate may arrive in: generic JSON
// objects and the typed maps used elsewhere in the module.
func asObject(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, m != nil
	case models.AppState:
		return m, m != nil
	case models.Element:
		return m, m != nil
	default:
		return nil, false
	}
}

func isSequence(v interface{}) bool {
	switch s := v.(type) {
	case []interface{}:
		return s != nil
	case []models.Element:
		return s != nil
	case []models.LibraryItem:
		return s != nil
	case models.LibraryItem:
		return s != nil
	default:
		return false
	}
}

func numberValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
