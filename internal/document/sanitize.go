// internal/document/sanitize.go
package document

import "github.com/Corphon/SketchKeeper/internal/models"

// DefaultExportableAppStateKeys is the app state subset written to documents
// when no configuration overrides it.
var DefaultExportableAppStateKeys = []string{"viewBackgroundColor", "gridSize"}

var linearElementTypes = map[string]bool{
	"line":  true,
	"arrow": true,
	"draw":  true,
}

// ExportSanitizer removes deleted elements and editor-only state.
type ExportSanitizer struct {
	exportable map[string]struct{}
}

// NewExportSanitizer keeps only the given app state keys on export.
func NewExportSanitizer(appStateKeys []string) *ExportSanitizer {
	if len(appStateKeys) == 0 {
		appStateKeys = DefaultExportableAppStateKeys
	}
	keys := make(map[string]struct{}, len(appStateKeys))
	for _, k := range appStateKeys {
		keys[k] = struct{}{}
	}
	return &ExportSanitizer{exportable: keys}
}

// SanitizeElements drops deleted elements and clears the in-progress point of
// linear elements. Input elements are not modified.
func (s *ExportSanitizer) SanitizeElements(elements []models.Element) []models.Element {
	out := make([]models.Element, 0, len(elements))
	for _, el := range elements {
		if el == nil || el.IsDeleted() {
			continue
		}
		if linearElementTypes[el.ElementType()] {
			cleared := make(models.Element, len(el))
			for k, v := range el {
				cleared[k] = v
			}
			cleared["lastCommittedPoint"] = nil
			el = cleared
		}
		out = append(out, el)
	}
	return out
}

// SanitizeAppState returns a new map holding only exportable keys.
func (s *ExportSanitizer) SanitizeAppState(appState models.AppState) models.AppState {
	out := models.AppState{}
	for k, v := range appState {
		if _, ok := s.exportable[k]; ok {
			out[k] = v
		}
	}
	return out
}
