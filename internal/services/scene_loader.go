// internal/services/scene_loader.go
package services

import (
	"context"
	"fmt"

	"github.com/Corphon/SketchKeeper/internal/document"
	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/models"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

// LoadedScene is a scene restored from a document. Handle is the handle the
// document was read through; passing it back on the next save writes in place.
type LoadedScene struct {
	Elements []models.Element  `json:"elements"`
	AppState models.AppState   `json:"appState"`
	Source   string            `json:"source,omitempty"`
	Handle   filehandle.Handle `json:"-"`
}

// SceneLoader turns an opened blob into scene state.
type SceneLoader struct {
	logger *utils.Logger
}

// NewSceneLoader creates a loader; a nil logger uses the global one.
func NewSceneLoader(logger *utils.Logger) *SceneLoader {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &SceneLoader{logger: logger}
}

// LoadScene validates blob as a scene document and restores it. The
// imported app state is merged over localAppState.
func (l *SceneLoader) LoadScene(ctx context.Context, blob *filehandle.Blob, localAppState models.AppState) (*LoadedScene, error) {
	if blob == nil {
		return nil, apperrors.NewValidationError("文件内容为空", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidate, err := document.Parse(blob.Data)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("无法解析文件 %s", blob.Name), err)
	}
	if !document.IsSceneDocument(candidate) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s 不是有效的场景文件", blob.Name), nil)
	}
	if version, ok := document.DocumentVersion(candidate); ok && version > models.SceneDocumentVersion {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("场景文件版本 %v 高于支持的版本 %d", version, models.SceneDocumentVersion), nil)
	}

	doc := candidate.(map[string]interface{})
	scene := &LoadedScene{
		Elements: restoreElements(doc["elements"]),
		AppState: mergeAppState(localAppState, doc["appState"]),
		Handle:   blob.Handle,
	}
	scene.Source, _ = doc["source"].(string)

	l.logger.Debug("scene restored", map[string]interface{}{
		"file":     blob.Name,
		"elements": len(scene.Elements),
	})
	return scene, nil
}

// restoreElements keeps live object elements in their original order.
func restoreElements(raw interface{}) []models.Element {
	items, _ := raw.([]interface{})
	out := make([]models.Element, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		el := models.Element(obj)
		if el.IsDeleted() {
			continue
		}
		out = append(out, el)
	}
	return out
}

func mergeAppState(local models.AppState, imported interface{}) models.AppState {
	merged := local.Clone()
	if obj, ok := imported.(map[string]interface{}); ok {
		for k, v := range obj {
			merged[k] = v
		}
	}
	return merged
}
