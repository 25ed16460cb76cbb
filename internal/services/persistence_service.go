// internal/services/persistence_service.go
package services

import (
	"context"
	"strings"
	"time"

	"github.com/Corphon/SketchKeeper/internal/document"
	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/models"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

// DefaultSceneName is used for the suggested file name of an unnamed scene.
const DefaultSceneName = "Untitled"

// FilePicker provides the open and save primitives.
type FilePicker interface {
	OpenFile(ctx context.Context, opts filehandle.OpenOptions) (*filehandle.Blob, error)
	SaveFile(ctx context.Context, blob *filehandle.Blob, opts filehandle.SaveOptions, existing filehandle.Handle) (filehandle.Handle, error)
}

// PermissionChecker decides whether a handle may be written again.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, h filehandle.Handle) filehandle.Outcome
}

// SceneBlobLoader restores scene state from an opened blob.
type SceneBlobLoader interface {
	LoadScene(ctx context.Context, blob *filehandle.Blob, localAppState models.AppState) (*LoadedScene, error)
}

// Library is the item store behind library export and import.
type Library interface {
	LoadLibrary(ctx context.Context) ([]models.LibraryItem, error)
	ImportLibrary(ctx context.Context, blob *filehandle.Blob) (int, error)
}

// PersistenceService 场景与素材库的保存/加载入口
type PersistenceService struct {
	codec       *document.Codec
	picker      FilePicker
	permissions PermissionChecker
	scenes      SceneBlobLoader
	library     Library
	metrics     *utils.PersistenceMetrics
	logger      *utils.Logger
}

// NewPersistenceService wires the orchestrator. A nil metrics or logger uses
// the global instance.
func NewPersistenceService(
	codec *document.Codec,
	picker FilePicker,
	permissions PermissionChecker,
	scenes SceneBlobLoader,
	library Library,
	metrics *utils.PersistenceMetrics,
	logger *utils.Logger,
) *PersistenceService {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if metrics == nil {
		metrics = utils.NewPersistenceMetrics(nil, logger)
	}
	return &PersistenceService{
		codec:       codec,
		picker:      picker,
		permissions: permissions,
		scenes:      scenes,
		library:     library,
		metrics:     metrics,
		logger:      logger,
	}
}

// Codec returns the codec documents are written with.
func (s *PersistenceService) Codec() *document.Codec {
	return s.codec
}

// SaveScene writes the scene as a document. With an existing handle the
// write goes to the same file after write permission is confirmed; if it
// is not, an abort error is returned and nothing is written. Without one
// the user picks a destination. The handle written through is returned.
func (s *PersistenceService) SaveScene(ctx context.Context, elements []models.Element, appState models.AppState, existing filehandle.Handle) (filehandle.Handle, error) {
	start := time.Now()
	blob := &filehandle.Blob{
		Data:     []byte(s.codec.SerializeScene(elements, appState)),
		MIMEType: models.MIMETypeScene,
	}
	opts := filehandle.SaveOptions{
		FileName:    SceneFileName(appState),
		Description: "Excalidraw file",
		Extensions:  []string{models.ExtensionScene},
	}

	if existing != nil {
		outcome := s.permissions.CheckPermission(ctx, existing)
		s.metrics.RecordPermissionCheck(string(outcome))
		if outcome != filehandle.OutcomeGranted {
			s.metrics.RecordSave("scene", "aborted", 0, time.Since(start))
			s.logger.Warn("scene save aborted", map[string]interface{}{
				"handle":  existing.ID(),
				"outcome": string(outcome),
			})
			return nil, apperrors.NewAbortError("没有写入该文件的权限")
		}
	}
	return s.writeScene(ctx, blob, opts, existing, start)
}

func (s *PersistenceService) writeScene(ctx context.Context, blob *filehandle.Blob, opts filehandle.SaveOptions, existing filehandle.Handle, start time.Time) (filehandle.Handle, error) {
	handle, err := s.picker.SaveFile(ctx, blob, opts, existing)
	if err != nil {
		s.metrics.RecordSave("scene", "failed", 0, time.Since(start))
		return nil, err
	}

	s.metrics.RecordSave("scene", "ok", len(blob.Data), time.Since(start))
	s.logger.Info("scene saved", map[string]interface{}{
		"handle":   handle.ID(),
		"file":     handle.Name(),
		"in_place": existing != nil,
		"bytes":    len(blob.Data),
	})
	return handle, nil
}

// LoadScene lets the user open a scene document and restores it over
// localAppState.
func (s *PersistenceService) LoadScene(ctx context.Context, localAppState models.AppState) (*LoadedScene, error) {
	blob, err := s.picker.OpenFile(ctx, filehandle.OpenOptions{
		Description: "Excalidraw files",
		KeepHandle:  true,
	})
	if err != nil {
		s.metrics.RecordLoad("scene", "failed")
		return nil, err
	}

	scene, err := s.scenes.LoadScene(ctx, blob, localAppState)
	if err != nil {
		s.metrics.RecordLoad("scene", apperrors.Outcome(err))
		return nil, err
	}
	s.metrics.RecordLoad("scene", "ok")
	return scene, nil
}

// SaveLibrary exports the whole library. The user always picks the
// destination; no handle is reused.
func (s *PersistenceService) SaveLibrary(ctx context.Context) (filehandle.Handle, error) {
	start := time.Now()
	items, err := s.library.LoadLibrary(ctx)
	if err != nil {
		return nil, err
	}

	blob := &filehandle.Blob{
		Data:     []byte(s.codec.SerializeLibrary(items)),
		MIMEType: models.MIMETypeLibrary,
	}
	handle, err := s.picker.SaveFile(ctx, blob, filehandle.SaveOptions{
		FileName:    models.LibraryFileName,
		Description: "Excalidraw library file",
		Extensions:  []string{models.ExtensionLibrary},
	}, nil)
	if err != nil {
		s.metrics.RecordSave("library", "failed", 0, time.Since(start))
		return nil, err
	}

	s.metrics.RecordSave("library", "ok", len(blob.Data), time.Since(start))
	s.logger.Info("library saved", map[string]interface{}{
		"file":  handle.Name(),
		"items": len(items),
	})
	return handle, nil
}

// ImportLibrary lets the user open a library document and merges it into
// the library. It returns the number of items added.
func (s *PersistenceService) ImportLibrary(ctx context.Context) (int, error) {
	blob, err := s.picker.OpenFile(ctx, filehandle.OpenOptions{
		Description: "Excalidraw library files",
	})
	if err != nil {
		s.metrics.RecordLoad("library", "failed")
		return 0, err
	}
	return s.library.ImportLibrary(ctx, blob)
}

// SceneFileName is the suggested file name for a scene.
func SceneFileName(appState models.AppState) string {
	name := strings.TrimSpace(appState.Name())
	if name == "" {
		name = DefaultSceneName
	}
	return name + models.ExtensionScene
}
