// internal/services/library_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Corphon/SketchKeeper/internal/document"
	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/models"
	"github.com/Corphon/SketchKeeper/internal/storage"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

const libraryPath = "library/library.json"

// LibraryService 管理本地素材库
type LibraryService struct {
	store   *storage.FileStorage
	metrics *utils.PersistenceMetrics
	logger  *utils.Logger

	mu sync.Mutex
}

// NewLibraryService creates a library kept in store.
func NewLibraryService(store *storage.FileStorage, metrics *utils.PersistenceMetrics, logger *utils.Logger) *LibraryService {
	if metrics == nil {
		metrics = utils.NewPersistenceMetrics(nil, logger)
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &LibraryService{store: store, metrics: metrics, logger: logger}
}

// LoadLibrary returns the stored items in order. A missing library is empty.
func (s *LibraryService) LoadLibrary(ctx context.Context) ([]models.LibraryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// AddItem appends item unless an equal item is already present. It reports
// whether the item was added.
func (s *LibraryService) AddItem(ctx context.Context, item models.LibraryItem) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(item) == 0 {
		return false, apperrors.NewValidationError("素材项不能为空", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	key, err := itemKey(item)
	if err != nil {
		return false, apperrors.NewValidationError("素材项无法序列化", err)
	}
	for _, existing := range items {
		if k, _ := itemKey(existing); k == key {
			return false, nil
		}
	}
	return true, s.saveLocked(append(items, item))
}

// RemoveItem deletes the item at index.
func (s *LibraryService) RemoveItem(ctx context.Context, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(items) {
		return apperrors.NewNotFoundError(fmt.Sprintf("素材项不存在: %d", index), nil)
	}
	return s.saveLocked(append(items[:index], items[index+1:]...))
}

// Clear empties the library.
func (s *LibraryService) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked([]models.LibraryItem{})
}

// ImportLibrary merges the items of a library document into the library.
// Items already present are skipped; the rest keep their document order.
// It returns the number of items added.
func (s *LibraryService) ImportLibrary(ctx context.Context, blob *filehandle.Blob) (int, error) {
	if blob == nil {
		return 0, apperrors.NewValidationError("文件内容为空", nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	incoming, err := decodeLibrary(blob)
	if err != nil {
		s.metrics.RecordLoad("library", "invalid")
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if key, err := itemKey(item); err == nil {
			seen[key] = struct{}{}
		}
	}

	added := 0
	for _, item := range incoming {
		key, err := itemKey(item)
		if err != nil {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, item)
		added++
	}

	if added > 0 {
		if err := s.saveLocked(items); err != nil {
			return 0, err
		}
	}
	s.metrics.RecordLoad("library", "ok")
	s.logger.Info("library imported", map[string]interface{}{
		"file":    blob.Name,
		"offered": len(incoming),
		"added":   added,
	})
	return added, nil
}

func decodeLibrary(blob *filehandle.Blob) ([]models.LibraryItem, error) {
	candidate, err := document.Parse(blob.Data)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("无法解析文件 %s", blob.Name), err)
	}
	if !document.IsLibraryDocument(candidate) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s 不是有效的素材库文件", blob.Name), nil)
	}

	raw, present := candidate.(map[string]interface{})["library"]
	if !present || raw == nil {
		return []models.LibraryItem{}, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, apperrors.NewValidationError("素材库内容必须是数组", nil)
	}

	items := make([]models.LibraryItem, 0, len(list))
	for _, entry := range list {
		elements, ok := entry.([]interface{})
		if !ok {
			continue
		}
		item := make(models.LibraryItem, 0, len(elements))
		for _, el := range elements {
			if obj, ok := el.(map[string]interface{}); ok {
				item = append(item, models.Element(obj))
			}
		}
		if len(item) > 0 {
			items = append(items, item)
		}
	}
	return items, nil
}

// itemKey is the canonical encoding used for structural equality.
func itemKey(item models.LibraryItem) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *LibraryService) loadLocked() ([]models.LibraryItem, error) {
	if !s.store.Exists(libraryPath) {
		return []models.LibraryItem{}, nil
	}
	var items []models.LibraryItem
	if err := s.store.ReadJSON(libraryPath, &items); err != nil {
		return nil, fmt.Errorf("加载素材库失败: %w", err)
	}
	if items == nil {
		items = []models.LibraryItem{}
	}
	return items, nil
}

func (s *LibraryService) saveLocked(items []models.LibraryItem) error {
	if err := s.store.WriteJSON(libraryPath, items); err != nil {
		return fmt.Errorf("保存素材库失败: %w", err)
	}
	return nil
}
