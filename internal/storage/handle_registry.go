// internal/storage/handle_registry.go
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/prompt"
)

const handlesFile = "handles.json"

// HandleRecord is the persisted binding of a handle id to a workspace file.
type HandleRecord struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	CreatedAt  time.Time `json:"created_at"`
	LastDigest string    `json:"last_digest,omitempty"`
	LastSaved  time.Time `json:"last_saved,omitempty"`
}

// HandleInfo is a record plus its live permission state.
type HandleInfo struct {
	HandleRecord
	Permission filehandle.PermissionState `json:"permission"`
}

// HandleRegistry issues and tracks handles to workspace files. Bindings are
// persisted; permission state lives in memory only and starts out unknown.
type HandleRegistry struct {
	meta *FileStorage

	mu          sync.RWMutex
	records     map[string]*HandleRecord
	byPath      map[string]string
	permissions map[string]filehandle.PermissionState
}

// NewHandleRegistry loads persisted bindings from meta.
func NewHandleRegistry(meta *FileStorage) (*HandleRegistry, error) {
	r := &HandleRegistry{
		meta:        meta,
		records:     make(map[string]*HandleRecord),
		byPath:      make(map[string]string),
		permissions: make(map[string]filehandle.PermissionState),
	}

	if !meta.Exists(handlesFile) {
		return r, nil
	}
	var saved []*HandleRecord
	if err := meta.ReadJSON(handlesFile, &saved); err != nil {
		return nil, fmt.Errorf("加载文件句柄失败: %w", err)
	}
	for _, rec := range saved {
		r.records[rec.ID] = rec
		r.byPath[rec.Path] = rec.ID
	}
	return r, nil
}

// Register returns the handle bound to path, creating one if needed.
func (r *HandleRegistry) Register(path string) (*DiskHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPath[path]; ok {
		return &DiskHandle{id: id, path: path, registry: r}, nil
	}

	rec := &HandleRecord{ID: uuid.NewString(), Path: path, CreatedAt: time.Now()}
	r.records[rec.ID] = rec
	r.byPath[path] = rec.ID
	if err := r.persistLocked(); err != nil {
		delete(r.records, rec.ID)
		delete(r.byPath, path)
		return nil, err
	}
	return &DiskHandle{id: rec.ID, path: path, registry: r}, nil
}

// Get looks up a handle by id.
func (r *HandleRegistry) Get(id string) (*DiskHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("文件句柄不存在: %s", id), nil)
	}
	return &DiskHandle{id: rec.ID, path: rec.Path, registry: r}, nil
}

// Info returns the record and live permission of a handle.
func (r *HandleRegistry) Info(id string) (HandleInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return HandleInfo{}, apperrors.NewNotFoundError(fmt.Sprintf("文件句柄不存在: %s", id), nil)
	}
	return HandleInfo{HandleRecord: *rec, Permission: r.permissionLocked(id)}, nil
}

// List returns all handles ordered by creation time.
func (r *HandleRegistry) List() []HandleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]HandleInfo, 0, len(r.records))
	for id, rec := range r.records {
		out = append(out, HandleInfo{HandleRecord: *rec, Permission: r.permissionLocked(id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SetPermission records the permission state of a handle.
func (r *HandleRegistry) SetPermission(id string, state filehandle.PermissionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("文件句柄不存在: %s", id), nil)
	}
	r.permissions[id] = state
	return nil
}

// Revoke drops any granted permission; the next reuse has to ask again.
func (r *HandleRegistry) Revoke(id string) error {
	return r.SetPermission(id, filehandle.PermissionUnknown)
}

// Forget removes the handle entirely. Later use of it fails.
func (r *HandleRegistry) Forget(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("文件句柄不存在: %s", id), nil)
	}
	delete(r.records, id)
	delete(r.byPath, rec.Path)
	delete(r.permissions, id)
	return r.persistLocked()
}

func (r *HandleRegistry) recordWrite(id, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("文件句柄不存在: %s", id), nil)
	}
	rec.LastDigest = digest
	rec.LastSaved = time.Now()
	return r.persistLocked()
}

func (r *HandleRegistry) permissionLocked(id string) filehandle.PermissionState {
	if state, ok := r.permissions[id]; ok {
		return state
	}
	return filehandle.PermissionUnknown
}

func (r *HandleRegistry) persistLocked() error {
	records := make([]*HandleRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	if err := r.meta.WriteJSON(handlesFile, records); err != nil {
		return fmt.Errorf("保存文件句柄失败: %w", err)
	}
	return nil
}

// DiskHandle is a handle to one workspace file.
type DiskHandle struct {
	id       string
	path     string
	registry *HandleRegistry
}

func (h *DiskHandle) ID() string   { return h.id }
func (h *DiskHandle) Name() string { return h.path }

// Path is the file's location relative to the workspace.
func (h *DiskHandle) Path() string { return h.path }

// QueryPermission reports the current state without prompting. A forgotten
// handle fails the query.
func (h *DiskHandle) QueryPermission(_ context.Context, _ filehandle.PermissionMode) (filehandle.PermissionState, error) {
	info, err := h.registry.Info(h.id)
	if err != nil {
		return filehandle.PermissionUnknown, err
	}
	return info.Permission, nil
}

// RequestPermission asks the request's prompter and records the answer.
func (h *DiskHandle) RequestPermission(ctx context.Context, mode filehandle.PermissionMode) (filehandle.PermissionState, error) {
	if _, err := h.registry.Info(h.id); err != nil {
		return filehandle.PermissionUnknown, err
	}
	p, err := prompt.FromContext(ctx)
	if err != nil {
		return filehandle.PermissionUnknown, err
	}

	granted, err := p.ConfirmPermission(ctx, prompt.PermissionRequest{
		HandleID: h.id,
		Name:     h.path,
		Mode:     string(mode),
	})
	if err != nil {
		return filehandle.PermissionUnknown, err
	}

	state := filehandle.PermissionDenied
	if granted {
		state = filehandle.PermissionGranted
	}
	if err := h.registry.SetPermission(h.id, state); err != nil {
		return filehandle.PermissionUnknown, err
	}
	return state, nil
}
