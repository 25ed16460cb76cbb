// internal/storage/disk_picker.go
package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"

	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/models"
	"github.com/Corphon/SketchKeeper/internal/prompt"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

// DiskPicker implements the open and save primitives over a workspace
// directory. Which file to use is decided by the request's prompter.
type DiskPicker struct {
	workspace *FileStorage
	handles   *HandleRegistry
	logger    *utils.Logger
}

// NewDiskPicker creates a picker over workspace, issuing handles from handles.
// A nil logger uses the global one.
func NewDiskPicker(workspace *FileStorage, handles *HandleRegistry, logger *utils.Logger) *DiskPicker {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &DiskPicker{workspace: workspace, handles: handles, logger: logger}
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Files lists the workspace files matching extensions, all files when none
// are given.
func (p *DiskPicker) Files(extensions ...string) ([]FileInfo, error) {
	return p.workspace.List("", extensions...)
}

// OpenFile lets the user choose a workspace file and reads it. With
// KeepHandle the blob carries a handle whose permission is still unknown.
func (p *DiskPicker) OpenFile(ctx context.Context, opts filehandle.OpenOptions) (*filehandle.Blob, error) {
	pr, err := prompt.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	files, err := p.Files(opts.Extensions...)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	name, err := pr.ChooseOpenTarget(ctx, prompt.OpenRequest{
		Description: opts.Description,
		Extensions:  opts.Extensions,
		Files:       names,
	})
	if err != nil {
		return nil, err
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}

	data, err := p.workspace.ReadFile(name)
	if err != nil {
		return nil, err
	}
	blob := &filehandle.Blob{
		Data:     data,
		Name:     name,
		MIMEType: mimeTypeFor(name),
	}
	if !opts.KeepHandle {
		return blob, nil
	}

	handle, err := p.handles.Register(name)
	if err != nil {
		return nil, err
	}
	blob.Handle = handle
	return blob, nil
}

// SaveFile writes blob. With an existing handle it writes in place without
// asking; callers verify permission beforehand. Otherwise the user picks the
// destination and the new handle is granted write access.
func (p *DiskPicker) SaveFile(ctx context.Context, blob *filehandle.Blob, opts filehandle.SaveOptions, existing filehandle.Handle) (filehandle.Handle, error) {
	if existing != nil {
		handle, err := p.handles.Get(existing.ID())
		if err != nil {
			return nil, err
		}
		if err := p.write(handle, blob.Data); err != nil {
			return nil, err
		}
		return handle, nil
	}

	pr, err := prompt.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	name, err := pr.ChooseSaveTarget(ctx, prompt.SaveRequest{
		SuggestedName: opts.FileName,
		Description:   opts.Description,
		Extensions:    opts.Extensions,
		MIMEType:      blob.MIMEType,
	})
	if err != nil {
		return nil, err
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}
	if len(opts.Extensions) > 0 && !hasExtension(name, opts.Extensions) {
		name += opts.Extensions[0]
	}

	handle, err := p.handles.Register(name)
	if err != nil {
		return nil, err
	}
	if err := p.write(handle, blob.Data); err != nil {
		return nil, err
	}
	if err := p.handles.SetPermission(handle.ID(), filehandle.PermissionGranted); err != nil {
		return nil, err
	}
	return handle, nil
}

// write stores data through handle. Once the file is written the save has
// succeeded; failing to persist the digest is only logged.
func (p *DiskPicker) write(handle *DiskHandle, data []byte) error {
	if err := p.workspace.WriteFile(handle.Path(), data); err != nil {
		return err
	}
	if err := p.handles.recordWrite(handle.ID(), Digest(data)); err != nil {
		p.logger.Warn("file written but handle metadata not saved", map[string]interface{}{
			"handle": handle.ID(),
			"file":   handle.Path(),
			"error":  err.Error(),
		})
	}
	return nil
}

// cleanName keeps pickers inside the flat workspace directory.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	base := filepath.Base(filepath.Clean("/" + name))
	if name == "" || base == "/" || base == "." || base == string(filepath.Separator) {
		return "", apperrors.NewValidationError(fmt.Sprintf("无效文件名: %q", name), nil)
	}
	return base, nil
}

func mimeTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case models.ExtensionScene:
		return models.MIMETypeScene
	case models.ExtensionLibrary:
		return models.MIMETypeLibrary
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
