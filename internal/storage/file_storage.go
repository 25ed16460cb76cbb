// internal/storage/file_storage.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
)

// FileStorage 提供基于目录的文件存储服务
type FileStorage struct {
	BaseDir string

	// 写入与删除按路径串行; 读取依赖 rename 的原子性
	locks *LockManager

	cache      map[string]*CacheEntry
	cacheMutex sync.RWMutex
	maxEntries int
}

// CacheEntry 缓存条目
type CacheEntry struct {
	Data    []byte
	ModTime time.Time
	Size    int64
	Read    time.Time
}

// FileInfo describes one stored file.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("解析存储目录失败: %w", err)
	}

	return &FileStorage{
		BaseDir:    abs,
		locks:      NewLockManager(),
		cache:      make(map[string]*CacheEntry),
		maxEntries: 100,
	}, nil
}

// resolve maps a relative name onto BaseDir and refuses anything that escapes it.
func (fs *FileStorage) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", apperrors.NewValidationError("文件名为空", nil)
	}
	full := filepath.Join(fs.BaseDir, filepath.Clean("/"+relPath))
	if full != fs.BaseDir && !strings.HasPrefix(full, fs.BaseDir+string(os.PathSeparator)) {
		return "", apperrors.NewForbiddenError(fmt.Sprintf("路径越界: %s", relPath), nil)
	}
	return full, nil
}

// WriteFile 原子写入文件 (tmp + rename)
func (fs *FileStorage) WriteFile(relPath string, content []byte) error {
	fullPath, err := fs.resolve(relPath)
	if err != nil {
		return err
	}

	return fs.locks.ExecuteWithLock(context.Background(), fullPath, func() error {
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}

		tempPath := fullPath + ".tmp"
		if err := os.WriteFile(tempPath, content, 0644); err != nil {
			return fmt.Errorf("保存临时文件失败: %w", err)
		}
		if err := os.Rename(tempPath, fullPath); err != nil {
			os.Remove(tempPath)
			return fmt.Errorf("保存文件失败: %w", err)
		}

		fs.invalidateCache(fullPath)
		return nil
	})
}

// WriteJSON 保存JSON文件
func (fs *FileStorage) WriteJSON(relPath string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	return fs.WriteFile(relPath, content)
}

// ReadFile 读取文件; 文件未变化时返回缓存内容
func (fs *FileStorage) ReadFile(relPath string) ([]byte, error) {
	fullPath, err := fs.resolve(relPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("文件不存在: %s", relPath), err)
		}
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	fs.cacheMutex.RLock()
	entry, ok := fs.cache[fullPath]
	fs.cacheMutex.RUnlock()
	if ok && entry.ModTime.Equal(info.ModTime()) && entry.Size == info.Size() {
		fs.cacheMutex.Lock()
		entry.Read = time.Now()
		fs.cacheMutex.Unlock()
		return append([]byte(nil), entry.Data...), nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	fs.updateCache(fullPath, content, info)
	return content, nil
}

// ReadJSON 读取并解析JSON文件
func (fs *FileStorage) ReadJSON(relPath string, v interface{}) error {
	content, err := fs.ReadFile(relPath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	return nil
}

// Exists 检查文件是否存在
func (fs *FileStorage) Exists(relPath string) bool {
	fullPath, err := fs.resolve(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Delete 删除文件
func (fs *FileStorage) Delete(relPath string) error {
	fullPath, err := fs.resolve(relPath)
	if err != nil {
		return err
	}

	return fs.locks.ExecuteWithLock(context.Background(), fullPath, func() error {
		if err := os.Remove(fullPath); err != nil {
			if os.IsNotExist(err) {
				return apperrors.NewNotFoundError(fmt.Sprintf("文件不存在: %s", relPath), err)
			}
			return fmt.Errorf("删除文件失败: %w", err)
		}
		fs.invalidateCache(fullPath)
		return nil
	})
}

// List 列出目录下的文件, 可按扩展名过滤, 按名称排序
func (fs *FileStorage) List(dirPath string, extensions ...string) ([]FileInfo, error) {
	fullPath := fs.BaseDir
	if dirPath != "" {
		var err error
		if fullPath, err = fs.resolve(dirPath); err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if len(extensions) > 0 && !hasExtension(entry.Name(), extensions) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func (fs *FileStorage) updateCache(path string, data []byte, info os.FileInfo) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	fs.cache[path] = &CacheEntry{
		Data:    append([]byte(nil), data...),
		ModTime: info.ModTime(),
		Size:    info.Size(),
		Read:    time.Now(),
	}

	if len(fs.cache) <= fs.maxEntries {
		return
	}
	// 删除最久未读取的条目
	var oldestKey string
	var oldest time.Time
	for key, entry := range fs.cache {
		if oldestKey == "" || entry.Read.Before(oldest) {
			oldestKey = key
			oldest = entry.Read
		}
	}
	delete(fs.cache, oldestKey)
}

func (fs *FileStorage) invalidateCache(path string) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()
	delete(fs.cache, path)
}
