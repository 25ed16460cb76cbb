package services

import (
	"bytes"
	"context"
	"testing"

	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/models"
	"github.com/Corphon/SketchKeeper/internal/storage"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

func newTestLibrary(t *testing.T) *LibraryService {
	t.Helper()
	store, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := utils.NewLogger(&bytes.Buffer{})
	return NewLibraryService(store, utils.NewPersistenceMetrics(utils.NewMetricsCollector(), logger), logger)
}

func TestLibraryStartsEmpty(t *testing.T) {
	lib := newTestLibrary(t)
	items, err := lib.LoadLibrary(context.Background())
	if err != nil || len(items) != 0 || items == nil {
		t.Fatalf("LoadLibrary = %v, %v", items, err)
	}
}

func TestLibraryAddRemoveClear(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	first := models.LibraryItem{{"id": "a", "type": "ellipse"}}
	second := models.LibraryItem{{"id": "b", "type": "rectangle"}}

	for _, item := range []models.LibraryItem{first, second} {
		if added, err := lib.AddItem(ctx, item); err != nil || !added {
			t.Fatalf("AddItem = %v, %v", added, err)
		}
	}
	if added, _ := lib.AddItem(ctx, first); added {
		t.Error("duplicate item added")
	}
	if _, err := lib.AddItem(ctx, models.LibraryItem{}); !apperrors.IsValidationError(err) {
		t.Errorf("empty item = %v", err)
	}

	if err := lib.RemoveItem(ctx, 0); err != nil {
		t.Fatal(err)
	}
	items, _ := lib.LoadLibrary(ctx)
	if len(items) != 1 || items[0][0]["id"] != "b" {
		t.Fatalf("after remove = %v", items)
	}
	if err := lib.RemoveItem(ctx, 5); !apperrors.IsNotFoundError(err) {
		t.Errorf("out of range remove = %v", err)
	}

	if err := lib.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if items, _ := lib.LoadLibrary(ctx); len(items) != 0 {
		t.Fatalf("after clear = %v", items)
	}
}

func TestImportLibraryDedupesAndKeepsOrder(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	lib.AddItem(ctx, models.LibraryItem{{"id": "a", "width": 10}})

	blob := &filehandle.Blob{
		Name: "shapes.excalidrawlib",
		Data: []byte(`{
  "type": "excalidrawlib",
  "version": 1,
  "library": [
    [{"width": 10, "id": "a"}],
    [{"id": "c"}],
    "junk",
    [{"id": "d"}],
    [{"id": "c"}]
  ]
}`),
	}

	added, err := lib.ImportLibrary(ctx, blob)
	if err != nil {
		t.Fatalf("ImportLibrary: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	items, _ := lib.LoadLibrary(ctx)
	var ids []interface{}
	for _, item := range items {
		ids = append(ids, item[0]["id"])
	}
	want := []interface{}{"a", "c", "d"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestImportLibraryRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"wrong version":   `{"type":"excalidrawlib","version":2,"library":[]}`,
		"scene document":  `{"type":"excalidraw","version":2}`,
		"not json":        `not json`,
		"library object":  `{"type":"excalidrawlib","version":1,"library":{}}`,
		"top level array": `[]`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			lib := newTestLibrary(t)
			_, err := lib.ImportLibrary(context.Background(), &filehandle.Blob{Data: []byte(data)})
			if !apperrors.IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestImportLibraryWithoutItems(t *testing.T) {
	lib := newTestLibrary(t)
	added, err := lib.ImportLibrary(context.Background(), &filehandle.Blob{Data: []byte(`{"type":"excalidrawlib","version":1}`)})
	if err != nil || added != 0 {
		t.Fatalf("ImportLibrary = %d, %v", added, err)
	}
}
