package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Corphon/SketchKeeper/internal/document"
	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/models"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

type stubHandle struct{ id string }

func (h stubHandle) ID() string   { return h.id }
func (h stubHandle) Name() string { return h.id + ".excalidraw" }
func (h stubHandle) QueryPermission(context.Context, filehandle.PermissionMode) (filehandle.PermissionState, error) {
	return filehandle.PermissionUnknown, nil
}
func (h stubHandle) RequestPermission(context.Context, filehandle.PermissionMode) (filehandle.PermissionState, error) {
	return filehandle.PermissionUnknown, nil
}

type recordingPicker struct {
	openBlob *filehandle.Blob
	openErr  error
	saveErr  error

	saves    []*filehandle.Blob
	saveOpts []filehandle.SaveOptions
	existing []filehandle.Handle
	openOpts []filehandle.OpenOptions
}

func (p *recordingPicker) OpenFile(_ context.Context, opts filehandle.OpenOptions) (*filehandle.Blob, error) {
	p.openOpts = append(p.openOpts, opts)
	return p.openBlob, p.openErr
}

func (p *recordingPicker) SaveFile(_ context.Context, blob *filehandle.Blob, opts filehandle.SaveOptions, existing filehandle.Handle) (filehandle.Handle, error) {
	if p.saveErr != nil {
		return nil, p.saveErr
	}
	p.saves = append(p.saves, blob)
	p.saveOpts = append(p.saveOpts, opts)
	p.existing = append(p.existing, existing)
	if existing != nil {
		return existing, nil
	}
	return stubHandle{id: "new"}, nil
}

type fixedChecker struct {
	outcome filehandle.Outcome
	calls   int
}

func (c *fixedChecker) CheckPermission(context.Context, filehandle.Handle) filehandle.Outcome {
	c.calls++
	return c.outcome
}

type memoryLibrary struct {
	items    []models.LibraryItem
	imported []*filehandle.Blob
}

func (l *memoryLibrary) LoadLibrary(context.Context) ([]models.LibraryItem, error) {
	return l.items, nil
}

func (l *memoryLibrary) ImportLibrary(_ context.Context, blob *filehandle.Blob) (int, error) {
	l.imported = append(l.imported, blob)
	return 1, nil
}

type serviceFixture struct {
	svc     *PersistenceService
	picker  *recordingPicker
	checker *fixedChecker
	library *memoryLibrary
	metrics *utils.PersistenceMetrics
}

func newServiceFixture(outcome filehandle.Outcome) *serviceFixture {
	logger := utils.NewLogger(&bytes.Buffer{})
	metrics := utils.NewPersistenceMetrics(utils.NewMetricsCollector(), logger)
	fx := &serviceFixture{
		picker:  &recordingPicker{},
		checker: &fixedChecker{outcome: outcome},
		library: &memoryLibrary{},
		metrics: metrics,
	}
	codec := document.NewCodec(models.DefaultExportSource, document.NewExportSanitizer(nil))
	fx.svc = NewPersistenceService(codec, fx.picker, fx.checker, NewSceneLoader(logger), fx.library, metrics, logger)
	return fx
}

func TestSaveSceneWithoutHandleSkipsPermission(t *testing.T) {
	fx := newServiceFixture(filehandle.OutcomeDenied)

	h, err := fx.svc.SaveScene(context.Background(), nil, models.AppState{"name": "Plan"}, nil)
	if err != nil {
		t.Fatalf("SaveScene: %v", err)
	}
	if h.ID() != "new" {
		t.Errorf("handle = %s", h.ID())
	}
	if fx.checker.calls != 0 {
		t.Errorf("permission checked %d times without a handle", fx.checker.calls)
	}

	opts := fx.picker.saveOpts[0]
	if opts.FileName != "Plan.excalidraw" || opts.Description != "Excalidraw file" {
		t.Errorf("save options = %+v", opts)
	}
	if len(opts.Extensions) != 1 || opts.Extensions[0] != ".excalidraw" {
		t.Errorf("extensions = %v", opts.Extensions)
	}
	if fx.picker.saves[0].MIMEType != "application/vnd.excalidraw+json" {
		t.Errorf("mime = %s", fx.picker.saves[0].MIMEType)
	}
}

func TestSaveSceneDeniedNeverWrites(t *testing.T) {
	for _, outcome := range []filehandle.Outcome{filehandle.OutcomeDenied, filehandle.OutcomeFailed} {
		t.Run(string(outcome), func(t *testing.T) {
			fx := newServiceFixture(outcome)

			_, err := fx.svc.SaveScene(context.Background(), nil, models.AppState{}, stubHandle{id: "old"})
			if !apperrors.IsAbortError(err) {
				t.Fatalf("expected abort, got %v", err)
			}
			if len(fx.picker.saves) != 0 {
				t.Fatal("save primitive invoked after denied permission")
			}
			if fx.metrics.Collector().GetCounterValue("saves_scene_aborted") != 1 {
				t.Error("aborted save not counted")
			}
		})
	}
}

func TestSaveSceneReusesGrantedHandle(t *testing.T) {
	fx := newServiceFixture(filehandle.OutcomeGranted)
	old := stubHandle{id: "old"}

	h, err := fx.svc.SaveScene(context.Background(), []models.Element{{"id": "a"}}, models.AppState{}, old)
	if err != nil {
		t.Fatalf("SaveScene: %v", err)
	}
	if h.ID() != "old" || fx.picker.existing[0] != filehandle.Handle(old) {
		t.Errorf("existing handle not passed through: %v", fx.picker.existing)
	}
	if fx.checker.calls != 1 {
		t.Errorf("checker calls = %d", fx.checker.calls)
	}
	if fx.picker.saveOpts[0].FileName != "Untitled.excalidraw" {
		t.Errorf("file name = %s", fx.picker.saveOpts[0].FileName)
	}

	candidate, err := document.Parse(fx.picker.saves[0].Data)
	if err != nil || !document.IsSceneDocument(candidate) {
		t.Fatalf("written bytes are not a scene document: %v", err)
	}
}

func TestSaveScenePropagatesPickerError(t *testing.T) {
	fx := newServiceFixture(filehandle.OutcomeGranted)
	ioErr := errors.New("disk full")
	fx.picker.saveErr = ioErr

	_, err := fx.svc.SaveScene(context.Background(), nil, nil, nil)
	if err != ioErr {
		t.Fatalf("error should pass through unchanged, got %v", err)
	}
}

func TestLoadScene(t *testing.T) {
	fx := newServiceFixture(filehandle.OutcomeGranted)
	fx.picker.openBlob = &filehandle.Blob{
		Name:   "a.excalidraw",
		Data:   []byte(`{"type":"excalidraw","version":2,"elements":[{"id":"1"},{"id":"2","isDeleted":true}],"appState":{"gridSize":20}}`),
		Handle: stubHandle{id: "opened"},
	}

	scene, err := fx.svc.LoadScene(context.Background(), models.AppState{"name": "local", "gridSize": nil})
	if err != nil {
		t.Fatalf("LoadScene: %v", err)
	}
	if len(scene.Elements) != 1 || scene.Elements[0]["id"] != "1" {
		t.Errorf("elements = %v", scene.Elements)
	}
	if scene.AppState["name"] != "local" || scene.AppState["gridSize"] != float64(20) {
		t.Errorf("appState = %v", scene.AppState)
	}
	if scene.Handle.ID() != "opened" {
		t.Errorf("handle not carried: %v", scene.Handle)
	}
	if opts := fx.picker.openOpts[0]; opts.Description != "Excalidraw files" || !opts.KeepHandle {
		t.Errorf("open options = %+v", fx.picker.openOpts[0])
	}
}

func TestLoadSceneRejectsInvalidDocument(t *testing.T) {
	fx := newServiceFixture(filehandle.OutcomeGranted)
	fx.picker.openBlob = &filehandle.Blob{Data: []byte(`{"type":"excalidraw","elements":"x"}`)}

	_, err := fx.svc.LoadScene(context.Background(), nil)
	if !apperrors.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fx.metrics.Collector().GetCounterValue("loads_scene_invalid") != 1 {
		t.Error("invalid load not counted")
	}
}

func TestSaveLibraryAlwaysPrompts(t *testing.T) {
	fx := newServiceFixture(filehandle.OutcomeGranted)
	fx.library.items = []models.LibraryItem{{{"id": "r", "type": "rectangle"}}}

	if _, err := fx.svc.SaveLibrary(context.Background()); err != nil {
		t.Fatalf("SaveLibrary: %v", err)
	}
	if fx.picker.existing[0] != nil {
		t.Error("library save must not reuse a handle")
	}
	opts := fx.picker.saveOpts[0]
	if opts.FileName != "library.excalidrawlib" || opts.Description != "Excalidraw library file" {
		t.Errorf("save options = %+v", opts)
	}
	blob := fx.picker.saves[0]
	if blob.MIMEType != "application/vnd.excalidrawlib+json" {
		t.Errorf("mime = %s", blob.MIMEType)
	}
	candidate, _ := document.Parse(blob.Data)
	if !document.IsLibraryDocument(candidate) || !strings.Contains(string(blob.Data), `"rectangle"`) {
		t.Errorf("library document = %s", blob.Data)
	}
}

func TestImportLibrary(t *testing.T) {
	fx := newServiceFixture(filehandle.OutcomeGranted)
	fx.picker.openBlob = &filehandle.Blob{Name: "x.excalidrawlib"}

	added, err := fx.svc.ImportLibrary(context.Background())
	if err != nil || added != 1 {
		t.Fatalf("ImportLibrary = %d, %v", added, err)
	}
	if fx.library.imported[0] != fx.picker.openBlob {
		t.Error("opened blob not handed to the library")
	}
	if opts := fx.picker.openOpts[0]; opts.Description != "Excalidraw library files" || opts.KeepHandle {
		t.Errorf("open options = %+v", fx.picker.openOpts[0])
	}
}

func TestImportLibraryDismissed(t *testing.T) {
	fx := newServiceFixture(filehandle.OutcomeGranted)
	dismissed := errors.New("dismissed")
	fx.picker.openErr = dismissed

	if _, err := fx.svc.ImportLibrary(context.Background()); err != dismissed {
		t.Fatalf("got %v", err)
	}
	if len(fx.library.imported) != 0 {
		t.Error("library touched after dismissed picker")
	}
}

func TestSceneFileName(t *testing.T) {
	cases := map[string]models.AppState{
		"Untitled.excalidraw": nil,
		"Board.excalidraw":    {"name": "Board"},
	}
	for want, state := range cases {
		if got := SceneFileName(state); got != want {
			t.Errorf("SceneFileName(%v) = %s, want %s", state, got, want)
		}
	}
	if got := SceneFileName(models.AppState{"name": "  "}); got != "Untitled.excalidraw" {
		t.Errorf("blank name = %s", got)
	}
}
