package storage

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/prompt"
)

func TestRegisterReusesPath(t *testing.T) {
	reg, _ := NewHandleRegistry(newTestStorage(t))

	a, err := reg.Register("board.excalidraw")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := reg.Register("board.excalidraw")
	if a.ID() != b.ID() {
		t.Fatalf("same path produced two handles: %s, %s", a.ID(), b.ID())
	}
	if len(reg.List()) != 1 {
		t.Fatalf("List = %v", reg.List())
	}
}

func TestPermissionsNotPersisted(t *testing.T) {
	meta := newTestStorage(t)
	reg, _ := NewHandleRegistry(meta)
	h, _ := reg.Register("board.excalidraw")
	reg.SetPermission(h.ID(), filehandle.PermissionGranted)

	restarted, err := NewHandleRegistry(meta)
	if err != nil {
		t.Fatal(err)
	}
	info, err := restarted.Info(h.ID())
	if err != nil {
		t.Fatalf("binding lost across restart: %v", err)
	}
	if info.Permission != filehandle.PermissionUnknown {
		t.Fatalf("permission survived restart: %s", info.Permission)
	}
	if info.Path != "board.excalidraw" {
		t.Fatalf("path = %s", info.Path)
	}
}

func TestRequestPermissionRecordsAnswer(t *testing.T) {
	reg, _ := NewHandleRegistry(newTestStorage(t))
	h, _ := reg.Register("board.excalidraw")

	pr := &fakePrompter{grant: false}
	ctx := prompt.WithPrompter(context.Background(), pr)

	state, err := h.RequestPermission(ctx, filehandle.ModeReadWrite)
	if err != nil || state != filehandle.PermissionDenied {
		t.Fatalf("RequestPermission = %s, %v", state, err)
	}
	if got, _ := h.QueryPermission(ctx, filehandle.ModeReadWrite); got != filehandle.PermissionDenied {
		t.Fatalf("QueryPermission = %s", got)
	}

	pr.grant = true
	if state, _ := h.RequestPermission(ctx, filehandle.ModeReadWrite); state != filehandle.PermissionGranted {
		t.Fatalf("second request = %s", state)
	}
	if pr.confirmed != 2 {
		t.Fatalf("confirmed = %d", pr.confirmed)
	}
}

func TestRequestPermissionWithoutSession(t *testing.T) {
	reg, _ := NewHandleRegistry(newTestStorage(t))
	h, _ := reg.Register("board.excalidraw")

	_, err := h.RequestPermission(context.Background(), filehandle.ModeReadWrite)
	if !errors.Is(err, prompt.ErrNoPrompter) {
		t.Fatalf("expected ErrNoPrompter, got %v", err)
	}
}

func TestRevokeAndForget(t *testing.T) {
	reg, _ := NewHandleRegistry(newTestStorage(t))
	h, _ := reg.Register("board.excalidraw")
	reg.SetPermission(h.ID(), filehandle.PermissionGranted)

	if err := reg.Revoke(h.ID()); err != nil {
		t.Fatal(err)
	}
	if state, _ := h.QueryPermission(context.Background(), filehandle.ModeReadWrite); state != filehandle.PermissionUnknown {
		t.Fatalf("revoked state = %s", state)
	}

	if err := reg.Forget(h.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.QueryPermission(context.Background(), filehandle.ModeReadWrite); !apperrors.IsNotFoundError(err) {
		t.Fatalf("forgotten handle query = %v", err)
	}
	if _, err := reg.Get(h.ID()); !apperrors.IsNotFoundError(err) {
		t.Fatalf("Get after Forget = %v", err)
	}
}

func TestVerifierOverDiskHandle(t *testing.T) {
	reg, _ := NewHandleRegistry(newTestStorage(t))
	h, _ := reg.Register("board.excalidraw")
	v := filehandle.NewVerifier(nil)

	if v.VerifyPermission(context.Background(), h) {
		t.Fatal("unknown permission with no session must not verify")
	}

	ctx := prompt.WithPrompter(context.Background(), &fakePrompter{grant: true})
	if !v.VerifyPermission(ctx, h) {
		t.Fatal("granted prompt should verify")
	}
	if !v.VerifyPermission(context.Background(), h) {
		t.Fatal("granted state should verify without prompting")
	}
}
