// cmd/sketchctl/commands.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Corphon/SketchKeeper/internal/document"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/models"
	"github.com/Corphon/SketchKeeper/internal/services"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

func applyColorMode(cmd *cobra.Command) error {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
	default:
		return fmt.Errorf("--color must be auto, on or off, got %q", mode)
	}
	return nil
}

// ========================================
// validate
// ========================================

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Report whether files are scene or library documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	invalid := 0
	for _, path := range args {
		verdict, ok := classifyFile(path)
		if ok {
			okColor.Fprint(out, "ok     ")
		} else {
			invalid++
			failColor.Fprint(out, "invalid")
		}
		fmt.Fprintf(out, " %s: %s\n", path, verdict)
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d files invalid", invalid, len(args))
	}
	return nil
}

// classifyFile returns a one-line verdict and whether the file is usable.
func classifyFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return err.Error(), false
	}
	candidate, err := document.Parse(data)
	if err != nil {
		return err.Error(), false
	}

	version := "unversioned"
	if v, ok := document.DocumentVersion(candidate); ok {
		version = fmt.Sprintf("version %v", v)
	}
	switch {
	case document.IsSceneDocument(candidate):
		return "scene, " + version, true
	case document.IsLibraryDocument(candidate):
		return "library, " + version, true
	default:
		return "neither a scene nor a supported library document", false
	}
}

// ========================================
// normalize
// ========================================

func newNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize <scene>",
		Short: "Rewrite a scene in canonical form",
		Long:  "Load a scene, drop deleted elements and editor-only state, and write it back out the way the server saves it.",
		Args:  cobra.ExactArgs(1),
		RunE:  runNormalize,
	}
	cmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringSlice("keep", nil, "app state keys to keep (default viewBackgroundColor,gridSize)")
	return cmd
}

func runNormalize(cmd *cobra.Command, args []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	keep, err := cmd.Flags().GetStringSlice("keep")
	if err != nil {
		return err
	}
	codec, err := codecFor(cmd, keep)
	if err != nil {
		return err
	}

	scene, err := loadSceneFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	text := codec.SerializeScene(scene.Elements, scene.AppState)

	if output == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), text+"\n")
		return err
	}
	if err := os.WriteFile(output, []byte(text), 0644); err != nil {
		return err
	}
	okColor.Fprint(cmd.ErrOrStderr(), "wrote ")
	fmt.Fprintf(cmd.ErrOrStderr(), "%s (%d elements)\n", output, len(scene.Elements))
	return nil
}

// ========================================
// pack-library
// ========================================

func newPackLibraryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pack-library <out> <scene>...",
		Short: "Build a library with one item per scene",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runPackLibrary,
	}
}

func runPackLibrary(cmd *cobra.Command, args []string) error {
	out, scenes := args[0], args[1:]
	if filepath.Ext(out) == "" {
		out += models.ExtensionLibrary
	}
	codec, err := codecFor(cmd, nil)
	if err != nil {
		return err
	}

	items := make([]models.LibraryItem, 0, len(scenes))
	for _, path := range scenes {
		scene, err := loadSceneFile(cmd.Context(), path)
		if err != nil {
			return err
		}
		if len(scene.Elements) == 0 {
			warnColor.Fprintf(cmd.ErrOrStderr(), "skip %s: no elements\n", path)
			continue
		}
		items = append(items, models.LibraryItem(scene.Elements))
	}
	if len(items) == 0 {
		return fmt.Errorf("no scene had any elements")
	}

	if err := os.WriteFile(out, []byte(codec.SerializeLibrary(items)), 0644); err != nil {
		return err
	}
	okColor.Fprint(cmd.OutOrStdout(), "packed ")
	fmt.Fprintf(cmd.OutOrStdout(), "%d items into %s\n", len(items), out)
	return nil
}

func codecFor(cmd *cobra.Command, keep []string) (*document.Codec, error) {
	source, err := cmd.Flags().GetString("source")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("--source must not be empty")
	}
	return document.NewCodec(source, document.NewExportSanitizer(keep)), nil
}

func loadSceneFile(ctx context.Context, path string) (*services.LoadedScene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	loader := services.NewSceneLoader(utils.NewLogger(nil))
	return loader.LoadScene(ctx, &filehandle.Blob{
		Data:     data,
		Name:     filepath.Base(path),
		MIMEType: models.MIMETypeScene,
	}, nil)
}
