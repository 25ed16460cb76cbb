// cmd/sketchctl/main.go
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Corphon/SketchKeeper/internal/models"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

// newRootCmd 构建命令树
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sketchctl",
		Short:         "Inspect and convert scene and library documents",
		Long:          "sketchctl validates, normalizes and packs .excalidraw and .excalidrawlib files offline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyColorMode(cmd)
		},
	}

	// 全局参数
	root.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().String("source", models.DefaultExportSource, "source written into generated documents")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newNormalizeCmd())
	root.AddCommand(newPackLibraryCmd())
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		failColor.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
