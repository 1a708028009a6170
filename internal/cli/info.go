package cli

import (
	"flag"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"

	"spanner/internal/config"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
)

type VersionCommand struct {
	Meta
}

func (c *VersionCommand) Synopsis() string {
	return "Displays version-related information"
}

func (c *VersionCommand) Help() string {
	return `Usage: spanner info version [-verbose]

  Shows the spanner, Go and library versions and the config files found.

Options:

  -verbose  Also list every dependency.`
}

func (c *VersionCommand) Run(args []string) int {
	flags := flag.NewFlagSet("info version", flag.ContinueOnError)
	verbose := flags.Bool("verbose", false, "list every dependency")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	info, _ := debug.ReadBuildInfo()
	c.Ui.Output(versionTable(c.Version, gitCommit(), info, discoverConfigs(), *verbose))
	return 0
}

type configFile struct {
	Kind string
	Path string
}

// discoverConfigs lists config files in lookup order.
func discoverConfigs() []configFile {
	var found []configFile
	check := func(kind, path string) {
		if path == "" {
			return
		}
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			found = append(found, configFile{Kind: kind, Path: path})
		}
	}
	check("Local", "config.json")
	check("Local", "config.yaml")
	check("Global", config.GlobalPath())
	check("Local-Old ⚠", ".env")
	return found
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	if commit := strings.TrimSpace(string(out)); commit != "" {
		return commit
	}
	return "unknown"
}

// trackedDeps are always shown; -verbose shows the rest.
var trackedDeps = []string{
	"github.com/bwmarrin/discordgo",
	"go.uber.org/zap",
	"modernc.org/sqlite",
}

func versionTable(version, commit string, info *debug.BuildInfo, configs []configFile, verbose bool) string {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"component", "version"})
	tw.AppendRow(table.Row{"spanner", version})
	tw.AppendRow(table.Row{"commit", commit})
	tw.AppendRow(table.Row{"go", runtime.Version()})
	tw.AppendRow(table.Row{"system", runtime.GOOS + "/" + runtime.GOARCH})

	if info != nil {
		deps := make([]*debug.Module, 0, len(info.Deps))
		for _, dep := range info.Deps {
			if verbose || contains(trackedDeps, dep.Path) {
				deps = append(deps, dep)
			}
		}
		sort.Slice(deps, func(i, j int) bool { return deps[i].Path < deps[j].Path })
		for _, dep := range deps {
			tw.AppendRow(table.Row{dep.Path, dep.Version})
		}
	}

	for _, cfg := range configs {
		tw.AppendRow(table.Row{cfg.Kind + " config", cfg.Path})
	}
	return tw.Render()
}

type FileTreeCommand struct {
	Meta
}

func (c *FileTreeCommand) Synopsis() string {
	return "Shows the project's file tree, useful for finding missing files"
}

func (c *FileTreeCommand) Help() string {
	return `Usage: spanner info file-tree [dir]`
}

func (c *FileTreeCommand) Run(args []string) int {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	out, err := fileTree(root)
	if err != nil {
		c.Ui.Error("Error: " + err.Error())
		return 1
	}
	c.Ui.Output(out)
	return 0
}

// fileTree renders root with directories before files. Hidden entries and
// vendored or reference directories are skipped.
func fileTree(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	lw := list.NewWriter()
	lw.SetStyle(list.StyleConnectedRounded)
	lw.AppendItem(abs)
	lw.Indent()
	if err := appendDir(lw, abs); err != nil {
		return "", err
	}
	return lw.Render(), nil
}

func appendDir(lw list.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	for _, entry := range entries {
		name := entry.Name()
		if skipEntry(name) {
			continue
		}
		if !entry.IsDir() {
			lw.AppendItem(name)
			continue
		}
		lw.AppendItem(name + "/")
		lw.Indent()
		if err := appendDir(lw, filepath.Join(dir, name)); err != nil {
			return err
		}
		lw.UnIndent()
	}
	return nil
}

func skipEntry(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "__") {
		return true
	}
	switch name {
	case "_examples", "vendor", "node_modules":
		return true
	}
	return false
}
