// Package procexec flags process creation and signalling outside the
// packages allowed to supervise child processes.
package procexec

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Issue represents a detected process API usage.
type Issue struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// ExemptFile contains information about a file exempt from the checks.
type ExemptFile struct {
	Path       string `json:"path"`
	Reason     string `json:"reason"`
	ExpiryDate string `json:"expiry_date,omitempty"` // YYYY-MM-DD
}

// Config contains configuration for the linter.
type Config struct {
	// AllowedDirectories may start and signal processes.
	AllowedDirectories []string `json:"allowed_directories"`

	// ExemptFiles is a list of files exempt from the checks.
	ExemptFiles []ExemptFile `json:"exempt_files"`

	// ExemptDirectories are skipped entirely.
	ExemptDirectories []string `json:"exempt_directories"`

	// LogExemptions writes a line to Log for every skipped file.
	LogExemptions bool `json:"log_exemptions"`

	// StrictMode ignores exemptions whose expiry date has passed.
	StrictMode bool `json:"strict_mode"`

	// Log receives exemption notices; nil discards them.
	Log io.Writer `json:"-"`
}

// NewDefaultConfig allows the tunnel package only.
func NewDefaultConfig() *Config {
	return &Config{
		AllowedDirectories: []string{filepath.Join("core", "tunnel")},
		StrictMode:         true,
	}
}

// signalFuncs are calls that start or signal processes, keyed by import path.
var signalFuncs = map[string]map[string]bool{
	"os":                    {"StartProcess": true, "FindProcess": true},
	"syscall":               {"Kill": true, "ForkExec": true, "Exec": true, "StartProcess": true},
	"golang.org/x/sys/unix": {"Kill": true, "Tgkill": true, "Exec": true},
}

// LintProject checks all Go files below rootDir. Directories starting with
// "_" or "." and testdata are skipped like the go tool does.
func LintProject(rootDir string, config *Config) ([]Issue, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	logOut := config.Log
	if logOut == nil {
		logOut = io.Discard
	}

	var issues []Issue
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(rootDir, path)
		if relErr != nil {
			return relErr
		}

		if info.IsDir() {
			name := info.Name()
			if rel != "." && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata") {
				return filepath.SkipDir
			}
			for _, dir := range config.ExemptDirectories {
				if within(rel, dir) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		for _, dir := range config.AllowedDirectories {
			if within(filepath.Dir(rel), dir) {
				return nil
			}
		}
		for _, exempt := range config.ExemptFiles {
			if !strings.HasSuffix(path, exempt.Path) {
				continue
			}
			if config.StrictMode && expired(exempt.ExpiryDate) {
				fmt.Fprintf(logOut, "Exemption for %s expired on %s\n", path, exempt.ExpiryDate)
				break
			}
			if config.LogExemptions {
				fmt.Fprintf(logOut, "Skipping exempt file: %s (Reason: %s)\n", path, exempt.Reason)
			}
			return nil
		}

		fileIssues, err := LintFile(path)
		if err != nil {
			return fmt.Errorf("error linting file %s: %w", path, err)
		}
		issues = append(issues, fileIssues...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}
	return issues, nil
}

// LintFile checks a single Go file.
func LintFile(filePath string) ([]Issue, error) {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filePath, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}

	var issues []Issue
	report := func(pos token.Pos, msg string) {
		p := fset.Position(pos)
		issues = append(issues, Issue{File: filePath, Line: p.Line, Column: p.Column, Message: msg})
	}

	// local name -> import path
	imports := make(map[string]string)
	for _, imp := range node.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := importPath[strings.LastIndex(importPath, "/")+1:]
		if imp.Name != nil {
			name = imp.Name.Name
		}
		imports[name] = importPath

		if importPath == "os/exec" {
			report(imp.Pos(), "os/exec is restricted to the tunnel package. Launch processes through tunnel.Launcher instead.")
		}
	}

	ast.Inspect(node, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		x, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		importPath, ok := imports[x.Name]
		if !ok || !signalFuncs[importPath][sel.Sel.Name] {
			return true
		}
		report(sel.Pos(), fmt.Sprintf("%s.%s is restricted to the tunnel package. Use tunnel.Launcher.Terminate instead.", x.Name, sel.Sel.Name))
		return true
	})

	return issues, nil
}

func within(rel, dir string) bool {
	dir = filepath.Clean(dir)
	return rel == dir || strings.HasPrefix(rel, dir+string(filepath.Separator))
}

func expired(date string) bool {
	if date == "" {
		return false
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return false
	}
	return time.Now().After(t.AddDate(0, 0, 1))
}
