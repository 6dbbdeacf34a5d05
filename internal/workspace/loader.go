package workspace

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError reports a structured problem found while loading or
// validating a workspace document (File/Field/Reason/Suggestion).
type ValidationError struct {
	File       string
	Field      string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(": ")
	}
	if e.Field != "" {
		sb.WriteString(e.Field)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Reason)
	if e.Suggestion != "" {
		sb.WriteString("\n  Hint: ")
		sb.WriteString(e.Suggestion)
	}
	return sb.String()
}

// workspacesDir is where named workspaces and the active-workspace
// pointer file live.
func workspacesDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("workspace: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".workflow", "workspaces"), nil
}

// ActivePath is ~/.workflow/workspaces/active.yml.
func ActivePath() (string, error) {
	dir, err := workspacesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "active.yml"), nil
}

// Resolve loads a workspace by explicit path, URL, or name, in that
// precedence order. An empty ref loads the active workspace; its
// absence is a fatal startup error.
func Resolve(ref string) (*Workspace, error) {
	if ref == "" {
		active, err := ActivePath()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(active); err != nil {
			return nil, fmt.Errorf("workspace: no active workspace at %s: %w", active, err)
		}
		return loadPath(active)
	}

	if isFilePath(ref) {
		return loadPath(ref)
	}
	if isURL(ref) {
		return loadURL(ref)
	}
	return loadNamed(ref)
}

func isFilePath(ref string) bool {
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") {
		return true
	}
	_, err := os.Stat(ref)
	return err == nil
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func loadNamed(name string) (*Workspace, error) {
	dir, err := workspacesDir()
	if err != nil {
		return nil, err
	}
	return loadPath(filepath.Join(dir, name+".yml"))
}

func loadPath(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ValidationError{
				File:       path,
				Reason:     "workspace file not found",
				Suggestion: "check the workspace name or activate one under ~/.workflow/workspaces/",
			}
		}
		return nil, fmt.Errorf("workspace: read %s: %w", path, err)
	}
	return parse(data, path)
}

func loadURL(url string) (*Workspace, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("workspace: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workspace: fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("workspace: read response from %s: %w", url, err)
	}
	return parse(data, url)
}

func parse(data []byte, source string) (*Workspace, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{File: source, Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if errs := validate(&doc, source); len(errs) > 0 {
		return nil, errs[0]
	}
	return &Workspace{
		Name:    doc.Workspace,
		Sites:   doc.Sites,
		HTTP:    doc.HTTP,
		Archive: doc.Archive,
		Config:  doc.Config,
	}, nil
}

func validate(doc *Document, source string) []*ValidationError {
	var errs []*ValidationError
	if doc.Workspace == "" {
		errs = append(errs, &ValidationError{File: source, Field: "workspace", Reason: "name is required"})
	}
	if len(doc.Sites) == 0 {
		errs = append(errs, &ValidationError{File: source, Field: "sites", Reason: "at least one site is required"})
	}
	if len(doc.HTTP.BaseURLs.Buckets) == 0 {
		errs = append(errs, &ValidationError{File: source, Field: "http.baseurls.buckets", Reason: "at least one bucket service base URL is required"})
	}
	return errs
}
