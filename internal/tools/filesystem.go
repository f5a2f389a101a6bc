package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const emptyDirMessage = "📂 Directory is empty"

func (e *Executor) readFile(args map[string]any) string {
	p, ok := requireString(args, "path")
	if !ok {
		return missingArgument("path")
	}
	path, err := e.resolve(p)
	if err != nil {
		return pathError(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("❌ File not found: %s", p)
		}
		return fmt.Sprintf("❌ Error reading file: %v", err)
	}
	if info.IsDir() {
		return fmt.Sprintf("❌ %s is not a file", p)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("❌ Permission denied: %s", p)
		}
		return fmt.Sprintf("❌ Error reading file: %v", err)
	}
	text := string(content)
	return fmt.Sprintf("📄 File content (%d chars):\n%s", len([]rune(text)), text)
}

func (e *Executor) writeFile(args map[string]any) string {
	p, ok := requireString(args, "path")
	if !ok || p == "" {
		return missingArgument("path")
	}
	content, ok := requireString(args, "content")
	if !ok {
		return missingArgument("content")
	}
	path, err := e.resolve(p)
	if err != nil {
		return pathError(err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Sprintf("❌ Error creating directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("❌ Permission denied: %s", p)
		}
		return fmt.Sprintf("❌ Error writing file: %v", err)
	}
	return fmt.Sprintf("✅ Wrote file: %s", e.relative(path))
}

func (e *Executor) listDir(args map[string]any) string {
	p := GetString(args, "path", "")
	path, err := e.resolve(p)
	if err != nil {
		return pathError(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("❌ Directory not found: %s", p)
		}
		return fmt.Sprintf("❌ Error reading directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("❌ %s is not a directory", p)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("❌ Permission denied: %s", p)
		}
		return fmt.Sprintf("❌ Error reading directory: %v", err)
	}
	if len(entries) == 0 {
		return emptyDirMessage
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	b.WriteString("📁 Directory contents:")
	for _, entry := range entries {
		marker := "📄"
		if entry.IsDir() {
			marker = "📁"
		}
		b.WriteString("\n")
		b.WriteString(marker)
		b.WriteString(" ")
		b.WriteString(e.relative(filepath.Join(path, entry.Name())))
	}
	return b.String()
}
