package container

import (
	"fmt"
	"path"
	"strings"

	"github.com/xtxerr/batcha/internal/errors"
)

// RootPath is the path of the root group.
const RootPath = "/"

// tempSuffix marks the replacement node written during a schema migration.
const tempSuffix = ".migrating"

// ValidateName checks that a single path segment is safe to use as a node
// name. Names may not contain separators, may not be "." or "..", may not
// start with "." (reserved for internal nodes), and may not contain control
// characters.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty: %w", errors.ErrInvalidName)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("name cannot contain '/': %s: %w", name, errors.ErrInvalidName)
	}
	if strings.Contains(name, "\\") {
		return fmt.Errorf("name cannot contain '\\': %s: %w", name, errors.ErrInvalidName)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..': %s: %w", name, errors.ErrInvalidName)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.': %s: %w", name, errors.ErrInvalidName)
	}
	for _, c := range name {
		if c < 32 || c == 127 {
			return fmt.Errorf("name cannot contain control characters: %q: %w", name, errors.ErrInvalidName)
		}
	}
	return nil
}

// TempName returns the internal name used while name is being migrated.
func TempName(name string) string {
	return "." + name + tempSuffix
}

// isTempName reports whether name was produced by TempName.
func isTempName(name string) bool {
	if !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tempSuffix) {
		return false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(name, "."), tempSuffix)
	return ValidateName(inner) == nil
}

func validateNodeName(name string) error {
	if isTempName(name) {
		return nil
	}
	return ValidateName(name)
}

// Clean normalizes an absolute node path: doubled separators collapse and a
// trailing separator is dropped. Relative paths and "."/".." segments are
// rejected instead of being resolved.
func Clean(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", errors.NewInvalidPath(p, "must be absolute")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		if err := validateNodeName(seg); err != nil {
			return "", errors.NewInvalidPath(p, err.Error())
		}
	}
	return path.Clean(p), nil
}

// Segments returns the names along a clean path, root excluded.
func Segments(p string) []string {
	if p == RootPath {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// Split splits a clean path into its parent path and last segment.
func Split(p string) (parent, name string) {
	if p == RootPath {
		return "", ""
	}
	i := strings.LastIndex(p, "/")
	parent = p[:i]
	if parent == "" {
		parent = RootPath
	}
	return parent, p[i+1:]
}

// Join appends name to a clean parent path.
func Join(parent, name string) string {
	if parent == RootPath {
		return "/" + name
	}
	return parent + "/" + name
}
