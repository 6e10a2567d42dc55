package manifest

import "strings"

// ModuleName converts a file or directory name into an importable module
// name: "my-util.kbc" -> "my_util".
func ModuleName(s string) string {
	if i := strings.LastIndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
		case isIdentRune(r, i == 0):
			b.WriteRune(r)
		case i == 0 && r >= '0' && r <= '9':
			b.WriteByte('_')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsModuleName reports whether name is a dotted sequence of identifiers.
func IsModuleName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return false
		}
		for i, r := range seg {
			if !isIdentRune(r, i == 0) {
				return false
			}
		}
	}
	return true
}

func isIdentRune(r rune, first bool) bool {
	switch {
	case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return !first
	}
	return false
}

// reservedModules lists names the driver registers itself.
var reservedModules = map[string]bool{
	"builtins": true,
	"__main__": true,
}

// IsReservedModule reports whether name collides with a module the
// driver registers. Only the root segment is checked: "app.builtins" is
// fine because the root is "app".
func IsReservedModule(name string) bool {
	root := name
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		root = name[:idx]
	}
	return reservedModules[root]
}
