package sandbox

import (
	"regexp"
	"sort"
	"strings"
)

var importPattern = regexp.MustCompile(`^\s*(?:import|from)\s+([a-zA-Z0-9_\.]+)`)

// pythonStdlib lists standard library root modules a generated script may
// import; these never need a pip install. Covers the modules analysis
// scripts actually reach for, not the full stdlib.
var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "array": true, "asyncio": true,
	"base64": true, "binascii": true, "bisect": true, "builtins": true,
	"calendar": true, "collections": true, "concurrent": true, "contextlib": true,
	"copy": true, "csv": true, "ctypes": true, "dataclasses": true,
	"datetime": true, "decimal": true, "difflib": true, "enum": true,
	"fractions": true, "functools": true, "gc": true, "getpass": true,
	"glob": true, "gzip": true, "hashlib": true, "heapq": true,
	"hmac": true, "html": true, "http": true, "importlib": true,
	"inspect": true, "io": true, "itertools": true, "json": true,
	"logging": true, "math": true, "mimetypes": true, "multiprocessing": true,
	"numbers": true, "operator": true, "os": true, "pathlib": true,
	"pickle": true, "platform": true, "pprint": true, "queue": true,
	"random": true, "re": true, "secrets": true, "shlex": true,
	"shutil": true, "signal": true, "socket": true, "sqlite3": true,
	"ssl": true, "statistics": true, "string": true, "struct": true,
	"subprocess": true, "sys": true, "tarfile": true, "tempfile": true,
	"textwrap": true, "threading": true, "time": true, "traceback": true,
	"types": true, "typing": true, "unicodedata": true, "unittest": true,
	"urllib": true, "uuid": true, "warnings": true, "weakref": true,
	"xml": true, "zipfile": true, "zlib": true,
}

// ScanImports extracts the third-party root package names a Python script
// imports. Standard library modules are excluded; the result is sorted and
// deduplicated.
func ScanImports(script string) []string {
	seen := make(map[string]bool)
	for _, line := range strings.Split(script, "\n") {
		match := importPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		root := strings.SplitN(match[1], ".", 2)[0]
		if root == "" || pythonStdlib[root] {
			continue
		}
		seen[root] = true
	}

	packages := make([]string, 0, len(seen))
	for pkg := range seen {
		packages = append(packages, pkg)
	}
	sort.Strings(packages)
	return packages
}
