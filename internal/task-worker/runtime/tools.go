package runtime

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ScanTools lists the tools installed under root. A tool is a directory named
// "name@version" that contains an executable file called name. A missing root
// yields an empty list.
func ScanTools(root string) ([]string, error) {
	tools := []string{}
	if root == "" {
		return tools, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return tools, nil
		}
		return tools, errors.Wrapf(err, "read tools root %s", root)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, version, ok := strings.Cut(e.Name(), "@")
		if !ok || name == "" || version == "" {
			continue
		}
		info, err := os.Stat(filepath.Join(root, e.Name(), name))
		if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
			continue
		}
		tools = append(tools, e.Name())
	}
	sort.Strings(tools)
	return tools, nil
}
