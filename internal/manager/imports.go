package manager

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/timeflux-go/timeflux/internal/appconfig"
)

// ResolvedApp is the result of recursively loading an application file
// and all of its (transitive) imports: every graph, in declaration
// order, and the directory of every imported file. Node types are
// resolved through internal/node.Registry rather than dynamic module
// import, so ModuleSearchPath has no runtime effect on node
// construction; it is kept for tooling that wants to report where each
// graph's node modules would have been looked up.
type ResolvedApp struct {
	Graphs           []appconfig.GraphDescriptor
	ModuleSearchPath []string
}

// Load reads path, recursively resolves every import it (transitively)
// declares, and returns the concatenated, deduplicated graph list. Each
// file is loaded at most once, tracked by its
// canonical absolute path; the working directory is temporarily switched
// to each file's own directory while its imports are resolved, so
// relative import paths inside it resolve against its own location, and
// restored before Load returns.
func Load(path string) (ResolvedApp, error) {
	visited := make(map[string]bool)
	var result ResolvedApp
	if err := loadInto(path, visited, &result); err != nil {
		return ResolvedApp{}, err
	}
	return result, nil
}

func loadInto(path string, visited map[string]bool, result *ResolvedApp) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("manager: resolve path %q: %w", path, err)
	}
	canon := abs
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		canon = resolved
	}
	if visited[canon] {
		return nil
	}
	visited[canon] = true

	dir := filepath.Dir(canon)
	base := filepath.Base(canon)

	oldWd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("manager: getwd: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("manager: chdir %q: %w", dir, err)
	}
	defer os.Chdir(oldWd)

	app, err := LoadFile(base)
	if err != nil {
		return err
	}

	result.Graphs = append(result.Graphs, app.Graphs...)

	for _, imp := range app.Import {
		impAbs, err := filepath.Abs(imp)
		if err != nil {
			return fmt.Errorf("manager: resolve import %q (from %q): %w", imp, canon, err)
		}
		result.ModuleSearchPath = append(result.ModuleSearchPath, filepath.Dir(impAbs))
		if err := loadInto(imp, visited, result); err != nil {
			return fmt.Errorf("manager: import %q (from %q): %w", imp, canon, err)
		}
	}
	return nil
}
