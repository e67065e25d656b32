package commands

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
	"kcl-lang.io/kcl-go"
	"kcl-lang.io/kcl-go/pkg/utils"
)

// configSource locates the main configuration document. The document is
// either plain YAML or a KCL program rendering to YAML.
type configSource struct {
	Workdir string
	Main    string
}

var mainFiles = []string{"main.yaml", "main.yml", "main.k", "main.kcl"}

func (s *configSource) dir() string {
	return cmp.Or(s.Workdir, ".")
}

// mainFile returns the configured main file, the first default file found
// in the working directory, or "-" for stdin.
func (s *configSource) mainFile() string {
	if s.Main != "" {
		return s.Main
	}
	for _, name := range mainFiles {
		path := filepath.Join(s.dir(), name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return "-"
}

func isKCL(path string) bool {
	switch filepath.Ext(path) {
	case ".k", ".kcl":
		return true
	}
	return false
}

// readConfig decodes the document node at selector (a dotted path, empty
// for the whole document) into T.
func readConfig[T any](src *configSource, selector string) (cfg T, err error) {
	file := src.mainFile()
	if isKCL(file) {
		rendered, err := src.renderKCL(file, selector)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal([]byte(rendered), &cfg); err != nil {
			return cfg, fmt.Errorf("decode kcl output: %w", err)
		}
		return cfg, nil
	}

	var in io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return cfg, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		in = f
	}

	if selector == "" {
		err = yaml.NewDecoder(in).Decode(&cfg)
	} else {
		var path *yaml.Path
		path, err = yaml.PathString("$." + selector)
		if err != nil {
			return cfg, fmt.Errorf("invalid config selector %q: %w", selector, err)
		}
		err = path.Read(in, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("decode yaml config file: %w", err)
	}
	return cfg, nil
}

func (s *configSource) renderKCL(file, selector string) (string, error) {
	dir, err := filepath.Abs(s.dir())
	if err != nil {
		return "", err
	}

	opts := []kcl.Option{
		kcl.WithWorkDir(dir),
		kcl.WithLogger(os.Stderr),
	}
	if selector != "" {
		opts = append(opts, kcl.WithSelectors(selector))
	}

	pkgs, err := kclExternalPkgs(dir)
	if err != nil {
		return "", err
	}
	opts = append(opts, pkgs...)

	res, err := kcl.RunFiles([]string{file}, opts...)
	if err != nil {
		return "", fmt.Errorf("run kcl program %s: %w", file, err)
	}
	return res.GetRawYamlResult(), nil
}

type kclMod struct {
	Dependencies map[string]kclDependency `toml:"dependencies"`
}

type kclDependency struct {
	Path    string `toml:"path"`
	Version string `toml:"version"`
}

// kclExternalPkgs resolves the local path dependencies of the kcl.mod
// enclosing dir. Registry dependencies are left to the KCL runtime.
func kclExternalPkgs(dir string) ([]kcl.Option, error) {
	root, err := utils.FindPkgRoot(dir)
	if err != nil {
		return nil, nil
	}

	var mod kclMod
	if _, err := toml.DecodeFile(filepath.Join(root, "kcl.mod"), &mod); err != nil {
		return nil, fmt.Errorf("decode kcl.mod file: %w", err)
	}

	var opts []kcl.Option
	for _, name := range slices.Sorted(maps.Keys(mod.Dependencies)) {
		dep := mod.Dependencies[name]
		if dep.Path == "" {
			continue
		}

		path := filepath.Clean(filepath.Join(root, dep.Path))
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("dependency %s not found: %w", name, err)
		}
		opts = append(opts, kcl.WithExternalPkgAndPath(name, path))
	}
	return opts, nil
}
