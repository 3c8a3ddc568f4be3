package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Registry holds compiled entity kinds by name.
// A Registry is immutable after Load or NewRegistry returns.
type Registry struct {
	kinds map[string]*EntityKind
}

// NewRegistry builds a registry from already compiled kinds.
func NewRegistry(kinds ...*EntityKind) (*Registry, error) {
	r := &Registry{kinds: make(map[string]*EntityKind, len(kinds))}
	for _, k := range kinds {
		if _, dup := r.kinds[k.Name]; dup {
			return nil, fmt.Errorf("duplicate entity kind %q", k.Name)
		}
		r.kinds[k.Name] = k
	}
	return r, nil
}

// Kind returns the named entity kind.
func (r *Registry) Kind(name string) (*EntityKind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// Names returns all kind names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for n := range r.kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load compiles every `entity: <Name>: {...}` definition of the CUE package
// in dir. Compilation errors are collected rather than failing fast, so a
// caller sees every broken kind at once.
func Load(dir string) (*Registry, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("schema directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, []error{fmt.Errorf("scan %s: %w", dir, err)}
	}
	if len(files) == 0 {
		return nil, []error{fmt.Errorf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded from %s", dir)}
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return compileRegistry(value)
}

// LoadString compiles entity definitions from CUE source text.
func LoadString(src string) (*Registry, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return compileRegistry(value)
}

func compileRegistry(value cue.Value) (*Registry, []error) {
	entities := value.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, []error{fmt.Errorf("no entity definitions found")}
	}

	iter, err := entities.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		kinds []*EntityKind
		errs  []error
	)
	for iter.Next() {
		kind, err := CompileEntity(iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, verr := range Validate(kind) {
			errs = append(errs, verr)
		}
		kinds = append(kinds, kind)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	reg, err := NewRegistry(kinds...)
	if err != nil {
		return nil, []error{err}
	}
	return reg, nil
}
