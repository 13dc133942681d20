package interp

import (
	"os"
	"plugin"
	"strings"

	"golang.org/x/sync/singleflight"
)

// PackageState holds the `package` table's backing stores described in
// spec.md §4.9: loaded modules (by canonical name), preload functions
// registered ahead of time, and an ordered list of searcher functions
// require() consults in turn — the same three-table shape
// other_examples' MilkLua baselib.go builds from `_LOADED`/`_PRELOAD`/
// `_LOADERS` registry fields, adapted from registry-index slots to a
// plain Go struct since this port has no separate registry table.
type PackageState struct {
	loaded  map[string]Value
	preload map[string]Value

	searchers []Searcher

	path  string
	cpath string

	// loading marks names mid-resolution, for the "loop or previous error
	// loading module" diagnostic MilkLua's loopdetection sentinel gives;
	// kept as a set rather than a sentinel Value since this port's loaded
	// table is a plain Go map, not an LValue-addressed one.
	loading map[string]bool

	group singleflight.Group
}

// Searcher is one entry of package.searchers: given a module name, it
// either returns a loader function plus an opaque "how it was found"
// string for error messages, or ok=false plus a diagnostic message to
// append to the aggregate "module not found" error (spec.md §4.9).
type Searcher func(vm *VM, name string) (loader Value, how string, ok bool, diag string)

const (
	defaultLuaPath  = "?.lua;?/init.lua;./?.lua;./?/init.lua;/usr/local/share/luax/?.lua"
	defaultLuaCPath = "./?.so;/usr/local/lib/luax/?.so"
)

// searchPath layers a primary segment (Options, then the environment
// variable) ahead of the built-in default, per spec.md §6: LUA_PATH, when
// set and non-empty, becomes the FIRST segment of package.path and the
// default is appended after it, rather than being replaced.
func searchPath(explicit, envVar, def string) string {
	if primary := firstNonEmpty(explicit, os.Getenv(envVar)); primary != "" {
		return primary + ";" + def
	}
	return def
}

func newPackageState(vm *VM, opts Options) *PackageState {
	ps := &PackageState{
		loaded:  map[string]Value{},
		preload: map[string]Value{},
		loading: map[string]bool{},
		path:    searchPath(opts.LuaPath, "LUA_PATH", defaultLuaPath),
		cpath:   searchPath(opts.LuaCPath, "LUA_CPATH", defaultLuaCPath),
	}
	ps.searchers = []Searcher{
		preloadSearcher,
		fileSearcher,
		nativeSearcher,
	}
	return ps
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// preloadSearcher implements the first entry of package.searchers: a
// name registered via package.preload[name] = fn is used verbatim.
func preloadSearcher(vm *VM, name string) (Value, string, bool, string) {
	fn, ok := vm.pkg.preload[name]
	if !ok {
		return VNil(), "", false, "no field package.preload['" + name + "']"
	}
	return fn, "preload:" + name, true, ""
}

// fileSearcher implements the filesystem searcher: expands package.path
// templates ("?" substituted with the dotted name turned into a path)
// and returns a native loader that, when called, reads and would hand
// the source off to the (external, out-of-scope per spec.md §1) parser.
// Since LuaX's lexer/parser live outside this module, the loader itself
// is supplied by the embedding host (see Options.SourceLoader); this
// searcher's job is purely path resolution and existence probing.
func fileSearcher(vm *VM, name string) (Value, string, bool, string) {
	rel := strings.ReplaceAll(name, ".", string(os.PathSeparator))
	var tried []string
	for _, tmpl := range strings.Split(vm.pkg.path, ";") {
		if tmpl == "" {
			continue
		}
		candidate := strings.ReplaceAll(tmpl, "?", rel)
		tried = append(tried, candidate)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			path := candidate
			loader := VNativeFn(&NativeFn{
				Name: "loader:" + path,
				Fn: func(vm *VM, args []Value) ([]Value, error) {
					if vm.sourceLoader == nil {
						return nil, typeErrorf("no source loader configured to load %q", path)
					}
					return vm.sourceLoader(vm, path, name)
				},
			})
			return loader, "file:" + path, true, ""
		}
	}
	return VNil(), "", false, "no file '" + strings.Join(tried, "'\n\tno file '") + "'"
}

// nativeSearcher implements the third default searcher spec.md §4.9
// requires: package.cpath template expansion plus dynamic-symbol lookup
// for an init function, mirroring Lua's own luaopen_<name> convention.
// Go's stdlib `plugin` package (Linux/ELF only, like Lua's dlopen-backed
// loader) stands in for the C original's dlsym: a matching .so is opened
// and its exported `LuaXOpen_<name>` symbol — a
// func(*VM, []Value) ([]Value, error) — becomes the loader's native
// function body.
func nativeSearcher(vm *VM, name string) (Value, string, bool, string) {
	rel := strings.ReplaceAll(name, ".", string(os.PathSeparator))
	var tried []string
	for _, tmpl := range strings.Split(vm.pkg.cpath, ";") {
		if tmpl == "" {
			continue
		}
		candidate := strings.ReplaceAll(tmpl, "?", rel)
		tried = append(tried, candidate)
		fi, err := os.Stat(candidate)
		if err != nil || fi.IsDir() {
			continue
		}
		path := candidate
		loader := VNativeFn(&NativeFn{
			Name: "native-loader:" + path,
			Fn: func(vm *VM, args []Value) ([]Value, error) {
				return loadNativeModule(vm, path, name, args)
			},
		})
		return loader, "native:" + path, true, ""
	}
	return VNil(), "", false, "no file '" + strings.Join(tried, "'\n\tno file '") + "'"
}

// nativeInitSymbol builds the exported symbol name a native module must
// provide, e.g. "lfs" -> "LuaXOpen_lfs".
func nativeInitSymbol(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r == '.' || r == '-' {
			return '_'
		}
		return r
	}, name)
	return "LuaXOpen_" + sanitized
}

// loadNativeModule opens path as a Go plugin and invokes its init symbol,
// the dynamic-symbol-lookup half of spec.md §4.9's native-library
// searcher contract.
func loadNativeModule(vm *VM, path, name string, args []Value) ([]Value, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, typeErrorf("cannot open native module %q: %s", path, err)
	}
	sym, err := p.Lookup(nativeInitSymbol(name))
	if err != nil {
		return nil, typeErrorf("native module %q missing init symbol %s: %s", path, nativeInitSymbol(name), err)
	}
	init, ok := sym.(func(*VM, []Value) ([]Value, error))
	if !ok {
		return nil, typeErrorf("native module %q init symbol has wrong signature", path)
	}
	return init(vm, args)
}

// Require implements require(name) (spec.md §4.9): loaded hits return the
// cached value; otherwise every searcher runs in order, the first hit's
// loader is invoked with name as its sole argument, and a non-Nil result
// (or Bool(true) when the loader returns nothing) is cached under name.
// Concurrent same-name calls (possible once coroutines run on their own
// goroutines, see coroutine.go) are deduplicated through a
// singleflight.Group so the loader body runs at most once per name, the
// one piece of genuinely new behavior this port adds over the
// single-threaded C original (spec.md §4.9, §9).
func Require(vm *VM, name string) (Value, error) {
	ps := vm.pkg
	if v, ok := ps.loaded[name]; ok {
		if ps.loading[name] {
			return VNil(), typeErrorf("loop or previous error loading module '%s'", name)
		}
		return v, nil
	}

	result, err, _ := ps.group.Do(name, func() (interface{}, error) {
		ps.loading[name] = true
		defer delete(ps.loading, name)

		var diags []string
		for _, search := range ps.searchers {
			loader, _, ok, diag := search(vm, name)
			if !ok {
				diags = append(diags, diag)
				continue
			}
			res, err := Call(vm, loader, []Value{VStrFromC(name)})
			if err != nil {
				return nil, err
			}
			v := first(res)
			if v.IsNil() {
				v = VBool(true)
			}
			ps.loaded[name] = v
			return v, nil
		}
		return nil, typeErrorf("module '%s' not found:\n\t%s", name, strings.Join(diags, "\n\t"))
	})
	if err != nil {
		return VNil(), err
	}
	return result.(Value), nil
}

// Preload implements package.preload[name] = fn registration.
func (ps *PackageState) Preload(name string, fn Value) {
	ps.preload[name] = fn
}

// LoadedTable materializes package.loaded as a Table for builtins.go's
// `package` global, snapshotting the current cache.
func (ps *PackageState) LoadedTable() *Table {
	t := NewTable()
	for name, v := range ps.loaded {
		_ = t.RawSet(VStrFromC(name), v)
	}
	return t
}
