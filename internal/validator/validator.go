// Package validator statically checks every cross-file reference in a
// generated project against the declared exports of the target file.
// Validation is pure: no network, no process, and re-running it on the
// same file set yields a byte-identical report.
package validator

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sitesmith/sitesmith/internal/scan"
)

// Kind classifies one import/export mismatch.
type Kind string

const (
	UnresolvedPath       Kind = "unresolved-path"
	MissingDefaultExport Kind = "missing-default-export"
	MissingNamedExport   Kind = "missing-named-export"
)

// Error is one recorded mismatch: the importing file, the target it
// references, and the symbol (empty for path and default-export
// failures).
type Error struct {
	File   string
	Target string
	Symbol string
	Kind   Kind
}

// Error implements the error interface with a single-line description.
func (e Error) Error() string {
	switch e.Kind {
	case UnresolvedPath:
		return fmt.Sprintf("%s: cannot resolve import %q", e.File, e.Target)
	case MissingDefaultExport:
		return fmt.Sprintf("%s: %q has no default export", e.File, e.Target)
	case MissingNamedExport:
		return fmt.Sprintf("%s: %q has no named export %q", e.File, e.Target, e.Symbol)
	default:
		return fmt.Sprintf("%s: invalid reference to %q", e.File, e.Target)
	}
}

// Report is the result of one validation pass.
type Report struct {
	Valid  bool
	Errors []Error
}

// Render produces the human-readable feedback block attached to a run
// when validation finds mismatches. Empty for a valid report.
func (r Report) Render() string {
	if r.Valid {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "import validation found %d issue(s):\n", len(r.Errors))
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "- %s\n", e.Error())
	}
	return b.String()
}

// extensions lists the resolution suffixes, tried in order.
var extensions = []string{".tsx", ".ts", ".jsx", ".js"}

// Validate checks all internal imports in the given path → content map.
// Bare module specifiers (framework and npm packages) are skipped; only
// relative (./, ../) and root-alias (@/) references are resolved.
func Validate(files map[string]string) Report {
	summaries := make(map[string]scan.Summary, len(files))
	for p, content := range files {
		if scan.IsSource(p) {
			summaries[p] = scan.File(p, content)
		}
	}

	exports := buildExports(files, summaries)

	var errs []Error
	seen := make(map[Error]bool)
	record := func(e Error) {
		if !seen[e] {
			seen[e] = true
			errs = append(errs, e)
		}
	}

	for p, summary := range summaries {
		for _, imp := range summary.Imports {
			if !isInternal(imp.Source) {
				continue
			}

			target, ok := resolve(files, p, imp.Source)
			if !ok {
				record(Error{File: p, Target: imp.Source, Kind: UnresolvedPath})
				continue
			}
			// Stylesheets and other assets resolve by existence alone.
			if !scan.IsSource(target) {
				continue
			}

			set := exports[target]
			if set == nil {
				continue
			}

			if imp.Default != "" && !set.hasDefault {
				record(Error{File: p, Target: imp.Source, Kind: MissingDefaultExport})
			}
			for _, name := range imp.Named {
				if name == "default" {
					if !set.hasDefault {
						record(Error{File: p, Target: imp.Source, Kind: MissingDefaultExport})
					}
					continue
				}
				if !set.named[name] {
					record(Error{File: p, Target: imp.Source, Symbol: name, Kind: MissingNamedExport})
				}
			}
		}
	}

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].File != errs[j].File {
			return errs[i].File < errs[j].File
		}
		if errs[i].Target != errs[j].Target {
			return errs[i].Target < errs[j].Target
		}
		if errs[i].Symbol != errs[j].Symbol {
			return errs[i].Symbol < errs[j].Symbol
		}
		return errs[i].Kind < errs[j].Kind
	})

	return Report{Valid: len(errs) == 0, Errors: errs}
}

// isInternal reports whether a specifier points inside the project.
func isInternal(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "@/")
}

// resolve maps an import specifier to a ProjectState key, trying direct
// match, extension-augmented match, then index files, in that order.
func resolve(files map[string]string, fromFile, specifier string) (string, bool) {
	var base string
	switch {
	case strings.HasPrefix(specifier, "@/"):
		base = path.Clean(specifier[2:])
	default:
		base = path.Join(path.Dir(fromFile), specifier)
	}
	if base == ".." || strings.HasPrefix(base, "../") {
		return "", false
	}

	if _, ok := files[base]; ok {
		return base, true
	}
	for _, ext := range extensions {
		if candidate := base + ext; fileExists(files, candidate) {
			return candidate, true
		}
	}
	for _, ext := range extensions {
		if candidate := path.Join(base, "index"+ext); fileExists(files, candidate) {
			return candidate, true
		}
	}
	return "", false
}

func fileExists(files map[string]string, p string) bool {
	_, ok := files[p]
	return ok
}

// exportSet is the resolved export surface of one file.
type exportSet struct {
	hasDefault bool
	named      map[string]bool
}

// buildExports computes each file's export surface. `export * from`
// chains are propagated to a fixpoint, which makes the result
// independent of iteration order and terminates on cyclic re-exports
// because the union only ever grows.
func buildExports(files map[string]string, summaries map[string]scan.Summary) map[string]*exportSet {
	sets := make(map[string]*exportSet, len(summaries))
	type link struct{ from, to string }
	var links []link

	for p, summary := range summaries {
		set := &exportSet{
			hasDefault: summary.HasDefaultExport,
			named:      make(map[string]bool, len(summary.NamedExports)),
		}
		for _, name := range summary.NamedExports {
			set.named[name] = true
		}
		sets[p] = set

		for _, re := range summary.ReExports {
			if !re.All {
				continue
			}
			if target, ok := resolve(files, p, re.Source); ok && scan.IsSource(target) {
				links = append(links, link{from: target, to: p})
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, l := range links {
			src, dst := sets[l.from], sets[l.to]
			for name := range src.named {
				if !dst.named[name] {
					dst.named[name] = true
					changed = true
				}
			}
		}
	}
	return sets
}
