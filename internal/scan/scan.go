// Package scan extracts a typed summary from a generated source file:
// its imports, exports, and capability flags. Both the generator's
// directive enforcement and the import/export validator consume these
// summaries, so the detection heuristics live in exactly one place.
package scan

import (
	"regexp"
	"strings"
)

// Import is one import statement, reduced to what validation needs.
// Named entries carry the source-side symbol name: for
// `import { a as b }` the entry is "a".
type Import struct {
	Source    string
	Default   string
	Named     []string
	Namespace string
	TypeOnly  bool
}

// ReExport is an `export ... from` statement. Names are the public
// (post-alias) symbol names; All marks `export * from`.
type ReExport struct {
	Source string
	Names  []string
	All    bool
}

// Summary is the typed digest of one source file.
type Summary struct {
	Path             string
	HasDirective     bool
	Interactive      bool
	TypeOnly         bool
	HasDefaultExport bool
	DefaultName      string
	NamedExports     []string
	ReExports        []ReExport
	Imports          []Import
	DefinesContext   bool
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`//[^\n]*`)

	reHookCall      = regexp.MustCompile(`\buse[A-Z][A-Za-z0-9_]*\s*(?:<[^>]*>)?\s*\(`)
	reHandlerProp   = regexp.MustCompile(`\bon[A-Z][A-Za-z0-9]*\s*=`)
	reBrowserGlobal = regexp.MustCompile(`\b(?:window|document|localStorage|sessionStorage|navigator)\s*[.\[(]`)
	reCreateContext = regexp.MustCompile(`\bcreateContext\s*[<(]`)

	reImportFrom       = regexp.MustCompile(`import\s+(type\s+)?([^'";]+?)\s*from\s*['"]([^'"]+)['"]`)
	reImportSideEffect = regexp.MustCompile(`import\s*['"]([^'"]+)['"]`)
	reNamespaceClause  = regexp.MustCompile(`\*\s*as\s+([A-Za-z_$][\w$]*)`)

	reExportDefaultFunc  = regexp.MustCompile(`export\s+default\s+(?:async\s+)?function\s*([A-Za-z_$][\w$]*)?`)
	reExportDefaultClass = regexp.MustCompile(`export\s+default\s+class\s*([A-Za-z_$][\w$]*)?`)
	reExportDefault      = regexp.MustCompile(`export\s+default\s`)
	reExportDecl         = regexp.MustCompile(`export\s+(?:async\s+)?(?:function|const|let|var|class|interface|enum)\s+([A-Za-z_$][\w$]*)`)
	reExportTypeAlias    = regexp.MustCompile(`export\s+type\s+([A-Za-z_$][\w$]*)\s*[=<]`)
	reExportList         = regexp.MustCompile(`export\s+(?:type\s+)?\{([^}]*)\}(?:\s*from\s*['"]([^'"]+)['"])?`)
	reExportStar         = regexp.MustCompile(`export\s+\*\s+from\s+['"]([^'"]+)['"]`)

	reTypeDecl  = regexp.MustCompile(`(?:^|\n)\s*(?:export\s+)?(?:interface\s+[A-Za-z_$]|type\s+[A-Za-z_$][\w$]*\s*[=<])`)
	reValueDecl = regexp.MustCompile(`(?:^|\n)\s*(?:export\s+)?(?:async\s+)?(?:const|let|var|function|class|enum)\s`)
)

// sourceExtensions are the file kinds the scanner understands. Anything
// else (stylesheets, JSON, config scripts) is skipped by callers.
var sourceExtensions = []string{".tsx", ".ts", ".jsx", ".js"}

// IsSource reports whether path names a scannable script file.
func IsSource(path string) bool {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// File parses one source file into its Summary. Parsing is heuristic
// and line-oriented rather than a full grammar, but it is deterministic
// and shared by everything that inspects generated code.
func File(path, content string) Summary {
	s := Summary{Path: path}

	stripped := stripComments(content)

	s.HasDirective = HasDirective(content)
	s.Interactive = reHookCall.MatchString(stripped) ||
		reHandlerProp.MatchString(stripped) ||
		reBrowserGlobal.MatchString(stripped)
	s.DefinesContext = reCreateContext.MatchString(stripped)

	s.Imports = parseImports(stripped)
	parseExports(stripped, &s)

	s.TypeOnly = reTypeDecl.MatchString(stripped) &&
		!reValueDecl.MatchString(stripped) &&
		!s.HasDefaultExport
	if s.TypeOnly {
		s.Interactive = false
	}

	return s
}

func stripComments(content string) string {
	content = reBlockComment.ReplaceAllString(content, "")
	return reLineComment.ReplaceAllString(content, "")
}

func parseImports(content string) []Import {
	var imports []Import

	for _, m := range reImportFrom.FindAllStringSubmatch(content, -1) {
		imp := Import{
			TypeOnly: m[1] != "",
			Source:   m[3],
		}
		parseImportClause(m[2], &imp)
		imports = append(imports, imp)
	}

	// Bare side-effect imports (`import './globals.css'`). The pattern
	// requires the quote directly after the keyword, so it cannot
	// overlap with the from-clause form above.
	for _, m := range reImportSideEffect.FindAllStringSubmatch(content, -1) {
		imports = append(imports, Import{Source: m[1]})
	}

	return imports
}

// parseImportClause splits the binding clause of an import statement:
// `Default`, `{ a, b as c }`, `Default, { ... }`, `* as ns`.
func parseImportClause(clause string, imp *Import) {
	clause = strings.TrimSpace(clause)

	if m := reNamespaceClause.FindStringSubmatch(clause); m != nil {
		imp.Namespace = m[1]
		clause = strings.Replace(clause, m[0], "", 1)
	}

	if open := strings.Index(clause, "{"); open >= 0 {
		close := strings.Index(clause, "}")
		if close > open {
			imp.Named = parseBindingList(clause[open+1:close], true)
		}
		clause = clause[:open]
	}

	clause = strings.Trim(strings.TrimSpace(clause), ",")
	clause = strings.TrimSpace(clause)
	if clause != "" {
		imp.Default = clause
	}
}

// parseBindingList parses `a, b as c, type D` lists. When sourceSide is
// true the pre-alias name is kept (import semantics); otherwise the
// post-alias name is kept (export semantics).
func parseBindingList(list string, sourceSide bool) []string {
	var names []string
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		entry = strings.TrimSpace(strings.TrimPrefix(entry, "type "))

		name := entry
		if parts := strings.Split(entry, " as "); len(parts) == 2 {
			if sourceSide {
				name = strings.TrimSpace(parts[0])
			} else {
				name = strings.TrimSpace(parts[1])
			}
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func parseExports(content string, s *Summary) {
	if m := reExportDefaultFunc.FindStringSubmatch(content); m != nil {
		s.HasDefaultExport = true
		s.DefaultName = m[1]
	} else if m := reExportDefaultClass.FindStringSubmatch(content); m != nil {
		s.HasDefaultExport = true
		s.DefaultName = m[1]
	} else if reExportDefault.MatchString(content) {
		s.HasDefaultExport = true
	}

	seen := make(map[string]bool)
	addNamed := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		s.NamedExports = append(s.NamedExports, name)
	}

	for _, m := range reExportDecl.FindAllStringSubmatch(content, -1) {
		addNamed(m[1])
	}
	for _, m := range reExportTypeAlias.FindAllStringSubmatch(content, -1) {
		addNamed(m[1])
	}

	for _, m := range reExportList.FindAllStringSubmatch(content, -1) {
		names := parseBindingList(m[1], false)
		for _, name := range names {
			// `export { x as default }` declares this file's default.
			if name == "default" {
				s.HasDefaultExport = true
				continue
			}
			addNamed(name)
		}
		if m[2] != "" {
			s.ReExports = append(s.ReExports, ReExport{Source: m[2], Names: names})
		}
	}

	for _, m := range reExportStar.FindAllStringSubmatch(content, -1) {
		s.ReExports = append(s.ReExports, ReExport{Source: m[1], All: true})
	}
}
