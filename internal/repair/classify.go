package repair

import (
	"path"
	"regexp"
	"strings"

	"github.com/sitesmith/sitesmith/internal/project"
	"github.com/sitesmith/sitesmith/internal/template"
)

// Fix is a deterministic correction for a recognized build failure.
// Applying it never involves a backend call.
type Fix struct {
	Signature string // Short name recorded in the repair history
	Artifacts []project.Artifact
}

type failureSignature struct {
	name  string
	match func(stderr string) []project.Artifact // nil means no match
}

var reModuleNotFound = regexp.MustCompile(`Module not found: Can't resolve '([^']+)'`)

// signatures is the ordered table of known build failures. First match
// wins, so more specific signatures come first.
var signatures = []failureSignature{
	{
		// Tailwind v4 moved its PostCSS plugin into @tailwindcss/postcss;
		// a config naming tailwindcss directly fails every build.
		name: "tailwind-postcss-plugin",
		match: func(stderr string) []project.Artifact {
			if !strings.Contains(stderr, "directly as a PostCSS plugin") &&
				!strings.Contains(stderr, "PostCSS plugin has moved to a separate package") {
				return nil
			}
			return []project.Artifact{{
				Path:    "postcss.config.mjs",
				Action:  project.Update,
				Content: template.PostCSSConfig,
			}}
		},
	},
	{
		name:  "missing-required-file",
		match: matchMissingRequiredFile,
	},
	{
		// npm refuses to install when the lockfile disagrees with
		// package.json or a cached tarball hash; deleting it forces a
		// clean resolution.
		name: "stale-lockfile",
		match: func(stderr string) []project.Artifact {
			if !strings.Contains(stderr, "EINTEGRITY") &&
				!strings.Contains(stderr, "integrity checksum failed") &&
				!strings.Contains(stderr, "package.json and package-lock.json") {
				return nil
			}
			return []project.Artifact{{
				Path:   "package-lock.json",
				Action: project.Delete,
			}}
		},
	},
}

// matchMissingRequiredFile restores template copies of required files
// the build cannot find, whether reported as an unresolved module or as
// a missing package.json.
func matchMissingRequiredFile(stderr string) []project.Artifact {
	required := template.RequiredPaths()

	restore := map[string]bool{}
	for _, m := range reModuleNotFound.FindAllStringSubmatch(stderr, -1) {
		spec := m[1]
		// Bare specifiers are missing npm packages, not project files
		if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") && !strings.HasPrefix(spec, "@/") {
			continue
		}
		base := path.Base(spec)
		for _, req := range required {
			if path.Base(req) == base {
				restore[req] = true
			}
		}
	}

	if strings.Contains(stderr, "Could not read package.json") ||
		(strings.Contains(stderr, "ENOENT") && strings.Contains(stderr, "package.json")) {
		restore["package.json"] = true
	}

	var artifacts []project.Artifact
	for _, req := range required {
		if !restore[req] {
			continue
		}
		content, ok := template.Lookup(req)
		if !ok {
			continue
		}
		artifacts = append(artifacts, project.Artifact{
			Path:    req,
			Action:  project.Update,
			Content: content,
		})
	}
	return artifacts
}

// Classify matches build output against the signature table and returns
// the first recognized fix.
func Classify(stderr string) (Fix, bool) {
	for _, sig := range signatures {
		if artifacts := sig.match(stderr); len(artifacts) > 0 {
			return Fix{Signature: sig.name, Artifacts: artifacts}, true
		}
	}
	return Fix{}, false
}
