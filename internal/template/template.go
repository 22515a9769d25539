// Package template supplies the fixed boilerplate every generated
// project contains regardless of requirement content, and assembles
// the final file set from template plus generated state. Both are pure
// functions over constants: no disk, no network, no globals.
package template

const packageJSON = `{
  "name": "generated-app",
  "version": "0.1.0",
  "private": true,
  "scripts": {
    "dev": "next dev",
    "build": "next build",
    "start": "next start"
  },
  "dependencies": {
    "next": "15.3.2",
    "react": "^19.0.0",
    "react-dom": "^19.0.0"
  },
  "devDependencies": {
    "@tailwindcss/postcss": "^4",
    "@types/node": "^20",
    "@types/react": "^19",
    "@types/react-dom": "^19",
    "tailwindcss": "^4",
    "typescript": "^5"
  }
}
`

const tsconfigJSON = `{
  "compilerOptions": {
    "target": "ES2017",
    "lib": ["dom", "dom.iterable", "esnext"],
    "allowJs": true,
    "skipLibCheck": true,
    "strict": true,
    "noEmit": true,
    "esModuleInterop": true,
    "module": "esnext",
    "moduleResolution": "bundler",
    "resolveJsonModule": true,
    "isolatedModules": true,
    "jsx": "preserve",
    "incremental": true,
    "plugins": [{ "name": "next" }],
    "paths": { "@/*": ["./*"] }
  },
  "include": ["next-env.d.ts", "**/*.ts", "**/*.tsx", ".next/types/**/*.ts"],
  "exclude": ["node_modules"]
}
`

const nextConfig = `/** @type {import('next').NextConfig} */
const nextConfig = {};

export default nextConfig;
`

// PostCSSConfig is exported because the repair loop rewrites the
// project's copy when it recognizes the Tailwind plugin mismatch.
const PostCSSConfig = `const config = {
  plugins: ["@tailwindcss/postcss"]
};

export default config;
`

const globalsCSS = `@import "tailwindcss";

:root {
  --background: #ffffff;
  --foreground: #171717;
}

body {
  background: var(--background);
  color: var(--foreground);
}
`

const rootLayout = `import type { Metadata } from "next";
import "./globals.css";

export const metadata: Metadata = {
  title: "Generated App",
  description: "Synthesized project"
};

export default function RootLayout({
  children
}: Readonly<{
  children: React.ReactNode;
}>) {
  return (
    <html lang="en">
      <body className="antialiased">{children}</body>
    </html>
  );
}
`

const indexPage = `export default function Home() {
  return (
    <main className="flex min-h-screen flex-col items-center justify-center p-24">
      <h1 className="text-4xl font-bold">Generated project</h1>
      <p className="mt-4 text-gray-500">Content will appear here after synthesis.</p>
    </main>
  );
}
`

const gitignore = `node_modules
.next
out
*.log
.env*.local
`

// requiredPaths is the set every assembled project must contain. The
// assembler falls back to the template copy for any of these the
// pipeline did not produce.
var requiredPaths = []string{
	"package.json",
	"tsconfig.json",
	"next.config.mjs",
	"postcss.config.mjs",
	"app/layout.tsx",
	"app/page.tsx",
	"app/globals.css",
}

// Files returns a fresh copy of the full boilerplate file set.
// Callers may mutate the returned map freely.
func Files() map[string]string {
	return map[string]string{
		"package.json":       packageJSON,
		"tsconfig.json":      tsconfigJSON,
		"next.config.mjs":    nextConfig,
		"postcss.config.mjs": PostCSSConfig,
		"app/layout.tsx":     rootLayout,
		"app/page.tsx":       indexPage,
		"app/globals.css":    globalsCSS,
		".gitignore":         gitignore,
	}
}

// RequiredPaths returns the paths guaranteed to exist in every
// assembled project.
func RequiredPaths() []string {
	out := make([]string, len(requiredPaths))
	copy(out, requiredPaths)
	return out
}

// Lookup returns the template content for one path.
func Lookup(path string) (string, bool) {
	content, ok := Files()[path]
	return content, ok
}

// IsRequired reports whether the path belongs to the required set.
func IsRequired(path string) bool {
	for _, p := range requiredPaths {
		if p == path {
			return true
		}
	}
	return false
}

// Assemble merges the template with generated files. Generated content
// wins on path collision; every required path is present in the result
// because the merge starts from the full template set.
func Assemble(generated map[string]string) map[string]string {
	out := Files()
	for path, content := range generated {
		out[path] = content
	}
	return out
}
