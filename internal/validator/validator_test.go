package validator

import (
	"reflect"
	"testing"
)

func TestValidateCleanProject(t *testing.T) {
	files := map[string]string{
		"app/page.tsx": `import Counter from '@/components/Counter';

export default function Home() {
  return <main><Counter /></main>;
}`,
		"components/Counter.tsx": `"use client";
import { useState } from 'react';

export default function Counter() {
  const [count, setCount] = useState(0);
  return <button onClick={() => setCount(count + 1)}>{count}</button>;
}`,
	}

	report := Validate(files)
	if !report.Valid {
		t.Errorf("expected valid report, got errors: %v", report.Errors)
	}
	if report.Render() != "" {
		t.Errorf("valid report should render empty, got %q", report.Render())
	}
}

func TestValidateErrorKinds(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  []Error
	}{
		{
			name: "unresolved path",
			files: map[string]string{
				"app/page.tsx": `import Gone from './Missing';
export default function P() { return <Gone />; }`,
			},
			want: []Error{
				{File: "app/page.tsx", Target: "./Missing", Kind: UnresolvedPath},
			},
		},
		{
			name: "missing default export",
			files: map[string]string{
				"app/page.tsx": `import Util from '@/lib/util';
export default function P() { return <div>{Util()}</div>; }`,
				"lib/util.ts": `export function util() { return 1; }`,
			},
			want: []Error{
				{File: "app/page.tsx", Target: "@/lib/util", Kind: MissingDefaultExport},
			},
		},
		{
			name: "missing named export",
			files: map[string]string{
				"app/page.tsx": `import { formatDate } from '@/lib/dates';
export default function P() { return <div>{formatDate()}</div>; }`,
				"lib/dates.ts": `export function parseDate() { return null; }`,
			},
			want: []Error{
				{File: "app/page.tsx", Target: "@/lib/dates", Symbol: "formatDate", Kind: MissingNamedExport},
			},
		},
		{
			name: "aliased import checks source name",
			files: map[string]string{
				"app/page.tsx": `import { format as fmt } from '@/lib/dates';
export default function P() { return <div>{fmt()}</div>; }`,
				"lib/dates.ts": `export function format() { return ''; }`,
			},
			want: nil,
		},
		{
			name: "bare specifiers skipped",
			files: map[string]string{
				"app/page.tsx": `import React from 'react';
import Link from 'next/link';
export default function P() { return <Link href="/" />; }`,
			},
			want: nil,
		},
		{
			name: "stylesheet resolves by existence",
			files: map[string]string{
				"app/layout.tsx": `import './globals.css';
export default function L({ children }: { children: React.ReactNode }) { return <html><body>{children}</body></html>; }`,
				"app/globals.css": `@import "tailwindcss";`,
			},
			want: nil,
		},
		{
			name: "missing stylesheet",
			files: map[string]string{
				"app/layout.tsx": `import './globals.css';
export default function L() { return <html />; }`,
			},
			want: []Error{
				{File: "app/layout.tsx", Target: "./globals.css", Kind: UnresolvedPath},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Validate(tt.files)
			if !reflect.DeepEqual(report.Errors, tt.want) {
				t.Errorf("Errors = %+v, want %+v", report.Errors, tt.want)
			}
			if report.Valid != (len(tt.want) == 0) {
				t.Errorf("Valid = %v with %d expected errors", report.Valid, len(tt.want))
			}
		})
	}
}

// TestValidateContextTriple covers the partially-exported shared-state
// case: only symbols actually referenced elsewhere produce errors, not
// every omitted binding.
func TestValidateContextTriple(t *testing.T) {
	files := map[string]string{
		"context/CartContext.tsx": `"use client";
import { createContext } from 'react';

export const CartContext = createContext(null);`,
		"app/cart/page.tsx": `import { useCart } from '@/context/CartContext';

export default function CartPage() {
  const cart = useCart();
  return <div>{cart.items.length}</div>;
}`,
	}

	report := Validate(files)
	if len(report.Errors) != 1 {
		t.Fatalf("got %d errors, want exactly 1: %+v", len(report.Errors), report.Errors)
	}

	e := report.Errors[0]
	if e.Kind != MissingNamedExport || e.Symbol != "useCart" {
		t.Errorf("error = %+v, want missing-named-export for useCart", e)
	}
	// CartProvider is also missing from the context file, but nothing
	// references it, so it must not be reported.
	for _, err := range report.Errors {
		if err.Symbol == "CartProvider" {
			t.Error("unreferenced omission reported")
		}
	}
}

func TestValidateResolutionOrder(t *testing.T) {
	// Both Button.tsx and Button/index.tsx exist: the extension match
	// must win over the index match.
	files := map[string]string{
		"app/page.tsx": `import Button from '@/components/Button';
export default function P() { return <Button />; }`,
		"components/Button.tsx":       `export function helper() {}`,
		"components/Button/index.tsx": `export default function Button() { return <button />; }`,
	}

	report := Validate(files)
	if len(report.Errors) != 1 || report.Errors[0].Kind != MissingDefaultExport {
		t.Errorf("extension match should win over index match, got %+v", report.Errors)
	}
}

func TestValidateIndexResolution(t *testing.T) {
	files := map[string]string{
		"app/page.tsx": `import { Button } from '@/components';
export default function P() { return <Button />; }`,
		"components/index.ts": `export { Button } from './Button';`,
		"components/Button.tsx": `"use client";
export function Button() { return <button />; }`,
	}

	report := Validate(files)
	if !report.Valid {
		t.Errorf("index re-export chain should validate, got %+v", report.Errors)
	}
}

func TestValidateStarReExport(t *testing.T) {
	files := map[string]string{
		"app/page.tsx": `import { Badge } from '@/components';
export default function P() { return <Badge />; }`,
		"components/index.ts":  `export * from './Badge';`,
		"components/Badge.tsx": `export function Badge() { return <span />; }`,
	}

	report := Validate(files)
	if !report.Valid {
		t.Errorf("star re-export should expose Badge, got %+v", report.Errors)
	}
}

func TestValidateStarReExportCycle(t *testing.T) {
	files := map[string]string{
		"a.ts": `export * from './b';
export const fromA = 1;`,
		"b.ts": `export * from './a';
export const fromB = 2;`,
		"c.ts": `import { fromA, fromB } from './a';
export const both = fromA + fromB;`,
	}

	// Must terminate, and both symbols are reachable through the cycle.
	report := Validate(files)
	if !report.Valid {
		t.Errorf("cyclic star re-export mishandled: %+v", report.Errors)
	}
}

func TestValidateRelativeParent(t *testing.T) {
	files := map[string]string{
		"components/cart/Line.tsx": `import { totals } from '../../lib/totals';
export default function Line() { return <div>{totals()}</div>; }`,
		"lib/totals.ts": `export function totals() { return 0; }`,
	}

	if report := Validate(files); !report.Valid {
		t.Errorf("parent-relative import failed: %+v", report.Errors)
	}
}

func TestValidateEscapingImport(t *testing.T) {
	files := map[string]string{
		"app/page.tsx": `import x from '../../outside';
export default function P() { return <div />; }`,
	}

	report := Validate(files)
	if len(report.Errors) != 1 || report.Errors[0].Kind != UnresolvedPath {
		t.Errorf("root-escaping import should be unresolved, got %+v", report.Errors)
	}
}

// TestValidateIdempotent runs validation twice over the same state and
// requires byte-identical rendered reports.
func TestValidateIdempotent(t *testing.T) {
	files := map[string]string{
		"app/page.tsx": `import A from './A';
import { b } from './B';
import { c } from './C';
export default function P() { return <A />; }`,
		"app/B.tsx": `export default function B() { return <div />; }`,
		"app/C.tsx": `export const notC = 1;`,
	}

	first := Validate(files)
	second := Validate(files)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ across runs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if first.Render() != second.Render() {
		t.Error("rendered reports differ across runs")
	}
	if len(first.Errors) != 3 {
		t.Fatalf("got %d errors, want 3: %+v", len(first.Errors), first.Errors)
	}

	// Deterministic order: sorted by file, then target.
	if first.Errors[0].Target != "./A" || first.Errors[1].Target != "./B" || first.Errors[2].Target != "./C" {
		t.Errorf("error order not deterministic: %+v", first.Errors)
	}
}
