package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
)

// DefaultEntryScene is the scene name synthesized when the incoming source
// declares no scene class of its own.
const DefaultEntryScene = "GenScene"

// sourceHeader is prepended when the snippet does not import the rendering
// primitives itself.
const sourceHeader = "from manim import *\nfrom math import *\n\n"

// fallbackMarker flags a source whose math markup was rewritten to plain text.
const fallbackMarker = "# Auto-modified: LaTeX unavailable, math markup rewritten as plain text\n"

const (
	IssueLatexFallback = "latex_fallback"
	IssueEscapeRepair  = "escape_repair"
)

var (
	// First class declaration extending a *Scene base.
	sceneClassRe = regexp.MustCompile(`(?m)^class\s+([A-Za-z_]\w*)\s*\(\s*[\w.]*Scene\s*\)\s*:`)

	// MathTex/Tex calls with a single simple string-literal argument. Only
	// these are rewritten; anything fancier is left for the renderer to
	// reject with a classifiable error.
	mathCallRe = regexp.MustCompile(`\b(?:MathTex|Tex)\(\s*[rRbBuUfF]{0,2}("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')\s*\)`)

	// MathTex/Tex argument lists without nested parentheses, used to scope
	// the escape repair so it cannot touch unrelated code.
	texCallArgsRe = regexp.MustCompile(`\b(?:MathTex|Tex)\(([^()]*)\)`)

	// String literals inside a Tex argument list.
	stringLiteralRe = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)

	// An approx token that lost its backslash somewhere upstream. RE2 has no
	// lookbehind, so the preceding character is captured and re-emitted.
	bareApproxRe = regexp.MustCompile(`(^|[^\\A-Za-z])approx\b`)

	// LaTeX command characters stripped when downgrading markup to plain text.
	texCommandRe = regexp.MustCompile(`\\([A-Za-z]+)`)
	texControlRe = regexp.MustCompile("[\\\\^{}$]")
)

// TransformIssue records one class of automatic rewrite applied to a source.
type TransformIssue struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// TransformResult is the outcome of normalizing one source snippet.
type TransformResult struct {
	FinalSource     string
	EntryIdentifier string
	AppliedFallback bool
	Issues          []TransformIssue
}

// SourceTransformer normalizes incoming scene source so the renderer always
// receives a structurally valid script with a known entry scene. None of its
// passes can fail; a pass that does not apply is a no-op.
type SourceTransformer struct {
	latexAvailable func(context.Context) bool
}

// NewSourceTransformer builds a transformer around a LaTeX availability
// probe. The probe is consulted once per Normalize call, uncached, so the
// answer tracks the live environment.
func NewSourceTransformer(latexProbe func(context.Context) bool) *SourceTransformer {
	return &SourceTransformer{latexAvailable: latexProbe}
}

// Normalize trims and repairs the snippet, resolves the entry scene
// (synthesizing a wrapper when none is declared), and downgrades math markup
// to plain text when the LaTeX toolchain is unavailable.
func (t *SourceTransformer) Normalize(ctx context.Context, source string) TransformResult {
	result := TransformResult{EntryIdentifier: DefaultEntryScene}

	src := strings.TrimSpace(source)

	if m := sceneClassRe.FindStringSubmatch(src); m != nil {
		result.EntryIdentifier = m[1]
	} else {
		src = wrapAsScene(src)
	}

	if !strings.HasPrefix(src, "from manim import") {
		src = sourceHeader + src
	}

	latexOK := t.latexAvailable(ctx)

	if !latexOK {
		src, result.Issues = rewriteMathCalls(src, result.Issues)
		if n := issueCount(result.Issues, IssueLatexFallback); n > 0 {
			result.AppliedFallback = true
			src = fallbackMarker + src
			log.Printf("[Transform] LaTeX unavailable, rewrote %d math call(s) as plain text", n)
		}
	}

	src, result.Issues = repairEscapes(src, result.Issues)

	result.FinalSource = src
	return result
}

// wrapAsScene indents the whole snippet as the construct body of a
// synthesized default scene. An empty snippet gets a pass statement so the
// wrapper is still a valid method body.
func wrapAsScene(src string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "class %s(Scene):\n", DefaultEntryScene)
	b.WriteString("    def construct(self):\n")
	if strings.TrimSpace(src) == "" {
		b.WriteString("        pass")
		return b.String()
	}
	for _, line := range strings.Split(src, "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("        ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// rewriteMathCalls substitutes Text(...) for MathTex/Tex calls, stripping
// markup control characters from the literal.
func rewriteMathCalls(src string, issues []TransformIssue) (string, []TransformIssue) {
	count := 0
	out := mathCallRe.ReplaceAllStringFunc(src, func(call string) string {
		m := mathCallRe.FindStringSubmatch(call)
		if m == nil {
			return call
		}
		count++
		return fmt.Sprintf("Text(%q)", plainText(m[1]))
	})

	if count > 0 {
		issues = append(issues, TransformIssue{Kind: IssueLatexFallback, Count: count})
	}
	return out, issues
}

// plainText strips quotes and LaTeX control characters from a string literal,
// keeping command words so the rendered text still reads sensibly.
func plainText(literal string) string {
	s := literal
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	s = texCommandRe.ReplaceAllString(s, "$1 ")
	s = texControlRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// repairEscapes fixes the known dropped-backslash corruption of the approx
// symbol. The repair only runs inside string literals of MathTex/Tex argument
// lists so it cannot corrupt unrelated source.
func repairEscapes(src string, issues []TransformIssue) (string, []TransformIssue) {
	count := 0
	out := texCallArgsRe.ReplaceAllStringFunc(src, func(call string) string {
		return stringLiteralRe.ReplaceAllStringFunc(call, func(lit string) string {
			// Some upstream string layers collapse "\a" into a BEL byte.
			fixed := strings.ReplaceAll(lit, "\x07pprox", `\approx`)
			if fixed != lit {
				count += strings.Count(lit, "\x07pprox")
			}
			before := fixed
			fixed = bareApproxRe.ReplaceAllString(fixed, `${1}\approx`)
			if fixed != before {
				count += len(bareApproxRe.FindAllString(before, -1))
			}
			return fixed
		})
	})

	if count > 0 {
		issues = append(issues, TransformIssue{Kind: IssueEscapeRepair, Count: count})
	}
	return out, issues
}

func issueCount(issues []TransformIssue, kind string) int {
	for _, issue := range issues {
		if issue.Kind == kind {
			return issue.Count
		}
	}
	return 0
}
