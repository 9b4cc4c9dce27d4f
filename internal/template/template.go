package template

import (
	"regexp"
	"strings"
)

var (
	shorthandPattern = regexp.MustCompile(`@((?:\{\{[^{}]+\}\}|[A-Za-z0-9_])+)-((?:\{\{[^{}]+\}\}|[A-Za-z0-9_@.-])+)`)
	isMatchPattern   = regexp.MustCompile(`(?s)\{\{#is_match\s+"([^"]+)"\s+"([^"]*)"\}\}(.*?)\{\{/is_match\}\}`)
	directivePattern = regexp.MustCompile(`\{\{__notify_channel__ channel="([^"]*)" id="([^"]*)"\}\}`)
	variablePattern  = regexp.MustCompile(`\{\{([A-Za-z0-9_][A-Za-z0-9_.]*)\}\}`)
)

// Target is one notification target referenced from alert text.
// Params: channel kind (text before the first dash) and resolved channel name.
// Returns: reference handed to the dispatcher for one extra send.
type Target struct {
	Kind string
	Name string
}

// TargetResolver maps one shorthand reference to a configured channel.
// Params: channel kind and rendered identifier.
// Returns: resolved target and true, or false when no channel matches.
type TargetResolver interface {
	Resolve(kind, identifier string) (Target, bool)
}

// TranslateShorthand rewrites @kind-identifier references into canonical
// notify directives ahead of rendering.
// Params: raw author template text.
// Returns: text with each shorthand replaced by
// {{__notify_channel__ channel="<kind>" id="<identifier>"}}; the kind is the
// text up to the first dash, the identifier keeps internal dashes, dots,
// embedded {{...}} expressions, and embedded @ signs verbatim. The identifier
// is limited to channel-name characters, so adjacent punctuation such as a
// trailing comma stays in the surrounding text.
func TranslateShorthand(raw string) string {
	return shorthandPattern.ReplaceAllString(raw, `{{__notify_channel__ channel="$1" id="$2"}}`)
}

// Render runs the full rendering pipeline over one template body.
// Params: raw author text, typed context tree, and optional target resolver.
// Returns: rendered text plus deduplicated resolved targets. Order: shorthand
// rewrite, is_match blocks, notify directives, variable interpolation.
// Unresolvable variables render empty; unresolvable targets are dropped
// silently since author text may reference channels that no longer exist.
func Render(raw string, ctx Value, resolver TargetResolver) (string, []Target) {
	text := TranslateShorthand(raw)
	text = renderIsMatch(text, ctx)
	text, targets := renderDirectives(text, ctx, resolver)
	text = interpolate(text, ctx)
	return text, targets
}

// renderIsMatch renders conditional blocks against the context.
// Params: text after shorthand rewrite and context tree.
// Returns: text with each block replaced by its content when the attribute
// equals the literal exactly, or removed entirely otherwise.
func renderIsMatch(text string, ctx Value) string {
	return isMatchPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := isMatchPattern.FindStringSubmatch(match)
		if parts == nil {
			return ""
		}
		value, ok := ctx.Resolve(parts[1])
		if !ok || value.Text() != parts[2] {
			return ""
		}
		return parts[3]
	})
}

// renderDirectives resolves canonical notify directives into targets.
// Params: text after block rendering, context tree, and target resolver.
// Returns: text with resolved directives rendered back as @kind-identifier and
// unresolved ones removed, plus the deduplicated target list. Identifiers are
// interpolated before resolution so they may embed template expressions.
func renderDirectives(text string, ctx Value, resolver TargetResolver) (string, []Target) {
	var targets []Target
	seen := make(map[Target]struct{})

	rendered := directivePattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := directivePattern.FindStringSubmatch(match)
		if parts == nil || resolver == nil {
			return ""
		}
		kind := parts[1]
		identifier := interpolate(parts[2], ctx)
		target, ok := resolver.Resolve(kind, identifier)
		if !ok {
			return ""
		}
		if _, dup := seen[target]; !dup {
			seen[target] = struct{}{}
			targets = append(targets, target)
		}
		return "@" + kind + "-" + identifier
	})
	return rendered, targets
}

// interpolate substitutes dotted-path variables against the context.
// Params: text and context tree.
// Returns: text with {{path}} replaced by the stringified value or empty
// string when the path does not resolve.
func interpolate(text string, ctx Value) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		path := match[2 : len(match)-2]
		value, ok := ctx.Resolve(path)
		if !ok {
			return ""
		}
		return value.Text()
	})
}
