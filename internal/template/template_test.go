package template

import (
	"strings"
	"testing"
)

type mapResolver struct {
	channels map[string]string
}

func (r mapResolver) Resolve(_, identifier string) (Target, bool) {
	name, ok := r.channels[strings.ToLower(identifier)]
	if !ok {
		return Target{}, false
	}
	return Target{Kind: "channel", Name: name}, true
}

func testContext() Value {
	return Tree(map[string]Value{
		"title": String("error spike"),
		"value": Number(42),
		"alert": Tree(map[string]Value{
			"name":  String("errors"),
			"state": String("ALERT"),
		}),
		"resolved": Boolean(false),
	})
}

func TestTranslateShorthandBasic(t *testing.T) {
	t.Parallel()

	got := TranslateShorthand("notify @webhook-My_Web now")
	want := `notify {{__notify_channel__ channel="webhook" id="My_Web"}} now`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTranslateShorthandKeepsEmbeddedAtSign(t *testing.T) {
	t.Parallel()

	got := TranslateShorthand("cc @email-mike@domain.io")
	want := `cc {{__notify_channel__ channel="email" id="mike@domain.io"}}`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTranslateShorthandKeepsTemplateExpressions(t *testing.T) {
	t.Parallel()

	got := TranslateShorthand("ping @slack-{{alert.name}}")
	want := `ping {{__notify_channel__ channel="slack" id="{{alert.name}}"}}`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTranslateShorthandStopsAtPunctuation(t *testing.T) {
	t.Parallel()

	got := TranslateShorthand("ping @slack-ops, thanks")
	want := `ping {{__notify_channel__ channel="slack" id="ops"}}, thanks`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRenderShorthandKeepsTrailingPunctuation(t *testing.T) {
	t.Parallel()

	resolver := mapResolver{channels: map[string]string{"ops": "Ops_Alerts"}}
	got, targets := Render("ping @slack-ops, thanks", testContext(), resolver)
	if got != "ping @slack-ops, thanks" {
		t.Fatalf("unexpected render output %q", got)
	}
	if len(targets) != 1 || targets[0].Name != "Ops_Alerts" {
		t.Fatalf("expected one resolved target, got %+v", targets)
	}
}

func TestRenderVariableInterpolation(t *testing.T) {
	t.Parallel()

	got, _ := Render("{{title}}: {{alert.state}} at {{value}}", testContext(), nil)
	if got != "error spike: ALERT at 42" {
		t.Fatalf("unexpected render output %q", got)
	}
}

func TestRenderUnknownVariableIsEmpty(t *testing.T) {
	t.Parallel()

	got, _ := Render("before {{alert.missing}} after", testContext(), nil)
	if got != "before  after" {
		t.Fatalf("expected unknown variable to render empty, got %q", got)
	}
}

func TestRenderIsMatchIncludesOnExactMatch(t *testing.T) {
	t.Parallel()

	raw := `{{#is_match "alert.state" "ALERT"}}firing {{alert.name}}{{/is_match}}`
	got, _ := Render(raw, testContext(), nil)
	if got != "firing errors" {
		t.Fatalf("expected matched block content, got %q", got)
	}
}

func TestRenderIsMatchDropsOnMismatch(t *testing.T) {
	t.Parallel()

	raw := `always{{#is_match "alert.state" "OK"}} hidden{{/is_match}}`
	got, _ := Render(raw, testContext(), nil)
	if got != "always" {
		t.Fatalf("expected unmatched block removed, got %q", got)
	}
}

func TestRenderResolvedTargetKeepsMention(t *testing.T) {
	t.Parallel()

	resolver := mapResolver{channels: map[string]string{"my_web": "My_Webhook"}}
	got, targets := Render("alerting @webhook-My_Web", testContext(), resolver)
	if got != "alerting @webhook-My_Web" {
		t.Fatalf("expected resolved mention rendered back, got %q", got)
	}
	if len(targets) != 1 || targets[0].Name != "My_Webhook" {
		t.Fatalf("expected one resolved target, got %+v", targets)
	}
}

func TestRenderUnresolvedTargetIsDropped(t *testing.T) {
	t.Parallel()

	resolver := mapResolver{channels: map[string]string{}}
	got, targets := Render("alerting @webhook-gone now", testContext(), resolver)
	if got != "alerting  now" {
		t.Fatalf("expected unresolved mention removed, got %q", got)
	}
	if len(targets) != 0 {
		t.Fatalf("expected no targets, got %+v", targets)
	}
}

func TestRenderInterpolatesIdentifierBeforeResolution(t *testing.T) {
	t.Parallel()

	resolver := mapResolver{channels: map[string]string{"errors": "errors-room"}}
	got, targets := Render("ping @slack-{{alert.name}}", testContext(), resolver)
	if got != "ping @slack-errors" {
		t.Fatalf("expected interpolated mention, got %q", got)
	}
	if len(targets) != 1 || targets[0].Name != "errors-room" {
		t.Fatalf("expected target resolved from interpolated id, got %+v", targets)
	}
}

func TestRenderDeduplicatesTargets(t *testing.T) {
	t.Parallel()

	resolver := mapResolver{channels: map[string]string{"ops": "ops"}}
	_, targets := Render("@slack-ops and again @slack-ops", testContext(), resolver)
	if len(targets) != 1 {
		t.Fatalf("expected duplicate mentions collapsed, got %+v", targets)
	}
}

func TestRenderNilResolverRemovesDirectives(t *testing.T) {
	t.Parallel()

	got, targets := Render("hi @webhook-ops", testContext(), nil)
	if got != "hi " {
		t.Fatalf("expected mention removed without a resolver, got %q", got)
	}
	if len(targets) != 0 {
		t.Fatalf("expected no targets without a resolver, got %+v", targets)
	}
}

func TestValueResolveAndText(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	if value, ok := ctx.Resolve("alert.name"); !ok || value.Text() != "errors" {
		t.Fatalf("expected alert.name to resolve, got %+v (ok=%v)", value, ok)
	}
	if value, ok := ctx.Resolve("value"); !ok || value.Text() != "42" {
		t.Fatalf("expected integral float without trailing zeros, got %+v (ok=%v)", value, ok)
	}
	if value, ok := ctx.Resolve("resolved"); !ok || value.Text() != "false" {
		t.Fatalf("expected boolean text, got %+v (ok=%v)", value, ok)
	}
	if _, ok := ctx.Resolve("alert.name.deeper"); ok {
		t.Fatalf("expected descending through a leaf to fail")
	}
	if _, ok := ctx.Resolve(""); ok {
		t.Fatalf("expected empty path to fail")
	}
}
