package notify

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"alerteval/internal/domain"
	"alerteval/internal/engine"
	"alerteval/internal/source"
	"alerteval/internal/template"
)

// Message is the rendered notification content handed to a channel sender.
// Params: computed title/link/summary lines, evaluated range, rendered body,
// and the template context for fully user-templated channels.
// Returns: channel-independent payload; senders shape it per transport.
type Message struct {
	Title      string
	Link       string
	GroupLabel string
	Grouped    bool
	Summary    string
	Range      source.TimeRange
	Body       string
	Context    template.Value
}

// BuildLink builds the deep link into the alert's source view.
// Params: UI base URL, detail variant, and evaluated time range.
// Returns: dashboard or search URL scoped to the range; both variants of the
// detail sum type are matched exhaustively.
func BuildLink(baseURL string, details domain.AlertDetails, rng source.TimeRange) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return ""
	}
	from := strconv.FormatInt(rng.Start.UnixMilli(), 10)
	to := strconv.FormatInt(rng.End.UnixMilli(), 10)

	switch details.Kind {
	case domain.DetailKindSavedSearch:
		if details.SavedSearch == nil {
			return ""
		}
		return base + "/search?query=" + url.QueryEscape(details.SavedSearch.Query) + "&from=" + from + "&to=" + to
	case domain.DetailKindTile:
		if details.Tile == nil {
			return ""
		}
		return base + "/dashboards/" + url.PathEscape(details.Tile.DashboardID) + "?tile=" + url.QueryEscape(details.Tile.TileID) + "&from=" + from + "&to=" + to
	default:
		return ""
	}
}

// BreachSummary renders the human-readable threshold line.
// Params: alert settings and the newest bucket's observed value.
// Returns: line-count phrasing for saved-search alerts and value phrasing for
// tile alerts.
func BreachSummary(alert domain.Alert, observed float64) string {
	value := formatValue(observed)
	threshold := formatValue(alert.Threshold)

	if alert.Details.Kind == domain.DetailKindSavedSearch {
		if alert.Mode == domain.ComparisonBelow {
			return fmt.Sprintf("%s lines found, expected at least %s lines", value, threshold)
		}
		return fmt.Sprintf("%s lines found, expected less than %s lines", value, threshold)
	}
	if alert.Mode == domain.ComparisonBelow {
		return fmt.Sprintf("%s is below %s", value, threshold)
	}
	return fmt.Sprintf("%s exceeds %s", value, threshold)
}

// BuildTitle computes the notification title for one notice.
// Params: notice with alert name and resolution flag.
// Returns: status-prefixed title line.
func BuildTitle(notice engine.Notice) string {
	if notice.Resolved {
		return fmt.Sprintf("[OK] %s (resolved)", notice.Alert.Name)
	}
	return fmt.Sprintf("[%s] %s", notice.Result.State, notice.Alert.Name)
}

// BuildMessage assembles the channel-independent message for one notice.
// Params: notice from the evaluator and the UI base URL.
// Returns: message with computed lines and the template context; the alert's
// free-form body is not yet rendered (the dispatcher renders it against the
// channel registry).
func BuildMessage(notice engine.Notice, baseURL string) Message {
	title := BuildTitle(notice)
	link := BuildLink(baseURL, notice.Alert.Details, notice.Range)
	observed := newestValue(notice.Result)

	return Message{
		Title:      title,
		Link:       link,
		GroupLabel: notice.Result.Group.Label(),
		Grouped:    notice.Alert.Grouped(),
		Summary:    BreachSummary(notice.Alert, observed),
		Range:      notice.Range,
		Context:    BuildContext(notice, title, link, observed),
	}
}

// BuildContext assembles the typed template context for one notice.
// Params: notice, computed title/link, and newest observed value.
// Returns: context tree with alert/query/source metadata, computed fields, and
// user attributes merged at the root (built-ins win on key collisions).
func BuildContext(notice engine.Notice, title, link string, observed float64) template.Value {
	alert := notice.Alert

	root := map[string]template.Value{
		"title":        template.String(title),
		"link":         template.String(link),
		"group":        template.String(notice.Result.Group.Label()),
		"value":        template.Number(observed),
		"breach_count": template.Number(float64(notice.Result.BreachCount)),
		"resolved":     template.Boolean(notice.Resolved),
		"alert": template.Tree(map[string]template.Value{
			"id":        template.String(alert.ID),
			"name":      template.String(alert.Name),
			"mode":      template.String(string(alert.Mode)),
			"threshold": template.Number(alert.Threshold),
			"state":     template.String(string(notice.Result.State)),
		}),
		"query": template.Tree(map[string]template.Value{
			"source_id": template.String(alert.Query.SourceID),
			"query":     template.String(alert.Query.Query),
		}),
	}

	switch alert.Details.Kind {
	case domain.DetailKindSavedSearch:
		if alert.Details.SavedSearch != nil {
			root["search"] = template.Tree(map[string]template.Value{
				"id":    template.String(alert.Details.SavedSearch.SearchID),
				"query": template.String(alert.Details.SavedSearch.Query),
			})
		}
	case domain.DetailKindTile:
		if alert.Details.Tile != nil {
			root["dashboard"] = template.Tree(map[string]template.Value{
				"id":   template.String(alert.Details.Tile.DashboardID),
				"tile": template.String(alert.Details.Tile.TileID),
			})
		}
	}

	for key, value := range alert.Attributes {
		if _, taken := root[key]; taken {
			continue
		}
		root[key] = template.String(value)
	}
	return template.Tree(root)
}

// ChatText renders the chat-style block layout for one message.
// Params: assembled message.
// Returns: HTML-formatted chat text: linked title, optional group label,
// breach summary, time range, and the free-form body in a fenced block.
func ChatText(msg Message) string {
	var b strings.Builder
	if msg.Link != "" {
		b.WriteString(`<b><a href="` + msg.Link + `">` + msg.Title + `</a></b>`)
	} else {
		b.WriteString("<b>" + msg.Title + "</b>")
	}
	b.WriteByte('\n')

	if msg.Grouped && msg.GroupLabel != "" {
		b.WriteString("Group: " + msg.GroupLabel + "\n")
	}
	b.WriteString(msg.Summary + "\n")
	b.WriteString(formatRange(msg.Range) + "\n")

	if msg.Body != "" {
		b.WriteString("<pre>" + msg.Body + "</pre>")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatRange renders the evaluated time range line.
// Params: half-open evaluated range.
// Returns: "from <start> to <end> UTC" line.
func formatRange(rng source.TimeRange) string {
	layout := "2006-01-02 15:04"
	return "from " + rng.Start.UTC().Format(layout) + " to " + rng.End.UTC().Format(layout) + " UTC"
}

// newestValue returns the most recent bucket's observed value.
// Params: finalized group result.
// Returns: last trailing observation or 0 when empty.
func newestValue(result engine.GroupResult) float64 {
	if len(result.LastValues) == 0 {
		return 0
	}
	return result.LastValues[len(result.LastValues)-1].Value
}

// formatValue formats one observed/threshold value compactly.
// Params: float value.
// Returns: trailing-zero-free decimal string.
func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
