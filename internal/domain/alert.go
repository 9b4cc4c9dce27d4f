package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AlertState is the overall evaluation outcome of an alert or one of its groups.
// Params: OK/ALERT state constants.
// Returns: state values for history rows and cached alert state.
type AlertState string

const (
	// AlertStateOK indicates no evaluated bucket in the trailing window breached.
	AlertStateOK AlertState = "OK"
	// AlertStateAlert indicates at least one evaluated bucket breached.
	AlertStateAlert AlertState = "ALERT"
)

// ComparisonMode selects the threshold predicate direction.
// Params: ABOVE/BELOW mode constants.
// Returns: comparison mode used by threshold evaluation.
type ComparisonMode string

const (
	// ComparisonAbove breaches when the observed value is >= threshold.
	ComparisonAbove ComparisonMode = "ABOVE"
	// ComparisonBelow breaches when the observed value is < threshold.
	ComparisonBelow ComparisonMode = "BELOW"
)

// DetailKind discriminates the alert detail variant.
// Params: saved-search/tile kind constants.
// Returns: discriminant for the AlertDetails sum type.
type DetailKind string

const (
	// DetailKindSavedSearch marks an alert evaluated from a saved search.
	DetailKindSavedSearch DetailKind = "saved_search"
	// DetailKindTile marks an alert evaluated from a dashboard tile.
	DetailKindTile DetailKind = "tile"
)

// SavedSearchDetails references the saved search an alert evaluates.
// Params: search identity and its raw query string.
// Returns: source metadata for deep links and template context.
type SavedSearchDetails struct {
	SearchID string `json:"search_id"`
	Query    string `json:"query"`
}

// TileDetails references the dashboard tile an alert evaluates.
// Params: dashboard and tile identities.
// Returns: source metadata for deep links and template context.
type TileDetails struct {
	DashboardID string `json:"dashboard_id"`
	TileID      string `json:"tile_id"`
}

// AlertDetails is the tagged variant over saved-search and tile sources.
// Params: Kind selects exactly one populated payload.
// Returns: strict sum type consumed exhaustively by link building and templates.
type AlertDetails struct {
	Kind        DetailKind          `json:"kind"`
	SavedSearch *SavedSearchDetails `json:"saved_search,omitempty"`
	Tile        *TileDetails        `json:"tile,omitempty"`
}

// Validate validates the detail variant contract.
// Params: discriminant and one payload among the variants.
// Returns: validation error when the variant is inconsistent.
func (d AlertDetails) Validate() error {
	switch d.Kind {
	case DetailKindSavedSearch:
		if d.SavedSearch == nil {
			return errors.New("saved_search payload is required for kind=saved_search")
		}
		if d.Tile != nil {
			return errors.New("only saved_search must be set for kind=saved_search")
		}
	case DetailKindTile:
		if d.Tile == nil {
			return errors.New("tile payload is required for kind=tile")
		}
		if d.SavedSearch != nil {
			return errors.New("only tile must be set for kind=tile")
		}
	default:
		return fmt.Errorf("unsupported detail kind %q", d.Kind)
	}
	return nil
}

// QueryDescriptor identifies the query evaluated against the data source.
// Params: opaque source reference and filter expression.
// Returns: descriptor passed verbatim to the DataSource collaborator.
type QueryDescriptor struct {
	SourceID string `json:"source_id"`
	Query    string `json:"query"`
}

// Alert is one monitoring rule evaluated by the engine.
// Params: identity, threshold predicate, interval, grouping, source, and
// notification settings.
// Returns: validated alert definition; State is mutated only by the evaluator.
type Alert struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Mode       ComparisonMode    `json:"mode"`
	Threshold  float64           `json:"threshold"`
	Interval   time.Duration     `json:"interval"`
	GroupBy    []string          `json:"group_by,omitempty"`
	Query      QueryDescriptor   `json:"query"`
	Details    AlertDetails      `json:"details"`
	ChannelRef string            `json:"channel_ref,omitempty"`
	Message    string            `json:"message,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	State      AlertState        `json:"state"`
}

// Grouped reports whether the alert carries a group-by expression.
// Params: none.
// Returns: true when at least one group-by dimension is set.
func (a Alert) Grouped() bool {
	return len(a.GroupBy) > 0
}

// Validate validates the alert configuration before any evaluation work.
// Params: alert fields loaded from config or store.
// Returns: validation error; a failing alert is skipped without fetching data.
func (a Alert) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("alert id is required")
	}
	switch a.Mode {
	case ComparisonAbove, ComparisonBelow:
	default:
		return fmt.Errorf("unsupported comparison mode %q", a.Mode)
	}
	if a.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", a.Interval)
	}
	for _, dim := range a.GroupBy {
		if strings.TrimSpace(dim) == "" {
			return errors.New("group_by dimensions must be non-empty")
		}
	}
	if err := a.Details.Validate(); err != nil {
		return fmt.Errorf("details: %w", err)
	}
	return nil
}
