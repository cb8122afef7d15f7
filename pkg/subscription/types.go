package subscription

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// Status represents the stored state of a subscription. Grace period and
// expiry are derived from timestamps at read time; only the renewal flow and
// explicit cancellation rewrite the stored value.
type Status string

const (
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusGrace     Status = "grace_period"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// liveStatuses are the states in which a tenant is considered to hold a
// current subscription. At most one record per tenant may be in one of them.
var liveStatuses = []Status{StatusTrialing, StatusActive, StatusGrace}

// IsLive reports whether s counts against the one-live-record-per-tenant rule.
func (s Status) IsLive() bool {
	for _, live := range liveStatuses {
		if s == live {
			return true
		}
	}
	return false
}

// Money is a monetary amount in the smallest currency unit.
// $10.99 USD is Money{Amount: 1099, Currency: "USD"}.
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// String renders the amount for user-facing output, e.g. "$10.99".
// Unknown currencies fall back to "<amount> <code>".
func (m Money) String() string {
	major := float64(m.Amount) / 100
	p := message.NewPrinter(language.English)
	switch m.Currency {
	case "USD":
		return p.Sprintf("$%.2f", major)
	case "EUR":
		return p.Sprintf("€%.2f", major)
	case "BDT":
		return p.Sprintf("৳%.2f", major)
	default:
		return p.Sprintf("%.2f %s", major, m.Currency)
	}
}

// FeatureKind tags the concrete type held by a FeatureValue.
type FeatureKind int

const (
	FeatureBool FeatureKind = iota
	FeatureNumber
	FeatureString
	FeatureList
)

// Unlimited marks a numeric feature with no cap (-1 for SQL compatibility).
const Unlimited int64 = -1

// FeatureValue is the tagged union behind a plan's heterogeneous feature map:
// a feature may be a toggle, a numeric limit (or "unlimited"), a string
// setting, or a list. Legacy plan documents carry all four shapes, so the
// union is normalized once at the catalog boundary and business logic never
// branches on raw payload shapes.
type FeatureValue struct {
	kind FeatureKind
	b    bool
	n    int64
	s    string
	list []string
}

func BoolFeature(v bool) FeatureValue      { return FeatureValue{kind: FeatureBool, b: v} }
func NumberFeature(v int64) FeatureValue   { return FeatureValue{kind: FeatureNumber, n: v} }
func UnlimitedFeature() FeatureValue       { return FeatureValue{kind: FeatureNumber, n: Unlimited} }
func StringFeature(v string) FeatureValue  { return FeatureValue{kind: FeatureString, s: v} }
func ListFeature(v ...string) FeatureValue { return FeatureValue{kind: FeatureList, list: v} }

// Kind returns the tag of the union.
func (v FeatureValue) Kind() FeatureKind { return v.kind }

// Enabled reports whether the feature grants anything at all: true toggles,
// non-zero limits, non-empty strings and lists.
func (v FeatureValue) Enabled() bool {
	switch v.kind {
	case FeatureBool:
		return v.b
	case FeatureNumber:
		return v.n == Unlimited || v.n > 0
	case FeatureString:
		return v.s != ""
	case FeatureList:
		return len(v.list) > 0
	}
	return false
}

// Limit returns the numeric cap and true for numeric features.
func (v FeatureValue) Limit() (int64, bool) {
	if v.kind != FeatureNumber {
		return 0, false
	}
	return v.n, true
}

// Text returns the string value and true for string features.
func (v FeatureValue) Text() (string, bool) {
	if v.kind != FeatureString {
		return "", false
	}
	return v.s, true
}

// List returns the list value and true for list features.
func (v FeatureValue) List() ([]string, bool) {
	if v.kind != FeatureList {
		return nil, false
	}
	return v.list, true
}

// UnmarshalYAML normalizes the loose YAML shapes into the union:
// booleans, integers, the string "unlimited", other strings, and sequences.
func (v *FeatureValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*v = ListFeature(list...)
		return nil
	case yaml.ScalarNode:
		var b bool
		if err := node.Decode(&b); err == nil && (node.Value == "true" || node.Value == "false") {
			*v = BoolFeature(b)
			return nil
		}
		var n int64
		if err := node.Decode(&n); err == nil {
			*v = NumberFeature(n)
			return nil
		}
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s == "unlimited" {
			*v = UnlimitedFeature()
			return nil
		}
		*v = StringFeature(s)
		return nil
	}
	return fmt.Errorf("unsupported feature value shape at line %d", node.Line)
}
