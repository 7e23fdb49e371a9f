package features

// State is the rendered state of a feature card.
type State string

const (
	StateAvailable  State = "available"
	StateComingSoon State = "coming_soon"
	StateUpgrade    State = "upgrade_required"
	StateDisabled   State = "disabled"
)

const defaultSoonLabel = "Coming soon"

// View is the presentation DTO produced for one feature.
type View struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	State       State  `json:"state"`
	Route       string `json:"route,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Present resolves a feature's variant into its view. Disabled features render as
// disabled regardless of variant.
func Present(f Feature) View {
	v := View{Key: f.Key, Name: f.Name, Description: f.Description}
	if !f.Enabled {
		v.State = StateDisabled
		v.Message = "This feature is currently unavailable."
		return v
	}
	switch f.Variant.Kind {
	case VariantLive:
		v.State = StateAvailable
		v.Route = f.Variant.Route
	case VariantPlaceholder:
		v.State = StateComingSoon
		v.Message = f.Variant.Message
		if v.Message == "" {
			v.Message = defaultSoonLabel
		}
	case VariantLocked:
		v.State = StateUpgrade
		v.Message = "Upgrade to the " + f.Variant.RequiredPlan + " plan to unlock " + f.Name + "."
		if f.Variant.Message != "" {
			v.Message = f.Variant.Message
		}
	default:
		v.State = StateDisabled
	}
	return v
}
