package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/session"
	"github.com/nugget/errand/internal/undo"
)

// Preference keys the user can set.
const (
	PrefTimezone        = session.TimezoneKey
	PrefDigestTime      = "digest_time"
	PrefReviewDay       = "review_day"
	PrefReviewFrequency = "review_frequency"
	PrefDefaultContext  = "default_context"
)

// PreferenceKeys lists every settable preference.
var PreferenceKeys = []string{PrefTimezone, PrefDigestTime, PrefReviewDay, PrefReviewFrequency, PrefDefaultContext}

// NormalizePreference validates value for key and returns its canonical
// form.
func NormalizePreference(key, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch key {
	case PrefTimezone:
		loc, err := time.LoadLocation(value)
		if err != nil || value == "" {
			return "", fmt.Errorf("unknown timezone %q (use a name like America/New_York)", value)
		}
		return loc.String(), nil
	case PrefDigestTime:
		for _, layout := range []string{"15:04", "3:04pm", "3pm", "3:04 pm", "3 pm"} {
			if t, err := time.Parse(layout, strings.ToLower(value)); err == nil {
				return t.Format("15:04"), nil
			}
		}
		return "", fmt.Errorf("digest_time must be a time of day like 07:30")
	case PrefReviewDay:
		d, valid := gtd.ParseWeekday(value)
		if !valid {
			return "", fmt.Errorf("unknown day %q", value)
		}
		return d, nil
	case PrefReviewFrequency:
		f, valid := gtd.ParseFrequency(value)
		if !valid {
			return "", fmt.Errorf("frequency must be one of %s", strings.Join(enumOf(gtd.Frequencies), ", "))
		}
		return string(f), nil
	case PrefDefaultContext:
		c, valid := gtd.ParseContext(value)
		if !valid {
			return "", fmt.Errorf("context must be one of %s", strings.Join(enumOf(gtd.Contexts), ", "))
		}
		return string(c), nil
	default:
		return "", fmt.Errorf("unknown setting %q", key)
	}
}

func (r *Registry) registerPreferenceTools() {
	r.Register(&Tool{
		Name:        "set_preference",
		Kind:        KindAction,
		Description: "Change one of the user's settings.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key":   enumProp("Setting to change", PreferenceKeys),
				"value": stringProp("New value"),
			},
			"required": []string{"key", "value"},
		},
		Handler: r.handleSetPreference,
	})
}

func (r *Registry) handleSetPreference(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}
	if ec.Prefs == nil {
		return fail("settings are not available")
	}
	value, err := NormalizePreference(p.Key, p.Value)
	if err != nil {
		return fail("%v", err)
	}

	previous, existed, err := ec.Prefs.SetPreference(ctx, ec.UserID, p.Key, value)
	if err != nil {
		r.logger.Error("set preference failed", "user", ec.UserID, "key", p.Key, "error", err)
		return fail("could not save setting: storage error")
	}
	a := undo.RevertPreference(p.Key, previous, existed)
	res := ok(map[string]any{"key": p.Key, "value": value, "previous": previous})
	res.Undo = &a
	return res
}
