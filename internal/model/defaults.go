package model

// DefaultConfigurations returns the built-in cycle configurations every
// session starts with. They are immutable from the user's perspective and
// are never pushed to the server.
func DefaultConfigurations() []Configuration {
	return []Configuration{
		{
			ID:   "classic-pomodoro",
			Name: "Classic Pomodoro",
			Kind: KindDefault,
			Cycles: []Cycle{
				{ID: "classic-1", Label: "Focus", Duration: 25 * 60, Note: "Time to concentrate!"},
				{ID: "classic-2", Label: "Short Break", Duration: 5 * 60, Note: "Take a quick breather."},
				{ID: "classic-3", Label: "Focus", Duration: 25 * 60, Note: "Back to work!"},
				{ID: "classic-4", Label: "Short Break", Duration: 5 * 60, Note: "Another short break."},
				{ID: "classic-5", Label: "Focus", Duration: 25 * 60, Note: "Keep pushing!"},
				{ID: "classic-6", Label: "Short Break", Duration: 5 * 60, Note: "Almost there!"},
				{ID: "classic-7", Label: "Focus", Duration: 25 * 60, Note: "Final stretch!"},
				{ID: "classic-8", Label: "Long Break", Duration: 25 * 60, Note: "You've earned a longer break!"},
			},
		},
		{
			ID:   "52-17-focus",
			Name: "52/17 Focus",
			Kind: KindDefault,
			Cycles: []Cycle{
				{ID: "52-17-1", Label: "Focus", Duration: 52 * 60, Note: "Extended focus period."},
				{ID: "52-17-2", Label: "Break", Duration: 17 * 60, Note: "Longer break to recharge."},
				{ID: "52-17-3", Label: "Focus", Duration: 52 * 60, Note: "Back to deep work."},
				{ID: "52-17-4", Label: "Break", Duration: 17 * 60, Note: "Another refreshing break."},
				{ID: "52-17-5", Label: "Focus", Duration: 52 * 60, Note: "Last focus session."},
				{ID: "52-17-6", Label: "Long Break", Duration: 25 * 60, Note: "Extended break after productive work!"},
			},
		},
		{
			ID:   "90-minute-focus",
			Name: "90-Minute Deep Focus",
			Kind: KindDefault,
			Cycles: []Cycle{
				{ID: "90-1", Label: "Deep Focus", Duration: 90 * 60, Note: "Extended deep work session."},
				{ID: "90-2", Label: "Break", Duration: 20 * 60, Note: "Substantial break to recharge."},
				{ID: "90-3", Label: "Deep Focus", Duration: 90 * 60, Note: "Another round of deep work."},
				{ID: "90-4", Label: "Long Break", Duration: 35 * 60, Note: "Major break after intense focus!"},
			},
		},
	}
}

// DefaultQuickAccessIDs lists the configuration ids preselected for new
// accounts.
func DefaultQuickAccessIDs() []string {
	return []string{"classic-pomodoro", "52-17-focus", "90-minute-focus"}
}

// IsDefaultConfigID reports whether id names one of the built-ins.
func IsDefaultConfigID(id string) bool {
	switch id {
	case "classic-pomodoro", "52-17-focus", "90-minute-focus":
		return true
	}
	return false
}
