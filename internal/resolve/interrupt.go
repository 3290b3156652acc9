package resolve

// PlaybackState is the player-side snapshot consulted before swapping a
// live audio source for a freshly resolved URL.
type PlaybackState struct {
	HasError        bool    `json:"hasError"`
	NetworkEmpty    bool    `json:"networkEmpty"` // no buffered data at all
	PositionSeconds float64 `json:"position"`
	ForceRefresh    bool    `json:"forceRefresh"`
}

// ShouldSwapSource reports whether a new URL may interrupt current playback.
// Healthy playback past the first seconds keeps its source; swapping then
// would audibly restart the track for no benefit.
func ShouldSwapSource(st PlaybackState) bool {
	return st.HasError || st.NetworkEmpty || st.PositionSeconds < 3 || st.ForceRefresh
}
