package turn

// DetectorConfig holds configuration for creating turn detectors.
type DetectorConfig struct {
	RemoteURL string  // remote inference endpoint; empty uses the heuristic only
	Threshold float64 // heuristic threshold; zero uses the default
}

// NewDetector returns a RemoteDetector backed by the heuristic when a remote
// URL is configured, otherwise the heuristic alone.
func NewDetector(config DetectorConfig) Detector {
	local := NewHeuristicDetector(config.Threshold)
	if config.RemoteURL != "" {
		return NewRemoteDetector(config.RemoteURL, local)
	}
	return local
}
