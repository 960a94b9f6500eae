package models

// DeploymentStatus aggregates the active installs of one definition, grouped
// by channel, version and install status. Pure read model - computing it never
// mutates state.
type DeploymentStatus struct {
	AppKey    string         `json:"app_key"`
	Total     int            `json:"total"`
	ByChannel map[string]int `json:"by_channel"`
	ByVersion map[string]int `json:"by_version"`
	ByStatus  map[string]int `json:"by_status"`
}
