package station

// Status is one snapshot of the station as reported by the status endpoint.
// A Status is never modified after it is built; refreshes replace it whole.
type Status struct {
	Title     string `json:"title"`
	Listeners int    `json:"listeners"`

	Genre       string `json:"genre,omitempty"`
	BitrateKbps *int   `json:"bitrate_kbps,omitempty"`

	Admin              string `json:"admin,omitempty"`
	Host               string `json:"host,omitempty"`
	ServerID           string `json:"server_id,omitempty"`
	ServerStart        string `json:"server_start,omitempty"`
	StreamStart        string `json:"stream_start,omitempty"`
	ListenURL          string `json:"listenurl,omitempty"`
	ServerName         string `json:"server_name,omitempty"`
	ServerDescription  string `json:"server_description,omitempty"`
	ServerURL          string `json:"server_url,omitempty"`
	ServerType         string `json:"server_type,omitempty"`
	ListenerPeak       *int   `json:"listener_peak,omitempty"`
	YPCurrentlyPlaying string `json:"yp_currently_playing,omitempty"`

	// FetchFailed is set when the last refresh did not produce a status. Title
	// and Listeners then hold the fallback values, not the last known ones.
	FetchFailed bool `json:"fetch_failed"`
}

// Fallback returns the status used before the first fetch and after any
// failed one.
func Fallback(stationName string) Status {
	return Status{
		Title:       stationName,
		FetchFailed: true,
	}
}
