package event

// SpeedItem is the persisted form of one station sample in a speeds shard.
type SpeedItem struct {
	U            string   `json:"U,omitempty"`
	Provider     string   `json:"provider"`
	Station      string   `json:"station"`
	Client       string   `json:"client"`
	ResponseTime *float64 `json:"response_time"`
}
