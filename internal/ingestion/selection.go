package ingestion

// ChannelSelection picks which channels an ingestion run covers
type ChannelSelection interface {
	selection()
}

// AutoSelect discovers channels per product and keeps the top Limit of
// each platform's ranking. The chosen channels are persisted.
type AutoSelect struct {
	Limit int
}

// ExplicitChannels ingests exactly the listed channel ids on one platform,
// skipping discovery.
type ExplicitChannels struct {
	Platform string
	IDs      []string
}

func (AutoSelect) selection()       {}
func (ExplicitChannels) selection() {}
