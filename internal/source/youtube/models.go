package youtube

// SearchResponse is the subset of the search.list payload the adapter reads.
type SearchResponse struct {
	Items []SearchResult `json:"items"`
}

type SearchResult struct {
	ID      ResultID `json:"id"`
	Snippet Snippet  `json:"snippet"`
}

type ResultID struct {
	Kind    string `json:"kind"`
	VideoID string `json:"videoId"`
}

type Snippet struct {
	PublishedAt  string `json:"publishedAt"`
	ChannelID    string `json:"channelId"`
	Title        string `json:"title"`
	ChannelTitle string `json:"channelTitle"`
}
