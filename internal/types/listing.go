package types

// ListingRecord is one harvested item as supplied by the provider.
// No schema is enforced; fields are read through the accessors in package listing.
type ListingRecord map[string]any

// VideoRef is one downloadable media asset belonging to a listing record.
type VideoRef struct {
	URL         string `json:"url"`
	ID          string `json:"id"`
	PublishTime any    `json:"publishTime,omitempty"`
}

// Row is one result row rendered by the host page, in display order.
type Row struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	RowKey string `json:"rowKey,omitempty"`
}
