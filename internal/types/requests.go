package types

// FetchItemsRequest asks for one page of a history's contents
type FetchItemsRequest struct {
	HistoryID   string `json:"history_id"`
	Offset      int    `json:"offset"`
	FilterText  string `json:"filter_text"`
	ShowDeleted bool   `json:"show_deleted"`
	ShowHidden  bool   `json:"show_hidden"`
}

// ItemsViewRequest selects the cached items to present
type ItemsViewRequest struct {
	HistoryID   string `json:"history_id"`
	FilterText  string `json:"filter_text"`
	ShowDeleted bool   `json:"show_deleted"`
	ShowHidden  bool   `json:"show_hidden"`
}

// HistoryQuery selects a page of histories
type HistoryQuery struct {
	Offset  int
	Limit   int
	Order   string
	View    string
	Filters map[string]string // q/qv pairs, emitted in key order
}

// CopyRequest is the payload for copying a history
type CopyRequest struct {
	HistoryID   string `json:"history_id"`
	Current     bool   `json:"current,omitempty"`
	Name        string `json:"name,omitempty"`
	AllDatasets *bool  `json:"all_datasets,omitempty"`
	View        string `json:"view,omitempty"`
}

// NewFetchItemsRequest creates a FetchItemsRequest for the first page of a history
func NewFetchItemsRequest(historyID, filterText string, showDeleted, showHidden bool) *FetchItemsRequest {
	return &FetchItemsRequest{
		HistoryID:   historyID,
		FilterText:  filterText,
		ShowDeleted: showDeleted,
		ShowHidden:  showHidden,
	}
}

// View returns the matching view request for the cached items
func (r FetchItemsRequest) View() ItemsViewRequest {
	return ItemsViewRequest{
		HistoryID:   r.HistoryID,
		FilterText:  r.FilterText,
		ShowDeleted: r.ShowDeleted,
		ShowHidden:  r.ShowHidden,
	}
}
