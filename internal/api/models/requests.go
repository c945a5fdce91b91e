package models

// SortRequest represents the request to change the collection order
type SortRequest struct {
	Order string `json:"order"`
}

// CopyHistoryRequest represents the request to copy a history
type CopyHistoryRequest struct {
	Name        string `json:"name,omitempty"`
	MakeCurrent bool   `json:"make_current"`
	AllDatasets bool   `json:"all_datasets"`
}

// RenameHistoryRequest represents the request to rename a history
type RenameHistoryRequest struct {
	Name string `json:"name"`
}

// FetchItemsRequest represents the request to fetch one page of a history's items
type FetchItemsRequest struct {
	Offset      int    `json:"offset"`
	FilterText  string `json:"filter_text"`
	ShowDeleted bool   `json:"show_deleted"`
	ShowHidden  bool   `json:"show_hidden"`
}

// IncludeDeletedRequest toggles whether the collection lists deleted histories
type IncludeDeletedRequest struct {
	IncludeDeleted bool `json:"include_deleted"`
}
