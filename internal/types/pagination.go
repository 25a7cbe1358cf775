package types

// PageRequest carries validated offset-based pagination parameters.
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Offset returns the row offset for this page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PageMeta contains pagination metadata for list responses. TotalPages is
// derived from the total row count, so an out-of-range page yields an empty
// data array rather than an error.
type PageMeta struct {
	TotalRecords int64 `json:"total_records"`
	Page         int   `json:"page"`
	PageSize     int   `json:"page_size"`
	TotalPages   int   `json:"total_pages"`
}

// NewPageMeta computes pagination metadata for a total row count. TotalPages
// is ceil(total/pageSize); zero rows means zero pages.
func NewPageMeta(total int64, req PageRequest) PageMeta {
	pages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	return PageMeta{
		TotalRecords: total,
		Page:         req.Page,
		PageSize:     req.PageSize,
		TotalPages:   pages,
	}
}

// ListResponse is the generic paginated response wrapper. Data is always a
// JSON array, never null, even for empty pages.
type ListResponse[T any] struct {
	Metadata PageMeta `json:"metadata"`
	Data     []T      `json:"data"`
}

// NewListResponse wraps rows with their pagination metadata, normalizing a
// nil slice to an empty one.
func NewListResponse[T any](total int64, req PageRequest, data []T) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{
		Metadata: NewPageMeta(total, req),
		Data:     data,
	}
}
