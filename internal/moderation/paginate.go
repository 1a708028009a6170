package moderation

// Paginate splits items into consecutive pages of at most perPage entries.
func Paginate[T any](items []T, perPage int) [][]T {
	if perPage < 1 {
		perPage = 1
	}
	pages := make([][]T, 0, (len(items)+perPage-1)/perPage)
	for start := 0; start < len(items); start += perPage {
		end := min(start+perPage, len(items))
		pages = append(pages, items[start:end])
	}
	return pages
}
