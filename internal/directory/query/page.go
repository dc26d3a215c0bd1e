package query

// clamp applies the paging convention: zero selects def, anything below one
// becomes one, and values above max are capped.
func clamp(v, def, max int) int {
	switch {
	case v == 0:
		v = def
	case v < 1:
		v = 1
	}
	if v > max {
		v = max
	}
	return v
}

func (e *Engine) clampLimit(limit int) int {
	return e.limits.Page(limit)
}

// Page clamps a requested page size.
func (l Limits) Page(limit int) int {
	return clamp(limit, l.DefaultLimit, l.MaxLimit)
}

// Suggestions clamps a requested suggestion count.
func (l Limits) Suggestions(limit int) int {
	return clamp(limit, l.SuggestLimit, l.MaxSuggest)
}

// Offset clamps a requested offset to be non-negative.
func Offset(offset int) int { return clampOffset(offset) }

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func page(ids []string, offset, limit int) []string {
	if offset >= len(ids) {
		return nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end]
}
