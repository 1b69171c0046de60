package media

// OrderedFilters fixes the order in which configured filters are applied by
// the transcode stage: crop and pad run before scaling, the rest after.
var OrderedFilters = []string{"crop", "pad", "gblur", "eq", "lutyuv"}

// FilterAllowed reports whether a filter name belongs to the fixed filter set.
func FilterAllowed(name string) bool {
	for _, f := range OrderedFilters {
		if f == name {
			return true
		}
	}
	return false
}

// GeometryFilters are the filters that change or depend on frame geometry;
// configuring any of them requires an explicitly set compute geometry.
var GeometryFilters = []string{"crop", "pad"}
