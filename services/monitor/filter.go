package monitor

// FilterConfig is the user-configured notification predicate set.
// Zero values mean unbounded/allow-all.
type FilterConfig struct {
	MinPrice *int64 `json:"min_price"`
	MaxPrice *int64 `json:"max_price"`
	// empty = allow all
	RecordTypes []RecordType `json:"record_types"`
	// empty = allow all
	ZipCodes []string `json:"zip_codes"`
}

// Filter selects the classified records eligible for notification.
// Unchanged records never pass regardless of configuration: they
// already advanced last_seen during diffing, and must not re-notify.
func Filter(classified []ClassifiedRecord, config FilterConfig) []ClassifiedRecord {
	var eligible []ClassifiedRecord
	for _, c := range classified {
		if c.Classification == ClassificationUnchanged {
			continue
		}
		if !passesPrice(c.Record.Price, config) {
			continue
		}
		if !passesType(c.Record.Type, config.RecordTypes) {
			continue
		}
		if !passesZip(c.Record.ZipCode, config.ZipCodes) {
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible
}

// absent prices pass: liens and undisclosed transfers should not be
// silenced by a price window.
func passesPrice(price *int64, config FilterConfig) bool {
	if price == nil {
		return true
	}
	if config.MinPrice != nil && *price < *config.MinPrice {
		return false
	}
	if config.MaxPrice != nil && *price > *config.MaxPrice {
		return false
	}
	return true
}

func passesType(recordType RecordType, allowed []RecordType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, t := range allowed {
		if t == recordType {
			return true
		}
	}
	return false
}

// records with no usable zip are not silenced by a zip allowlist;
// they can still be caught by the other predicates
func passesZip(zip string, allowed []string) bool {
	if len(allowed) == 0 || zip == "" {
		return true
	}
	for _, z := range allowed {
		if z == zip {
			return true
		}
	}
	return false
}
