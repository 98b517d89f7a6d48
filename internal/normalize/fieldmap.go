package normalize

// FieldMapping names one field carried from an exported record into the
// upload schema. Source and target coincide for every Amplitude field today,
// but the pair keeps renaming possible without touching the copy loop.
type FieldMapping struct {
	Source string
	Target string
}

// DefaultFieldMap returns the ordered allow-list of Export API fields the
// Batch Upload API accepts. Anything not listed here is dropped during
// normalization. Later entries overwrite earlier ones if two sources map to
// the same target.
func DefaultFieldMap() []FieldMapping {
	return []FieldMapping{
		// Core identifiers
		{"user_id", "user_id"},
		{"device_id", "device_id"},
		{"event_type", "event_type"},

		// Properties
		{"event_properties", "event_properties"},
		{"user_properties", "user_properties"},
		{"group_properties", "group_properties"},
		{"groups", "groups"},

		// Session and event IDs
		{"session_id", "session_id"},
		{"event_id", "event_id"},
		{"insert_id", "insert_id"},

		// Device information
		{"platform", "platform"},
		{"os_name", "os_name"},
		{"os_version", "os_version"},
		{"device_brand", "device_brand"},
		{"device_manufacturer", "device_manufacturer"},
		{"device_model", "device_model"},
		{"device_type", "device_type"},
		{"carrier", "carrier"},

		// Location
		{"country", "country"},
		{"region", "region"},
		{"city", "city"},
		{"dma", "dma"},
		{"location_lat", "location_lat"},
		{"location_lng", "location_lng"},

		// Other
		{"language", "language"},
		{"ip_address", "ip_address"},
		{"library", "library"},
		{"app_version", "app_version"},

		// Revenue
		{"price", "price"},
		{"quantity", "quantity"},
		{"revenue", "revenue"},
		{"productId", "productId"},
		{"revenueType", "revenueType"},

		// Mobile identifiers
		{"idfa", "idfa"},
		{"idfv", "idfv"},
		{"adid", "adid"},
		{"android_id", "android_id"},
	}
}
