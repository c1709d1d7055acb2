package models

// Classification is the tri-state anime-seller flag. A seller starts out
// Unknown, and stays Unknown when every title check failed.
type Classification int

const (
	ClassificationUnknown Classification = iota
	ClassificationAnime
	ClassificationNotAnime
)

// String returns the storage token for the classification.
func (c Classification) String() string {
	switch c {
	case ClassificationAnime:
		return "anime"
	case ClassificationNotAnime:
		return "not_anime"
	default:
		return "unknown"
	}
}

// Label returns the CSV display token for the classification.
func (c Classification) Label() string {
	switch c {
	case ClassificationAnime:
		return "はい"
	case ClassificationNotAnime:
		return "いいえ"
	default:
		return "未判定"
	}
}

// SellerLink is a seller discovered on the aggregation site, before
// product-level enrichment. Immutable once produced.
type SellerLink struct {
	Name       string `json:"seller_name"`
	TotalPrice int    `json:"total_price"`
	URL        string `json:"url"`
}

// Seller is a marketplace seller with its scraped product titles.
type Seller struct {
	Name           string         `json:"seller_name"`
	URL            string         `json:"seller_url"`
	TotalPrice     int            `json:"total_price,omitempty"`
	ProductTitles  []string       `json:"product_titles"`
	Classification Classification `json:"classification"`
}
