package domain

// Category identifies one listing section of the source site. Code is the
// path segment of the category's listing endpoint; Type and Genre are the
// site's own labels for it.
type Category struct {
	Code  string `mapstructure:"code" json:"code"`
	Type  string `mapstructure:"type" json:"type"`
	Genre string `mapstructure:"genre" json:"genre"`
	URL   string `mapstructure:"url" json:"url"`
}

// DefaultCategories returns the full category table for the source site,
// with listing endpoints rooted at baseURL.
func DefaultCategories(baseURL string) []Category {
	return []Category{
		// Rentals.
		{Code: "jukyo", Type: "賃貸", Genre: "住居", URL: baseURL + "/jukyo"},
		{Code: "jigyo", Type: "賃貸", Genre: "事業用", URL: baseURL + "/jigyo"},
		{Code: "yard", Type: "賃貸", Genre: "月極駐車場", URL: baseURL + "/yard"},
		{Code: "parking", Type: "賃貸", Genre: "時間貸駐車場", URL: baseURL + "/parking"},
		// Sales.
		{Code: "tochi", Type: "売買", Genre: "土地", URL: baseURL + "/tochi"},
		{Code: "mansion", Type: "売買", Genre: "マンション", URL: baseURL + "/mansion"},
		{Code: "house", Type: "売買", Genre: "戸建", URL: baseURL + "/house"},
		{Code: "sonota", Type: "売買", Genre: "その他", URL: baseURL + "/sonota"},
	}
}
