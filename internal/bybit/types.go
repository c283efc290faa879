package bybit

import "encoding/json"

// Market is the Bybit market segment a file belongs to.
const (
	MarketSpot     = "spot"
	MarketContract = "contract"
)

// Product is the kind of historical data archive.
const (
	ProductTrade     = "trade"
	ProductOrderbook = "orderbook"
)

// ValidMarket reports whether m is a supported market segment.
func ValidMarket(m string) bool {
	return m == MarketSpot || m == MarketContract
}

// ValidProduct reports whether p is a supported archive type.
func ValidProduct(p string) bool {
	return p == ProductTrade || p == ProductOrderbook
}

// Response is the envelope around every download API reply.
type Response struct {
	RetCode int             `json:"ret_code"`
	RetMsg  string          `json:"ret_msg"`
	Result  json.RawMessage `json:"result"`
}

// symbolsResult is the payload of a list-options reply.
type symbolsResult struct {
	Symbols []string `json:"symbols"`
}

// filesResult is the payload of a list-files reply.
type filesResult struct {
	List []RemoteFile `json:"list"`
}

// RemoteFile describes one downloadable archive as reported by the API.
type RemoteFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ListFilesParams are the query parameters of a list-files request.
// The API caps StartDay..EndDay at seven days; the resolver splits
// larger ranges before calling.
type ListFilesParams struct {
	Market   string
	Product  string
	Symbol   string
	StartDay string
	EndDay   string
}
