package catalog

// SearchResponse represents the response from the catalog lyrics search API
type SearchResponse struct {
	Status   int    `json:"status"`
	Info     string `json:"info"`
	ErrCode  int    `json:"errcode"`
	ErrMsg   string `json:"errmsg"`
	Keyword  string `json:"keyword"`
	Proposal string `json:"proposal"`
	Expire   int    `json:"expire"`

	Candidates []Candidate `json:"candidates"`
}

// Candidate represents one lyrics variant offered by the catalog. ID is
// the catalog hash identifying the variant; AccessKey is required to
// download its payload.
type Candidate struct {
	ID          string `json:"id"`
	ProductFrom string `json:"product_from"`
	AccessKey   string `json:"accesskey"`
	Singer      string `json:"singer"`
	Song        string `json:"song"`
	Duration    int    `json:"duration"` // Duration in milliseconds
	Language    string `json:"language"`
	KRCType     int    `json:"krctype"` // 1 = word-timed, 2 = other
	Score       int    `json:"score"`
	ContentType int    `json:"contenttype"`
}

// DownloadResponse represents the response from the catalog lyrics download API
type DownloadResponse struct {
	Status      int    `json:"status"`
	Info        string `json:"info"`
	ErrorCode   int    `json:"error_code"`
	Fmt         string `json:"fmt"`
	ContentType int    `json:"contenttype"`
	Charset     string `json:"charset"`
	Content     string `json:"content"` // Base64-encoded payload
}

// CoverResponse represents the response from the catalog song-info API,
// of which only the cover image URL is consumed.
type CoverResponse struct {
	Status int `json:"status"`
	Data   struct {
		Img string `json:"img"`
	} `json:"data"`
}
