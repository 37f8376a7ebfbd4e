package delivery

// Stats counts delivery attempts since Init or the last ResetStats.
type Stats struct {
	Initialized bool

	Total         uint32
	Successful    uint32
	Failed        uint32
	Timeouts      uint32
	NetworkErrors uint32

	// LastRequestTime is the time of the last request in microseconds since
	// Init.
	LastRequestTime int64
	LastStatusCode  int
}

// Response is the record of the most recent exchange.
type Response struct {
	StatusCode    int
	ContentLength int
	Body          []byte
	BodyLen       int
	Success       bool
}
