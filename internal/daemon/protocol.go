package daemon

// Simple JSON protocol for the kvnode daemon over a Unix domain socket.
// Requests and responses alternate on a connection using json.Encoder/Decoder.
// Keys and values are byte slices and travel base64 encoded.

const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
	OpHas    = "has"
	OpKeys   = "keys"
	OpClear  = "clear"
)

type Request struct {
	Op    string `json:"op"`
	Key   []byte `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
	// TTLMillis applies to "set"; <= 0 never expires.
	TTLMillis int64 `json:"ttl_ms,omitempty"`
}

type Response struct {
	OK    bool   `json:"ok"`
	Value []byte `json:"value,omitempty"`
	// Found answers "has" and "delete".
	Found bool     `json:"found,omitempty"`
	Keys  [][]byte `json:"keys,omitempty"`
	Error string   `json:"error,omitempty"`
}
