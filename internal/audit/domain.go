// Package audit records security-relevant actions in a tamper-evident log.
// Every row carries an HMAC over its payload and the previous row's hash, so
// any retroactive edit breaks the chain from that row onward.
package audit

// Event is one audit log row. Timestamp is unix seconds; PrevHash and Hash
// are lowercase hex HMAC-SHA256 digests, empty when no key was configured at
// write time.
type Event struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"timestamp"`
	User      string `json:"user"`
	Action    string `json:"action"`
	Resource  string `json:"resource"`
	Details   string `json:"details"`
	IP        string `json:"ip"`
	Success   bool   `json:"success"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
}
