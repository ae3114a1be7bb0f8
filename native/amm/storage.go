package amm

// Storage abstracts the subset of key-value state access required by the AMM
// ledgers. Implementations must be synchronous: a Put is visible to the next
// Get with no intervening suspension point.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}
