package domain

// KeyPrefix namespaces every key the engine writes to the backing store.
const KeyPrefix = "khoj:"

// DefaultVectorDimensions is the embedding width used when config leaves it unset.
const DefaultVectorDimensions = 384
