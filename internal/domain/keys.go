package domain

// KeyPrefix namespaces every key ltrkit writes to Valkey.
const KeyPrefix = "ltrkit:"
