package constants

// Advisory lock keys. The high bits namespace them away from other
// applications sharing the database.
const (
	lockNamespace int64 = 0x64616773 << 16

	MigrationLock = lockNamespace + iota
)
