package fsadapter

// Reserved inodes. All derived (namespace-hashed) inodes have bit 63 set,
// so small constants here can never collide with them.
const (
	inoSyncMeta          uint64 = 2
	inoWorkspaces        uint64 = 3
	inoLastSync          uint64 = 4
	inoLastFullSync      uint64 = 5
	inoSecondsToNextSync uint64 = 6
	inoManualRefresh     uint64 = 7
	inoFullRefresh       uint64 = 8
)

const fnvOffsetBasis uint64 = 0xcbf29ce484222325
const fnvPrime uint64 = 0x100000001b3

// namespaceHash is a 63-bit FNV-1a variant: the namespace byte is XORed
// into the offset basis before the first multiply, then every byte of
// name follows the standard FNV-1a fold. Bit 63 is forced set to keep the
// result out of the reserved-constant range; the one value that would
// otherwise collide with the all-zero-after-OR case is bumped to 3.
func namespaceHash(namespace byte, name []byte) uint64 {
	hash := fnvOffsetBasis
	hash ^= uint64(namespace)
	hash *= fnvPrime
	for _, b := range name {
		hash ^= uint64(b)
		hash *= fnvPrime
	}

	value := hash | (1 << 63)
	if value == 1 {
		return 3
	}
	return value
}

const (
	nsWorkspace     byte = 0x11
	nsIssueMain     byte = 0x22
	nsIssueComments byte = 0x23
)

func inodeForWorkspace(name string) uint64 {
	return namespaceHash(nsWorkspace, []byte(name))
}

// Issue inodes are a function of the key alone, never the workspace: the
// same issue surfaced by two overlapping workspace listings must resolve
// to one inode everywhere.
func inodeForIssueMain(key string) uint64 {
	return namespaceHash(nsIssueMain, []byte(key))
}

func inodeForIssueComments(key string) uint64 {
	return namespaceHash(nsIssueComments, []byte(key))
}
