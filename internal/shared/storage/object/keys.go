package object

import (
	"path"
	"strings"
)

// Key builds the relative object key for a tenant file.
func Key(tenantID, fileName string) string {
	return tenantID + "/" + fileName
}

// ScopeToTenant resolves each name to a key under tenantID and drops any
// that would land outside the tenant's prefix. Names may be bare file names
// or already carry the tenant prefix.
func ScopeToTenant(tenantID string, names []string) (keys []string, rejected []string) {
	prefix := tenantID + "/"
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		n := strings.TrimSpace(name)
		if n == "" || tenantID == "" {
			rejected = append(rejected, name)
			continue
		}
		candidate := n
		if !strings.HasPrefix(candidate, prefix) {
			candidate = prefix + candidate
		}
		cleaned := path.Clean(candidate)
		if !strings.HasPrefix(cleaned, prefix) || len(cleaned) == len(prefix) {
			rejected = append(rejected, name)
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		keys = append(keys, cleaned)
	}
	return keys, rejected
}

// FileName strips the tenant prefix from a key.
func FileName(tenantID, key string) string {
	return strings.TrimPrefix(key, tenantID+"/")
}
