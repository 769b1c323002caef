package artifacts

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrVersionConflict marks use of a schema version that is not the active
// version for its artifact family.
var ErrVersionConflict = errors.New("artifacts: schema version not active for family")

// VersionRegistry is the single exclusivity authority for versioned
// artifact families. Parallel v1/v2/v3 variants of one concept are modeled
// as one family with exactly one active version; producing or consuming a
// non-active version is rejected in one place rather than per-version.
type VersionRegistry struct {
	mu     sync.RWMutex
	active map[string]string          // family -> active version
	known  map[string]map[string]bool // family -> known versions
}

// NewVersionRegistry creates an empty registry.
func NewVersionRegistry() *VersionRegistry {
	return &VersionRegistry{
		active: make(map[string]string),
		known:  make(map[string]map[string]bool),
	}
}

// Register declares a family with its known versions and the single active
// one. Re-registering a family replaces its entry.
func (r *VersionRegistry) Register(family, activeVersion string, knownVersions ...string) error {
	found := false
	for _, v := range knownVersions {
		if v == activeVersion {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("artifacts: active version %s not among known versions for family %s", activeVersion, family)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[family] = activeVersion
	set := make(map[string]bool, len(knownVersions))
	for _, v := range knownVersions {
		set[v] = true
	}
	r.known[family] = set
	return nil
}

// CheckExclusive verifies that version is the one active version for
// family. Unknown families and - versions are rejected, never coerced.
func (r *VersionRegistry) CheckExclusive(family, version string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activeVersion, ok := r.active[family]
	if !ok {
		return fmt.Errorf("%w: unknown family %q", ErrVersionConflict, family)
	}
	if !r.known[family][version] {
		return fmt.Errorf("%w: unknown version %q for family %q", ErrVersionConflict, version, family)
	}
	if version != activeVersion {
		return fmt.Errorf("%w: family %q active=%s got=%s", ErrVersionConflict, family, activeVersion, version)
	}
	return nil
}

// Active returns the active version for a family.
func (r *VersionRegistry) Active(family string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.active[family]
	return v, ok
}

// Families lists registered families in stable order.
func (r *VersionRegistry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.active))
	for f := range r.active {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
