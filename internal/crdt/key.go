package crdt

import (
	"fmt"
	"strings"

	"github.com/roach88/nexus/internal/ir"
)

// Key prefixes. String ids that start with a reserved prefix are escaped
// with a backslash so the mapping stays injective.
const (
	keyPrefixValue   = "#"
	keyPrefixContent = "~"
	keyPrefixEscape  = `\`
)

// ItemKey returns the identity of an item within its list:
//   - a string id maps to itself
//   - any other id maps to "#" + canonical JSON of the id
//   - a missing id maps to "~" + content hash of the whole item
func ItemKey(item ir.IRObject) (string, error) {
	switch id := item["id"].(type) {
	case nil:
		sum, err := ir.ContentKey(item)
		if err != nil {
			return "", fmt.Errorf("item key: %w", err)
		}
		return keyPrefixContent + sum, nil
	case ir.IRString:
		s := string(id)
		if strings.HasPrefix(s, keyPrefixValue) ||
			strings.HasPrefix(s, keyPrefixContent) ||
			strings.HasPrefix(s, keyPrefixEscape) {
			return keyPrefixEscape + s, nil
		}
		return s, nil
	default:
		canonical, err := ir.MarshalCanonical(id)
		if err != nil {
			return "", fmt.Errorf("item key: %w", err)
		}
		return keyPrefixValue + string(canonical), nil
	}
}
