package index

import "strings"

// GetPath reconstructs the path for key, walking parent links from key.FRS
// up to the root (FRS 5), then reversing (spec.md §6: Index::get_path).
// When nameOnly is true, only the leaf component is returned.
func (idx *Index) GetPath(key Key, nameOnly bool) (string, bool) {
	idx.s.mu.Lock()
	defer idx.s.mu.Unlock()

	rec, ok := idx.recordAtLocked(key.FRS)
	if !ok {
		return "", false
	}
	link, ok := idx.nameAtLocked(rec, key.NameIndex)
	if !ok {
		return "", false
	}
	leaf := idx.s.readName(link.Name)
	if nameOnly {
		return leaf, true
	}

	components := []string{leaf}
	const rootFRS = 5
	cur := link.Parent
	for cur != rootFRS && len(components) < maxPathDepth {
		crec, ok := idx.recordAtLocked(cur)
		if !ok {
			break
		}
		clink, ok := idx.nameAtLocked(crec, NoIndex)
		if !ok {
			break
		}
		components = append(components, idx.s.readName(clink.Name))
		cur = clink.Parent
	}

	for i, j := 0, len(components)-1; i < j; i, j = i+1, j-1 {
		components[i], components[j] = components[j], components[i]
	}
	return strings.Join(components, `\`), true
}

// maxPathDepth guards against a corrupt parent cycle spinning forever; NTFS
// paths in practice never approach this.
const maxPathDepth = 4096
