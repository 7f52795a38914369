package engine

import (
	"encoding/json"

	"github.com/cuemby/sysrepo-engine/internal/datastore"
)

// decodeTree replays a persisted item list onto an already-allocated empty
// tree, the inverse of encodeTree. Kept as a mutate-in-place helper rather
// than returning a new tree so loadBase can allocate the tree once (bound to
// its module's schema) before filling it in.
func decodeTree(tree *datastore.Tree, data []byte) error {
	var items []datastore.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	for _, it := range items {
		if err := tree.Set(it.Path, it.Value, datastore.FlagNone); err != nil {
			return err
		}
	}
	return nil
}

// encodeTree flattens a tree to its persisted item-list form (§4.5 step 7,
// "write"), the JSON blob internal/persist writes to {module}.{datastore}.
func encodeTree(tree *datastore.Tree) ([]byte, error) {
	return json.Marshal(tree.Items())
}
