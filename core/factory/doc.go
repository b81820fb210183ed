// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[fleet.SnapshotStore]()
//	reg.Register("jsonfile", func(conf map[string]any) (fleet.SnapshotStore, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return store.NewJSONFileStore(c.Path), nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "jsonfile", Conf: map[string]any{"path": "fleet.json"}})
package factory
