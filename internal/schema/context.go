package schema

import (
	"fmt"
	"sync"
)

// Context is the process-wide schema registry: module name -> namespace,
// prefix, latest revision, and the set of revisions loaded. Created at
// engine start, extended on module_install, destroyed at shutdown (§3).
type Context struct {
	mu      sync.RWMutex
	modules map[string]map[string]*Module // module name -> revision -> Module
	latest  map[string]string             // module name -> latest revision
}

// NewContext creates an empty schema context.
func NewContext() *Context {
	return &Context{
		modules: make(map[string]map[string]*Module),
		latest:  make(map[string]string),
	}
}

// Install registers a module revision, becoming the module's latest
// revision if no newer one is already loaded. Mirrors the YANG library's
// module_install operation (§4.3).
func (c *Context) Install(m *Module) error {
	if m.Name == "" {
		return fmt.Errorf("schema: module has no name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	revs, ok := c.modules[m.Name]
	if !ok {
		revs = make(map[string]*Module)
		c.modules[m.Name] = revs
	}
	revs[m.Revision] = m
	if cur, ok := c.latest[m.Name]; !ok || m.Revision > cur {
		c.latest[m.Name] = m.Revision
	}
	return nil
}

// Module returns the latest loaded revision of a module.
func (c *Context) Module(name string) (*Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rev, ok := c.latest[name]
	if !ok {
		return nil, false
	}
	return c.modules[name][rev], true
}

// ModuleRevision returns a specific revision of a module.
func (c *Context) ModuleRevision(name, revision string) (*Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	revs, ok := c.modules[name]
	if !ok {
		return nil, false
	}
	m, ok := revs[revision]
	return m, ok
}

// ListModules returns the latest revision of every installed module,
// backing the list_schemas operation (§4.3).
func (c *Context) ListModules() []*Module {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Module, 0, len(c.latest))
	for name, rev := range c.latest {
		out = append(out, c.modules[name][rev])
	}
	return out
}

// Remove unloads every revision of a module.
func (c *Context) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.modules, name)
	delete(c.latest, name)
}
