package timelinerpc

import (
	"log"

	"github.com/fluxroom/timeline/internal/authz"
	"github.com/fluxroom/timeline/internal/commit"
	"github.com/fluxroom/timeline/internal/eventbus"
	"github.com/fluxroom/timeline/internal/objectstore"
	"github.com/fluxroom/timeline/internal/storage"
)

// Capabilities is the "runs of things" context every handler is built
// against (§9's design note): a plain struct of collaborators rather than
// an interface hierarchy, injected by value into the Server constructor.
type Capabilities struct {
	Store   storage.Store
	Objects objectstore.Store
	Authz   authz.Authorizer
	Bus     *eventbus.Bus
	Engine  *commit.Engine
	Logger  *log.Logger
}

// WithDefaults fills unset fields with their development stand-ins: an
// AllowAll authorizer, an in-memory object store, a commit.Engine built
// over Store, and the standard logger. Mirrors the donor's habit of
// defaulting optional daemon config rather than requiring every field.
func (c Capabilities) WithDefaults() Capabilities {
	if c.Authz == nil {
		c.Authz = authz.NewAllowAll()
	}
	if c.Objects == nil {
		c.Objects = objectstore.NewMemory()
	}
	if c.Engine == nil && c.Store != nil {
		c.Engine = commit.New(c.Store)
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}
