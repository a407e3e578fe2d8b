package soil

import "cropcore/internal/kernel"

// access wraps the exchange for the water balance, collecting the first
// failure so the bucket arithmetic reads without error plumbing.
type access struct {
	x     *kernel.Exchange
	owner string
	err   error
}

func newAccess(x *kernel.Exchange, owner string) *access {
	return &access{x: x, owner: owner}
}

func (a *access) register(name string, kind kernel.Kind, publish bool) {
	if a.err != nil {
		return
	}
	a.err = a.x.Register(a.owner, name, kind, publish)
}

func (a *access) write(name string, v float64) {
	if a.err != nil {
		return
	}
	a.err = a.x.Write(a.owner, name, v)
}

func (a *access) read(name string) float64 {
	if a.err != nil {
		return 0
	}
	v, err := a.x.Read(name)
	if err != nil {
		a.err = err
		return 0
	}
	return v
}

func (a *access) has(name string) bool {
	return a.x.Has(name)
}

func (a *access) take() error {
	err := a.err
	a.err = nil
	return err
}
