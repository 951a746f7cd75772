package catalog

import "sync/atomic"

// Provider хранит текущий снимок каталога и позволяет атомарно его заменить.
// Отдельная операция берёт снимок один раз и работает с ним до конца.
type Provider struct {
	current atomic.Pointer[Catalog]
}

// NewProvider создаёт провайдер с начальным снимком.
func NewProvider(c *Catalog) *Provider {
	p := &Provider{}
	p.current.Store(c)
	return p
}

// Current возвращает текущий снимок каталога.
func (p *Provider) Current() *Catalog {
	return p.current.Load()
}

// Replace заменяет снимок каталога целиком.
func (p *Provider) Replace(c *Catalog) {
	if c == nil {
		return
	}
	p.current.Store(c)
}
