package couchbase

// CasHolder is implemented by documents that track their CAS value.
// Embedding Cas satisfies it.
type CasHolder interface {
	GetCas() uint64
	SetCas(cas uint64)
}

// Cas stores the CAS value of the last read or write of a document. It is
// never serialized.
type Cas struct {
	c uint64
}

func (c *Cas) GetCas() uint64 {
	return c.c
}

func (c *Cas) SetCas(cas uint64) {
	c.c = cas
}
