package id

import (
	"github.com/google/uuid"
	"github.com/nats-io/nuid"
)

var (
	// UUID generates RFC 4122 identifiers, used for event ids.
	UUID Generator = &uuidGen{}
	// NUID generates short, fast identifiers, used for batch correlation.
	NUID Generator = &nuidGen{}
)

// Generator produces unique identifiers.
type Generator interface {
	New() string
}

type uuidGen struct{}

func (*uuidGen) New() string {
	return uuid.NewString()
}

type nuidGen struct{}

func (*nuidGen) New() string {
	return nuid.Next()
}

// Func adapts a function into a Generator.
type Func func() string

func (f Func) New() string { return f() }
