package types

import (
	"context"
	"errors"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrDatasetNotFound  = errors.New("dataset not found")
	ErrAmbiguousDataset = errors.New("ambiguous dataset")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrMissingResource  = errors.New("missing resource")
	ErrAcquisition      = errors.New("acquisition failed")
	ErrEngine           = errors.New("engine error")
	ErrTimeout          = errors.New("timeout")
)

type ErrorKind string

const (
	NoError               ErrorKind = ""
	ConfigurationError    ErrorKind = "ConfigurationError"
	DatasetNotFoundError  ErrorKind = "DatasetNotFoundError"
	AmbiguousDatasetError ErrorKind = "AmbiguousDatasetError"
	SchemaMismatchError   ErrorKind = "SchemaMismatchError"
	MissingResourceError  ErrorKind = "MissingResourceError"
	AcquisitionError      ErrorKind = "AcquisitionError"
	EngineError           ErrorKind = "EngineError"
	TimeoutError          ErrorKind = "TimeoutError"
	CanceledError         ErrorKind = "Canceled"
	UnknownError          ErrorKind = "UnknownError"
)

// Order matters: a timeout wrapping an engine call is reported as a timeout,
// while a pipeline error whose cause is a context error keeps its own kind.
var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrTimeout, TimeoutError},
	{ErrConfiguration, ConfigurationError},
	{ErrDatasetNotFound, DatasetNotFoundError},
	{ErrAmbiguousDataset, AmbiguousDatasetError},
	{ErrSchemaMismatch, SchemaMismatchError},
	{ErrMissingResource, MissingResourceError},
	{ErrAcquisition, AcquisitionError},
	{ErrEngine, EngineError},
	{context.DeadlineExceeded, TimeoutError},
	{context.Canceled, CanceledError},
}

func KindOf(err error) ErrorKind {
	if err == nil {
		return NoError
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return UnknownError
}
