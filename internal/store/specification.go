package store

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/flotilla/internal/clusterspec"
	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// SpecificationStore persists one ClusterSpecification per cluster name. Creating a specification
// is the lock on its name: at most one exists until it is destroyed. Nothing is cached; every call
// goes to the underlying Store.
type SpecificationStore struct {
	store Store
}

func NewSpecificationStore(store Store) *SpecificationStore {
	return &SpecificationStore{store: store}
}

// Store returns the underlying key space, which also holds the clusters' configuration payloads.
func (s *SpecificationStore) Store() Store {
	return s.store
}

// Create persists spec under name, failing with ErrAlreadyExists if name is taken.
func (s *SpecificationStore) Create(name string, spec *clusterspec.ClusterSpecification) error {
	data, err := spec.ToJSON()
	if err != nil {
		return err
	}
	err = s.store.CreateExclusive(clusterspec.SpecificationPath(name), data)
	var exists *flotillaerrors.ErrAlreadyExists
	if errors.As(err, &exists) {
		return &flotillaerrors.ErrAlreadyExists{
			Type:    "cluster",
			Value:   name,
			Message: "specification " + clusterspec.SpecificationPath(name),
		}
	}
	return err
}

// Load fails with ErrNotFound if there is no specification for name, and with
// ErrInvalidSpecification if the record cannot be used.
func (s *SpecificationStore) Load(name string) (*clusterspec.ClusterSpecification, error) {
	specPath := clusterspec.SpecificationPath(name)
	data, err := s.store.Read(specPath)
	var notFound *flotillaerrors.ErrNotFound
	if errors.As(err, &notFound) {
		return nil, &flotillaerrors.ErrNotFound{Type: "cluster", Value: name}
	} else if err != nil {
		return nil, err
	}
	return clusterspec.Parse(data, specPath)
}

func (s *SpecificationStore) Update(name string, spec *clusterspec.ClusterSpecification) error {
	data, err := spec.ToJSON()
	if err != nil {
		return err
	}
	return s.store.Write(clusterspec.SpecificationPath(name), data)
}

// Destroy deletes the specification together with everything else kept for the cluster.
func (s *SpecificationStore) Destroy(name string) error {
	return s.store.Delete(clusterspec.ClusterDir(name))
}

func (s *SpecificationStore) Exists(name string) (bool, error) {
	return s.store.Exists(clusterspec.SpecificationPath(name))
}

// List returns the names of all clusters with a specification.
func (s *SpecificationStore) List() ([]string, error) {
	keys, err := s.store.List(clusterspec.ClustersDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, key := range keys {
		rel := strings.TrimPrefix(key, clusterspec.ClustersDir+"/")
		name, file := path.Split(rel)
		if file == clusterspec.SpecificationFile && strings.Count(rel, "/") == 1 {
			names = append(names, strings.TrimSuffix(name, "/"))
		}
	}
	return names, nil
}
